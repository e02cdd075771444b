// Package optimizer runs a generational search over a decision schema,
// scoring each genome with a cost function evaluated by a bounded worker pool.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/constellation-optimizer/decision"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/internal/observability"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
)

const tracerName = "github.com/signalsfoundry/constellation-optimizer/optimizer"

var (
	// ErrGenerationFailed is returned when every evaluation of a generation failed.
	ErrGenerationFailed = errors.New("optimizer: every evaluation in generation failed")
	// ErrInvalidConfig reports unusable optimiser parameters.
	ErrInvalidConfig = errors.New("optimizer: invalid config")
)

// Evaluator scores a genome. It is called concurrently and must not share
// mutable state between calls. *decision.CostFunction satisfies it.
type Evaluator interface {
	Cost(ctx context.Context, g decision.Genome) (float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, g decision.Genome) (float64, error)

// Cost calls f.
func (f EvaluatorFunc) Cost(ctx context.Context, g decision.Genome) (float64, error) {
	return f(ctx, g)
}

// Reason records why a run stopped.
type Reason string

const (
	ReasonGenerations Reason = "generations"
	ReasonWallClock   Reason = "wall_clock"
	ReasonCanceled    Reason = "canceled"
)

// Config holds the search budgets.
type Config struct {
	Population  int
	Generations int
	// Workers bounds concurrent evaluations; zero means GOMAXPROCS.
	Workers int
	// WallClock stops the run before a generation starts once exceeded;
	// zero disables it.
	WallClock time.Duration
	Seed      int64
}

func (c Config) validate() error {
	switch {
	case c.Population < 1:
		return fmt.Errorf("%w: population %d", ErrInvalidConfig, c.Population)
	case c.Generations < 1:
		return fmt.Errorf("%w: generations %d", ErrInvalidConfig, c.Generations)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	case c.WallClock < 0:
		return fmt.Errorf("%w: wall clock %s", ErrInvalidConfig, c.WallClock)
	}
	return nil
}

// GenerationStats summarises one evaluated generation.
type GenerationStats struct {
	Generation  int
	Best        float64
	RunningBest float64
	// Mean and StdDev cover finite costs only; Mean is +Inf when none are.
	Mean      float64
	StdDev    float64
	Evaluated int
	Failed    int
	Unbounded int
	Duration  time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Best     decision.Genome
	BestCost float64
	Trace    []GenerationStats
	Reason   Reason
}

// Optimizer drives a Strategy against an Evaluator.
type Optimizer struct {
	schema    *decision.Schema
	eval      Evaluator
	cfg       Config
	strategy  Strategy
	clock     timectrl.Clock
	log       logging.Logger
	metrics   *observability.OptimizerCollector
	tracer    trace.Tracer
	onAdvance func(GenerationStats)
	runID     string
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithStrategy replaces the default genetic strategy.
func WithStrategy(s Strategy) Option {
	return func(o *Optimizer) {
		if s != nil {
			o.strategy = s
		}
	}
}

// WithClock sets the clock the wall-clock budget is measured on.
func WithClock(c timectrl.Clock) Option {
	return func(o *Optimizer) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(o *Optimizer) { o.log = logging.OrNoop(l) }
}

// WithMetrics records evaluations and generations on c.
func WithMetrics(c *observability.OptimizerCollector) Option {
	return func(o *Optimizer) { o.metrics = c }
}

// WithRunID fixes the run ID instead of generating one per Run, so it can be
// shared with tracing resources and reports.
func WithRunID(id string) Option {
	return func(o *Optimizer) { o.runID = id }
}

// WithProgress registers a callback invoked after every recorded generation.
func WithProgress(fn func(GenerationStats)) Option {
	return func(o *Optimizer) { o.onAdvance = fn }
}

// New validates cfg and returns an optimiser over schema.
func New(schema *decision.Schema, eval Evaluator, cfg Config, opts ...Option) (*Optimizer, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidConfig)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: nil evaluator", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	o := &Optimizer{
		schema:   schema,
		eval:     eval,
		cfg:      cfg,
		strategy: DefaultGenetic(),
		clock:    timectrl.SystemClock{},
		log:      logging.Noop(),
		tracer:   observability.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run searches until the generation budget, the wall-clock budget or ctx
// ends it. A generation interrupted by cancellation is discarded and the run
// returns the best result so far with a nil error. ErrGenerationFailed is
// returned, together with the partial result, when a whole generation fails.
func (o *Optimizer) Run(ctx context.Context) (Result, error) {
	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := Result{
		RunID:    runID,
		BestCost: math.Inf(1),
		Reason:   ReasonGenerations,
	}
	ctx, span := o.tracer.Start(ctx, "optimizer.Run", trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.Int("population", o.cfg.Population),
		attribute.Int("generations", o.cfg.Generations),
		attribute.Int("workers", o.cfg.Workers),
	))
	defer span.End()

	log := o.log.With(logging.String("run_id", res.RunID))
	log.Info(ctx, "optimisation started",
		logging.Int("population", o.cfg.Population),
		logging.Int("generations", o.cfg.Generations),
		logging.Int("workers", o.cfg.Workers),
		logging.Int("variables", o.schema.Len()),
	)

	rng := rand.New(rand.NewSource(o.cfg.Seed))
	start := o.clock.Now()
	pop := o.strategy.Initial(o.schema, o.cfg.Population, rng)

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			res.Reason = ReasonCanceled
			break
		}
		if o.cfg.WallClock > 0 && o.clock.Since(start) >= o.cfg.WallClock {
			res.Reason = ReasonWallClock
			break
		}

		genStart := o.clock.Now()
		costs, stats := o.evaluate(ctx, gen, pop)
		if ctx.Err() != nil {
			log.Warn(ctx, "generation interrupted; discarding", logging.Int("generation", gen))
			res.Reason = ReasonCanceled
			break
		}
		if stats.Failed == len(pop) {
			err := fmt.Errorf("%w: generation %d", ErrGenerationFailed, gen)
			log.Error(ctx, "generation failed", logging.Int("generation", gen), logging.Err(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}

		bestIdx := argmin(costs)
		if costs[bestIdx] < res.BestCost || res.Best == nil {
			res.Best = pop[bestIdx].Clone()
			res.BestCost = costs[bestIdx]
		}
		stats.Generation = gen
		stats.Best = costs[bestIdx]
		stats.RunningBest = res.BestCost
		stats.Duration = o.clock.Since(genStart)
		res.Trace = append(res.Trace, stats)

		o.metrics.ObserveGeneration(stats.Duration, stats.RunningBest)
		log.Info(ctx, "generation complete",
			logging.Int("generation", gen),
			logging.Float64("best", stats.Best),
			logging.Float64("running_best", stats.RunningBest),
			logging.Float64("mean", stats.Mean),
			logging.Int("failed", stats.Failed),
			logging.Int("unbounded", stats.Unbounded),
			logging.Duration("duration", stats.Duration),
		)
		if o.onAdvance != nil {
			o.onAdvance(stats)
		}

		if gen+1 < o.cfg.Generations {
			pop = o.strategy.Reproduce(o.schema, pop, costs, rng)
		}
	}

	span.SetAttributes(
		attribute.String("reason", string(res.Reason)),
		attribute.Int("generations_completed", len(res.Trace)),
		attribute.Float64("best_cost", finiteOr(res.BestCost, -1)),
	)
	log.Info(ctx, "optimisation finished",
		logging.String("reason", string(res.Reason)),
		logging.Int("generations_completed", len(res.Trace)),
		logging.Float64("best_cost", res.BestCost),
	)
	return res, nil
}

// evaluate scores pop with at most cfg.Workers concurrent evaluations. The
// pool lives for this call only; every worker has returned when it does.
func (o *Optimizer) evaluate(ctx context.Context, gen int, pop []decision.Genome) ([]float64, GenerationStats) {
	ctx, span := o.tracer.Start(ctx, "optimizer.generation", trace.WithAttributes(
		attribute.Int("generation", gen),
		attribute.Int("genomes", len(pop)),
	))
	defer span.End()

	costs := make([]float64, len(pop))
	failed := make([]bool, len(pop))

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i := range pop {
		g.Go(func() error {
			if ctx.Err() != nil {
				costs[i], failed[i] = math.Inf(1), true
				return nil
			}
			costs[i], failed[i] = o.evaluateOne(ctx, gen, i, pop[i])
			return nil
		})
	}
	_ = g.Wait()

	stats := GenerationStats{Evaluated: len(pop)}
	finite := make([]float64, 0, len(pop))
	for i, c := range costs {
		switch {
		case failed[i]:
			stats.Failed++
		case math.IsInf(c, 1):
			stats.Unbounded++
		default:
			finite = append(finite, c)
		}
	}
	switch len(finite) {
	case 0:
		stats.Mean = math.Inf(1)
	case 1:
		stats.Mean = finite[0]
	default:
		stats.Mean, stats.StdDev = stat.MeanStdDev(finite, nil)
	}
	span.SetAttributes(attribute.Int("failed", stats.Failed))
	return costs, stats
}

func (o *Optimizer) evaluateOne(ctx context.Context, gen, idx int, g decision.Genome) (cost float64, failed bool) {
	ctx, span := o.tracer.Start(ctx, "optimizer.evaluate", trace.WithAttributes(
		attribute.Int("generation", gen),
		attribute.Int("genome", idx),
	))
	defer span.End()

	start := time.Now()
	outcome := observability.OutcomeOK
	defer func() {
		if r := recover(); r != nil {
			cost, failed = math.Inf(1), true
			outcome = observability.OutcomePanic
			o.log.Error(ctx, "evaluation panicked",
				logging.Int("generation", gen),
				logging.Int("genome", idx),
				logging.Any("panic", r),
			)
			span.SetStatus(codes.Error, fmt.Sprint(r))
		}
		o.metrics.ObserveEvaluation(outcome, cost, time.Since(start))
	}()

	c, err := o.eval.Cost(ctx, g.Clone())
	if err != nil {
		outcome = observability.OutcomeError
		if ctx.Err() != nil {
			outcome = observability.OutcomeCanceled
		} else {
			o.log.Warn(ctx, "evaluation failed",
				logging.Int("generation", gen),
				logging.Int("genome", idx),
				logging.Err(err),
			)
		}
		span.RecordError(err)
		return math.Inf(1), true
	}
	if math.IsNaN(c) {
		outcome = observability.OutcomeError
		o.log.Warn(ctx, "evaluation returned NaN", logging.Int("generation", gen), logging.Int("genome", idx))
		return math.Inf(1), true
	}
	span.SetAttributes(attribute.Float64("cost", finiteOr(c, -1)))
	return c, false
}

func argmin(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x < xs[best] {
			best = i
		}
	}
	return best
}

func finiteOr(x, fallback float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return fallback
	}
	return x
}
