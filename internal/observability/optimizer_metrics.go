package observability

import (
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeCanceled = "canceled"
)

// OptimizerCollector exposes optimisation-run Prometheus metrics. All methods
// are safe on a nil receiver so callers can run without metrics.
type OptimizerCollector struct {
	gatherer prometheus.Gatherer

	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	GenerationDuration prometheus.Histogram
	Generations        prometheus.Counter
	BestCost           prometheus.Gauge
	UnboundedGenomes   prometheus.Counter
}

// NewOptimizerCollector registers optimiser metrics against the provided registerer.
func NewOptimizerCollector(reg prometheus.Registerer) (*OptimizerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	evaluations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_evaluations_total",
		Help: "Cost function evaluations, labeled by outcome.",
	}, []string{"outcome"}), "optimizer_evaluations_total")
	if err != nil {
		return nil, err
	}

	evalHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_evaluation_duration_seconds",
		Help:    "Duration of a single cost function evaluation.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}), "optimizer_evaluation_duration_seconds")
	if err != nil {
		return nil, err
	}

	genHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_generation_duration_seconds",
		Help:    "Wall-clock duration of one generation, evaluation barrier included.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}), "optimizer_generation_duration_seconds")
	if err != nil {
		return nil, err
	}

	generations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_generations_total",
		Help: "Completed generations across all runs.",
	}), "optimizer_generations_total")
	if err != nil {
		return nil, err
	}

	best, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optimizer_best_cost_seconds",
		Help: "Best worst-case revisit time found so far in the current run.",
	}), "optimizer_best_cost_seconds")
	if err != nil {
		return nil, err
	}

	unbounded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_unbounded_genomes_total",
		Help: "Evaluated genomes leaving at least one mesh point uncovered.",
	}), "optimizer_unbounded_genomes_total")
	if err != nil {
		return nil, err
	}

	return &OptimizerCollector{
		gatherer:           gatherer,
		Evaluations:        evaluations,
		EvaluationDuration: evalHistogram,
		GenerationDuration: genHistogram,
		Generations:        generations,
		BestCost:           best,
		UnboundedGenomes:   unbounded,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *OptimizerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveEvaluation records one evaluation outcome and duration.
func (c *OptimizerCollector) ObserveEvaluation(outcome string, cost float64, d time.Duration) {
	if c == nil {
		return
	}
	if c.Evaluations != nil {
		c.Evaluations.WithLabelValues(outcome).Inc()
	}
	if c.EvaluationDuration != nil {
		c.EvaluationDuration.Observe(d.Seconds())
	}
	if outcome == OutcomeOK && math.IsInf(cost, 1) && c.UnboundedGenomes != nil {
		c.UnboundedGenomes.Inc()
	}
}

// ObserveGeneration records a completed generation.
func (c *OptimizerCollector) ObserveGeneration(d time.Duration, runningBest float64) {
	if c == nil {
		return
	}
	if c.Generations != nil {
		c.Generations.Inc()
	}
	if c.GenerationDuration != nil {
		c.GenerationDuration.Observe(d.Seconds())
	}
	// Gauges can hold +Inf, but dashboards cope better with a missing sample.
	if c.BestCost != nil && !math.IsInf(runningBest, 0) {
		c.BestCost.Set(runningBest)
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
