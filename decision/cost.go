package decision

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/constellation-optimizer/constellation"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/revisit"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

// CostFunction scores a genome by the worst revisit time (seconds) its
// constellation achieves over the schema's zone. It holds no mutable state
// and may be called from many goroutines at once.
type CostFunction struct {
	schema       *Schema
	builder      Builder
	source       visibility.Source
	window       timectrl.Window
	minElevation float64
	halfFOV      float64
	log          logging.Logger
}

// CostOption configures a CostFunction.
type CostOption func(*CostFunction)

// WithCostLogger sets the logger handed to each revisit analysis.
func WithCostLogger(l logging.Logger) CostOption {
	return func(c *CostFunction) { c.log = logging.OrNoop(l) }
}

// WithHalfFOV derives each satellite's elevation threshold from its
// semi-major axis and the sensor half field of view instead of using the
// fixed minimum elevation.
func WithHalfFOV(halfFOV float64) CostOption {
	return func(c *CostFunction) { c.halfFOV = halfFOV }
}

// NewCostFunction wires the evaluation pipeline. minElevation is radians.
func NewCostFunction(schema *Schema, builder Builder, source visibility.Source, window timectrl.Window, minElevation float64, opts ...CostOption) (*CostFunction, error) {
	switch {
	case schema == nil:
		return nil, errors.New("decision: nil schema")
	case builder == nil:
		return nil, errors.New("decision: nil builder")
	case source == nil:
		return nil, errors.New("decision: nil visibility source")
	}
	c := &CostFunction{
		schema:       schema,
		builder:      builder,
		source:       source,
		window:       window,
		minElevation: minElevation,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Schema returns the schema genomes are decoded with.
func (c *CostFunction) Schema() *Schema { return c.schema }

// Evaluation is the full outcome of scoring one genome.
type Evaluation struct {
	Cost          float64
	Revisit       revisit.Result
	Constellation *constellation.Constellation
}

// Cost returns the zone's worst revisit time for g, +Inf if some point is
// never covered.
func (c *CostFunction) Cost(ctx context.Context, g Genome) (float64, error) {
	ev, err := c.Evaluate(ctx, g)
	if err != nil {
		return revisit.Unbounded, err
	}
	return ev.Cost, nil
}

// Evaluate builds the constellation for g, collects visibility events of
// every satellite into a fresh accumulator and reduces them.
func (c *CostFunction) Evaluate(ctx context.Context, g Genome) (Evaluation, error) {
	if err := c.schema.Validate(g); err != nil {
		return Evaluation{}, err
	}
	con, err := c.builder.Build(c.schema, g)
	if err != nil {
		return Evaluation{}, fmt.Errorf("build constellation: %w", err)
	}

	points := c.schema.Zone().Mesh()
	acc := revisit.NewAccumulator(points, c.window)
	for _, sat := range con.Satellites() {
		events, err := c.source.Events(ctx, sat, points, c.window, c.threshold(sat))
		if err != nil {
			return Evaluation{}, fmt.Errorf("visibility of %s: %w", sat.ID, err)
		}
		acc.Add(events...)
	}

	res := revisit.Analyze(ctx, acc, c.log)
	return Evaluation{Cost: res.Max, Revisit: res, Constellation: con}, nil
}

func (c *CostFunction) threshold(sat model.Satellite) float64 {
	if c.halfFOV > 0 {
		return visibility.ElevationForHalfFOV(c.halfFOV, sat.Elements.SemiMajorAxis)
	}
	return c.minElevation
}
