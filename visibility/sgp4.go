package visibility

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
)

// DefaultHalfFOV is the sensor half field of view (radians) used when the
// configuration gives neither a field of view nor an elevation.
const DefaultHalfFOV = 0.18

// minStep bounds the sampling step from below; SGP4 is driven in whole seconds.
const minStep = time.Second

// ModelFactory builds a motion model for a satellite.
type ModelFactory func(model.Satellite) (core.MotionModel, error)

// SGP4Source samples satellite elevation over each point and refines every
// threshold crossing by bisection to the second.
type SGP4Source struct {
	step     time.Duration
	newModel ModelFactory
	log      logging.Logger
}

// SGP4Option configures an SGP4Source.
type SGP4Option func(*SGP4Source)

// WithStep fixes the sampling step. Zero selects the adaptive step.
func WithStep(d time.Duration) SGP4Option {
	return func(s *SGP4Source) { s.step = d }
}

// WithModelFactory replaces SGP4 with another motion model.
func WithModelFactory(f ModelFactory) SGP4Option {
	return func(s *SGP4Source) { s.newModel = f }
}

// WithLogger sets the source's logger.
func WithLogger(l logging.Logger) SGP4Option {
	return func(s *SGP4Source) { s.log = logging.OrNoop(l) }
}

// NewSGP4Source returns a source that propagates with SGP4 by default.
func NewSGP4Source(opts ...SGP4Option) *SGP4Source {
	s := &SGP4Source{
		newModel: func(sat model.Satellite) (core.MotionModel, error) {
			// The catalogue number plays no part in propagation.
			return core.NewOrbitalModel(sat, 1)
		},
		log: logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events implements Source.
func (s *SGP4Source) Events(ctx context.Context, sat model.Satellite, points []model.GeodeticPoint, window timectrl.Window, threshold float64) ([]Event, error) {
	m, err := s.newModel(sat)
	if err != nil {
		return nil, err
	}

	step := s.step
	if step <= 0 {
		step = AdaptiveStep(sat.Elements.SemiMajorAxis, threshold)
	}

	observers := make([]core.Observer, len(points))
	for i, p := range points {
		observers[i] = core.NewObserver(p)
	}

	pos := newPositionCache(m)
	visible := make([]bool, len(points))
	var events []Event

	first := true
	var prev time.Time
	for t := range window.Ticks(step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pos.at(t.Unix())
		if err != nil {
			return nil, fmt.Errorf("satellite %s: %w", sat.ID, err)
		}
		for i, o := range observers {
			now := o.Elevation(r) > threshold
			switch {
			case first:
				if now {
					events = append(events, Event{Point: points[i], SatelliteID: sat.ID, Time: window.Start, Kind: Enter})
				}
			case now != visible[i]:
				at, err := s.crossing(pos, o, threshold, prev.Unix(), t.Unix(), now)
				if err != nil {
					return nil, fmt.Errorf("satellite %s: %w", sat.ID, err)
				}
				kind := Exit
				if now {
					kind = Enter
				}
				events = append(events, Event{Point: points[i], SatelliteID: sat.ID, Time: window.Clamp(at), Kind: kind})
			}
			visible[i] = now
		}
		first = false
		prev = t
	}

	SortEvents(events)
	s.log.Debug(ctx, "visibility sampled",
		logging.String("satellite_id", sat.ID),
		logging.Duration("step", step),
		logging.Int("points", len(points)),
		logging.Int("events", len(events)),
	)
	return events, nil
}

// crossing returns the first whole second in (lo, hi] at which the
// visibility state equals want. The state at lo is !want and at hi is want.
func (s *SGP4Source) crossing(pos *positionCache, o core.Observer, threshold float64, lo, hi int64, want bool) (time.Time, error) {
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		r, err := pos.at(mid)
		if err != nil {
			return time.Time{}, err
		}
		if (o.Elevation(r) > threshold) == want {
			hi = mid
		} else {
			lo = mid
		}
	}
	return time.Unix(hi, 0).UTC(), nil
}

// positionCache memoises positions per whole second within one Events call.
type positionCache struct {
	m     core.MotionModel
	cache map[int64]core.Vec3
}

func newPositionCache(m core.MotionModel) *positionCache {
	return &positionCache{m: m, cache: make(map[int64]core.Vec3)}
}

func (c *positionCache) at(sec int64) (core.Vec3, error) {
	if r, ok := c.cache[sec]; ok {
		return r, nil
	}
	r, err := c.m.PositionAt(time.Unix(sec, 0).UTC())
	if err != nil {
		return core.Vec3{}, err
	}
	c.cache[sec] = r
	return r, nil
}

// ElevationForHalfFOV converts a nadir-pointing sensor half field of view to
// the minimum ground elevation at which a point is inside the footprint, for
// a satellite at radius a (metres). A field of view wider than the Earth's
// limb gives the horizon.
func ElevationForHalfFOV(halfFOV, a float64) float64 {
	s := a / core.WGS84A * math.Sin(halfFOV)
	if s >= 1 {
		return 0
	}
	alpha := -halfFOV + math.Asin(s)
	return math.Pi/2 - (halfFOV + alpha)
}

// CentralAngle is the Earth central angle between the sub-satellite point and
// the edge of the region seen above minElevation from radius a.
func CentralAngle(a, minElevation float64) float64 {
	c := core.WGS84A / a * math.Cos(minElevation)
	if c > 1 {
		c = 1
	}
	return math.Acos(c) - minElevation
}

// AdaptiveStep returns a third of the longest pass duration over a point for
// a circular orbit of radius a, never less than a second.
func AdaptiveStep(a, minElevation float64) time.Duration {
	const muEarth = core.MuWGS72 * 1e9 // m³/s²
	alpha := CentralAngle(a, minElevation)
	if !(alpha > 0) {
		return minStep
	}
	period := 2 * math.Pi * math.Sqrt(a*a*a/muEarth)
	pass := alpha / math.Pi * period
	step := time.Duration(pass / 3 * float64(time.Second)).Truncate(time.Second)
	if step < minStep {
		return minStep
	}
	return step
}
