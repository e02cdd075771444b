// Package revisit measures the longest coverage gap over each mesh point of
// a zone from the visibility events of every satellite in a constellation.
//
// Coverage at a point is tracked with a nesting count: each Enter raises the
// depth and each Exit lowers it, so overlapping passes of several satellites
// form one continuous covered interval. A gap is a stretch where the depth is
// zero, including the stretch from the window start to the first Enter and
// from the last return to zero to the window end.
package revisit

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

// ErrNoCandidate means a point had events but produced no gap. The point is
// then treated as never revisited.
var ErrNoCandidate = errors.New("revisit: no candidate gap")

// Unbounded is the revisit value of a point that is never covered.
var Unbounded = math.Inf(1)

// PointResult is the reduction of one point's events.
type PointResult struct {
	// Gap is the longest gap in seconds, +Inf when the point is never entered.
	Gap float64
	// UnmatchedExits lists Exit times that arrived while the depth was zero.
	UnmatchedExits []time.Time
}

// PointRevisit reduces the Enter and Exit times of one point over window.
// Inputs are copied, clamped into the window and sorted, so callers may pass
// the same slices repeatedly. At equal times an Exit closes open coverage
// before an Enter reopens it; with no open coverage the Enter goes first, so a
// zero-length pass or a pass clamped onto a window edge stays balanced.
func PointRevisit(enters, exits []time.Time, window timectrl.Window) (PointResult, error) {
	if len(enters) == 0 {
		return PointResult{Gap: Unbounded}, nil
	}
	en := clampSorted(enters, window)
	ex := clampSorted(exits, window)

	var res PointResult
	depth := 0
	start := window.Start
	best := math.Inf(-1)
	record := func(d time.Duration) {
		best = math.Max(best, d.Seconds())
	}

	i, j := 0, 0
	for i < len(en) || j < len(ex) {
		if j < len(ex) && (i >= len(en) || ex[j].Before(en[i]) || (ex[j].Equal(en[i]) && depth > 0)) {
			t := ex[j]
			j++
			depth--
			switch {
			case depth < 0:
				// Coverage never started, so start stays where it is.
				res.UnmatchedExits = append(res.UnmatchedExits, t)
				depth = 0
			case depth == 0:
				start = t
			}
			continue
		}
		t := en[i]
		i++
		if depth == 0 {
			record(t.Sub(start))
		}
		depth++
	}
	if depth == 0 {
		record(window.End.Sub(start))
	}

	if math.IsInf(best, -1) {
		res.Gap = Unbounded
		return res, ErrNoCandidate
	}
	res.Gap = best
	return res, nil
}

func clampSorted(ts []time.Time, w timectrl.Window) []time.Time {
	out := make([]time.Time, len(ts))
	for i, t := range ts {
		out[i] = w.Clamp(t)
	}
	slices.SortFunc(out, time.Time.Compare)
	return out
}

// Accumulator buckets events by mesh point for a single evaluation. It is
// not safe for concurrent use; every evaluation creates its own.
type Accumulator struct {
	window timectrl.Window
	points []model.GeodeticPoint
	index  map[model.GeodeticPoint]int
	enters [][]time.Time
	exits  [][]time.Time

	foreign int
}

// NewAccumulator prepares buckets for each mesh point.
func NewAccumulator(points []model.GeodeticPoint, window timectrl.Window) *Accumulator {
	a := &Accumulator{
		window: window,
		points: slices.Clone(points),
		index:  make(map[model.GeodeticPoint]int, len(points)),
		enters: make([][]time.Time, len(points)),
		exits:  make([][]time.Time, len(points)),
	}
	for i, p := range points {
		if _, dup := a.index[p]; !dup {
			a.index[p] = i
		}
	}
	return a
}

// Add records events. Events for points outside the mesh are counted and
// dropped.
func (a *Accumulator) Add(events ...visibility.Event) {
	for _, ev := range events {
		i, ok := a.index[ev.Point]
		if !ok {
			a.foreign++
			continue
		}
		switch ev.Kind {
		case visibility.Enter:
			a.enters[i] = append(a.enters[i], ev.Time)
		case visibility.Exit:
			a.exits[i] = append(a.exits[i], ev.Time)
		}
	}
}

// Window returns the analysis window.
func (a *Accumulator) Window() timectrl.Window { return a.window }

// Points returns the number of mesh points.
func (a *Accumulator) Points() int { return len(a.points) }

// Result is the zone-level revisit outcome.
type Result struct {
	// PerPoint holds each point's longest gap in seconds, in mesh order.
	PerPoint []float64
	// Max is the zone metric: the largest PerPoint value, +Inf if any point
	// is never covered or the mesh is empty.
	Max float64
	// WorstIndex is the mesh index of Max, -1 for an empty mesh.
	WorstIndex int

	Unbounded      int
	UnmatchedExits int
	NoCandidate    int
	ForeignEvents  int
}

// Analyze reduces every point of the accumulator. Unmatched exits are logged
// as warnings with an error summary per point; computation continues.
func Analyze(ctx context.Context, acc *Accumulator, log logging.Logger) Result {
	log = logging.OrNoop(log)
	res := Result{
		PerPoint:      make([]float64, len(acc.points)),
		Max:           Unbounded,
		WorstIndex:    -1,
		ForeignEvents: acc.foreign,
	}
	if acc.foreign > 0 {
		log.Warn(ctx, "events for points outside the mesh dropped", logging.Int("count", acc.foreign))
	}

	best := math.Inf(-1)
	for i := range acc.points {
		pr, err := PointRevisit(acc.enters[i], acc.exits[i], acc.window)
		if err != nil {
			res.NoCandidate++
			log.Error(ctx, "revisit reduction produced no gap",
				logging.Int("point", i),
				logging.String("location", acc.points[i].String()),
				logging.Err(err),
			)
		}
		if n := len(pr.UnmatchedExits); n > 0 {
			for _, t := range pr.UnmatchedExits {
				log.Warn(ctx, "exit without matching enter",
					logging.Int("point", i),
					logging.String("time", t.Format(time.RFC3339)),
				)
			}
			res.UnmatchedExits += n
			log.Error(ctx, "unmatched exits at point",
				logging.Int("point", i),
				logging.String("location", acc.points[i].String()),
				logging.Int("count", n),
			)
		}
		if math.IsInf(pr.Gap, 1) {
			res.Unbounded++
		}
		res.PerPoint[i] = pr.Gap
		if pr.Gap > best {
			best = pr.Gap
			res.WorstIndex = i
		}
	}
	if res.WorstIndex >= 0 {
		res.Max = best
	}
	return res
}
