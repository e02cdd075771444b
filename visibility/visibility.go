// Package visibility produces the elevation-threshold crossing events of
// satellites over ground mesh points.
package visibility

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
)

// Kind says whether a satellite came into or dropped out of view.
type Kind int

const (
	Enter Kind = iota
	Exit
)

func (k Kind) String() string {
	switch k {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "enter":
		return Enter, nil
	case "exit":
		return Exit, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event marks the instant a satellite's elevation over a point crosses the
// threshold.
type Event struct {
	Point       model.GeodeticPoint
	SatelliteID string
	Time        time.Time
	Kind        Kind
}

// Source computes visibility events of one satellite over a set of points
// during a window. threshold is the minimum elevation in radians. Returned
// events are ordered by time and, for a given point, alternate Enter/Exit.
// Implementations must be safe for concurrent use.
type Source interface {
	Events(ctx context.Context, sat model.Satellite, points []model.GeodeticPoint, window timectrl.Window, threshold float64) ([]Event, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, sat model.Satellite, points []model.GeodeticPoint, window timectrl.Window, threshold float64) ([]Event, error)

// Events calls f.
func (f SourceFunc) Events(ctx context.Context, sat model.Satellite, points []model.GeodeticPoint, window timectrl.Window, threshold float64) ([]Event, error) {
	return f(ctx, sat, points, window, threshold)
}

// SortEvents orders events by time, keeping the relative order of events at
// the same instant.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Time.Compare(b.Time)
	})
}

// Recorded replays a fixed set of events per satellite ID.
type Recorded struct {
	events map[string][]Event
}

// NewRecorded copies events keyed by satellite ID.
func NewRecorded(events map[string][]Event) *Recorded {
	r := &Recorded{events: make(map[string][]Event, len(events))}
	for id, evs := range events {
		cp := slices.Clone(evs)
		for i := range cp {
			cp[i].SatelliteID = id
		}
		SortEvents(cp)
		r.events[id] = cp
	}
	return r
}

// Events returns the recorded events of sat over the requested points.
// Window and threshold are ignored; the recording already reflects them.
func (r *Recorded) Events(ctx context.Context, sat model.Satellite, points []model.GeodeticPoint, _ timectrl.Window, _ float64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[model.GeodeticPoint]struct{}, len(points))
	for _, p := range points {
		want[p] = struct{}{}
	}
	var out []Event
	for _, ev := range r.events[sat.ID] {
		if _, ok := want[ev.Point]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
