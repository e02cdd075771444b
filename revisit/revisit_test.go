package revisit

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

var (
	t0     = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window = timectrl.Window{Start: t0, End: t0.Add(100 * time.Second)}
	p      = model.GeodeticPoint{Latitude: 0.1, Longitude: 0.2}
)

func at(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

func ev(sat string, s int, k visibility.Kind) visibility.Event {
	return visibility.Event{Point: p, SatelliteID: sat, Time: at(s), Kind: k}
}

func TestPointRevisitScenarios(t *testing.T) {
	tests := []struct {
		name   string
		enters []int
		exits  []int
		want   float64
	}{
		{"two passes", []int{10, 50}, []int{20, 90}, 30},
		{"overlapping satellites", []int{10, 15}, []int{20, 30}, 70},
		{"single enter mid window", []int{40}, nil, 40},
		{"enter at start", []int{0}, []int{60}, 40},
		{"covered throughout", []int{0}, nil, 0},
		{"no enter", nil, []int{30}, math.Inf(1)},
		{"exit and enter together", []int{10, 30}, []int{30, 95}, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var en, ex []time.Time
			for _, s := range tc.enters {
				en = append(en, at(s))
			}
			for _, s := range tc.exits {
				ex = append(ex, at(s))
			}
			got, err := PointRevisit(en, ex, window)
			if err != nil {
				t.Fatalf("PointRevisit error: %v", err)
			}
			if got.Gap != tc.want {
				t.Fatalf("gap = %v, want %v", got.Gap, tc.want)
			}
		})
	}
}

func TestSingleEnterHasNoTrailingGap(t *testing.T) {
	// Depth stays at one after the Enter, so tf - t_mid is never a candidate.
	got, err := PointRevisit([]time.Time{at(20)}, nil, window)
	if err != nil {
		t.Fatalf("PointRevisit error: %v", err)
	}
	if got.Gap != 20 {
		t.Fatalf("gap = %v, want 20 (80 would mean a trailing gap was recorded)", got.Gap)
	}
}

func TestUnmatchedExitDoesNotMoveCoverageStart(t *testing.T) {
	got, err := PointRevisit([]time.Time{at(70)}, []time.Time{at(30), at(80)}, window)
	if err != nil {
		t.Fatalf("PointRevisit error: %v", err)
	}
	// Gaps: [0,70) = 70 and [80,100) = 20. Had the exit at 30 reset the
	// start, the first gap would read 40.
	if got.Gap != 70 {
		t.Fatalf("gap = %v, want 70", got.Gap)
	}
	if len(got.UnmatchedExits) != 1 || !got.UnmatchedExits[0].Equal(at(30)) {
		t.Fatalf("unmatched = %v, want [t0+30s]", got.UnmatchedExits)
	}
}

func TestEventsOutsideWindowAreClamped(t *testing.T) {
	got, err := PointRevisit([]time.Time{at(-50)}, []time.Time{at(150)}, window)
	if err != nil {
		t.Fatalf("PointRevisit error: %v", err)
	}
	if got.Gap != 0 {
		t.Fatalf("gap = %v, want 0 for full coverage", got.Gap)
	}
}

func TestPassesOutsideOrOnWindowEdges(t *testing.T) {
	tests := []struct {
		name   string
		enters []int
		exits  []int
		want   float64
	}{
		{"pass before window", []int{-20, 50}, []int{-10, 60}, 50},
		{"pass after window", []int{10, 150}, []int{40, 160}, 60},
		{"zero length pass", []int{10, 50}, []int{20, 50}, 50},
		{"zero length pass at start", []int{0}, []int{0}, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var en, ex []time.Time
			for _, s := range tc.enters {
				en = append(en, at(s))
			}
			for _, s := range tc.exits {
				ex = append(ex, at(s))
			}
			got, err := PointRevisit(en, ex, window)
			if err != nil {
				t.Fatalf("PointRevisit error: %v", err)
			}
			if got.Gap != tc.want {
				t.Fatalf("gap = %v, want %v", got.Gap, tc.want)
			}
			if len(got.UnmatchedExits) != 0 {
				t.Fatalf("unmatched exits = %v, want none", got.UnmatchedExits)
			}
		})
	}
}

func TestPointRevisitDoesNotMutateInputs(t *testing.T) {
	en := []time.Time{at(50), at(10)}
	ex := []time.Time{at(90), at(20)}
	first, _ := PointRevisit(en, ex, window)
	second, _ := PointRevisit(en, ex, window)
	if first.Gap != second.Gap || first.Gap != 30 {
		t.Fatalf("gaps = %v, %v; want 30 twice", first.Gap, second.Gap)
	}
	if !en[0].Equal(at(50)) || !ex[0].Equal(at(90)) {
		t.Fatalf("inputs were reordered")
	}
}

func TestAnalyzeZone(t *testing.T) {
	q := model.GeodeticPoint{Latitude: 0.3, Longitude: 0.2}
	r := model.GeodeticPoint{Latitude: 0.5, Longitude: 0.2}
	acc := NewAccumulator([]model.GeodeticPoint{p, q, r}, window)

	acc.Add(
		ev("a", 10, visibility.Enter), ev("a", 20, visibility.Exit),
		ev("a", 50, visibility.Enter), ev("a", 90, visibility.Exit),
		visibility.Event{Point: q, SatelliteID: "b", Time: at(5), Kind: visibility.Enter},
		visibility.Event{Point: q, SatelliteID: "b", Time: at(60), Kind: visibility.Exit},
		visibility.Event{Point: model.GeodeticPoint{Latitude: 9}, Time: at(1), Kind: visibility.Enter},
	)

	res := Analyze(context.Background(), acc, logging.Noop())
	if !math.IsInf(res.Max, 1) || res.Unbounded != 1 || res.WorstIndex != 2 {
		t.Fatalf("result = %+v, want unbounded at point 2", res)
	}
	if res.PerPoint[0] != 30 || res.PerPoint[1] != 40 {
		t.Fatalf("per point = %v, want [30 40 +Inf]", res.PerPoint)
	}
	if res.ForeignEvents != 1 {
		t.Fatalf("ForeignEvents = %d, want 1", res.ForeignEvents)
	}

	// Covering the last point makes the metric finite.
	acc.Add(visibility.Event{Point: r, Time: at(0), Kind: visibility.Enter})
	res = Analyze(context.Background(), acc, nil)
	if res.Max != 40 || res.WorstIndex != 1 {
		t.Fatalf("result = %+v, want max 40 at index 1", res)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	acc := NewAccumulator([]model.GeodeticPoint{p}, window)
	acc.Add(ev("a", 50, visibility.Enter), ev("b", 15, visibility.Enter), ev("a", 90, visibility.Exit), ev("b", 30, visibility.Exit))

	first := Analyze(context.Background(), acc, nil)
	second := Analyze(context.Background(), acc, nil)
	if first.Max != second.Max || first.PerPoint[0] != second.PerPoint[0] {
		t.Fatalf("analysis changed between runs: %+v vs %+v", first, second)
	}
	if first.Max != 20 {
		t.Fatalf("max = %v, want 20", first.Max)
	}
}

func TestAnalyzeEmptyMeshIsUnbounded(t *testing.T) {
	res := Analyze(context.Background(), NewAccumulator(nil, window), nil)
	if !math.IsInf(res.Max, 1) || res.WorstIndex != -1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestAnalyzeLogsUnmatchedExits(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Output: &buf})

	acc := NewAccumulator([]model.GeodeticPoint{p}, window)
	acc.Add(ev("a", 5, visibility.Exit), ev("a", 6, visibility.Exit), ev("a", 50, visibility.Enter))
	res := Analyze(context.Background(), acc, log)

	if res.UnmatchedExits != 2 {
		t.Fatalf("UnmatchedExits = %d, want 2", res.UnmatchedExits)
	}
	out := buf.String()
	if strings.Count(out, "exit without matching enter") != 2 {
		t.Fatalf("expected one warning per unmatched exit, got:\n%s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "count=2") {
		t.Fatalf("expected error summary with count, got:\n%s", out)
	}
}
