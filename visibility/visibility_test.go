package visibility

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// passModel puts the satellite overhead of target while the offset from t0
// (in seconds) lies in one of the [from, to) passes, and on the far side of
// the Earth otherwise.
type passModel struct {
	target model.GeodeticPoint
	passes [][2]int64
}

func (m passModel) PositionAt(t time.Time) (core.Vec3, error) {
	off := t.Unix() - t0.Unix()
	for _, p := range m.passes {
		if off >= p[0] && off < p[1] {
			return core.GeodeticToECEF(model.GeodeticPoint{Latitude: m.target.Latitude, Longitude: m.target.Longitude, Altitude: 600_000}), nil
		}
	}
	return core.GeodeticToECEF(model.GeodeticPoint{Latitude: -m.target.Latitude, Longitude: m.target.Longitude + math.Pi, Altitude: 600_000}), nil
}

func fakeSource(m core.MotionModel, step time.Duration) *SGP4Source {
	return NewSGP4Source(
		WithStep(step),
		WithModelFactory(func(model.Satellite) (core.MotionModel, error) { return m, nil }),
	)
}

func TestSamplingBisectsToTheSecond(t *testing.T) {
	p := model.GeodeticPoint{Latitude: 0.4, Longitude: 0.2}
	src := fakeSource(passModel{target: p, passes: [][2]int64{{100, 200}, {437, 901}}}, 30*time.Second)
	w, _ := timectrl.WindowFrom(t0, time.Hour)

	events, err := src.Events(context.Background(), model.Satellite{ID: "s1"}, []model.GeodeticPoint{p}, w, 0)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}

	want := []struct {
		off  int64
		kind Kind
	}{{100, Enter}, {200, Exit}, {437, Enter}, {901, Exit}}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if got := ev.Time.Unix() - t0.Unix(); got != want[i].off || ev.Kind != want[i].kind {
			t.Fatalf("event %d = (%d, %s), want (%d, %s)", i, got, ev.Kind, want[i].off, want[i].kind)
		}
		if ev.SatelliteID != "s1" || ev.Point != p {
			t.Fatalf("event %d attribution = %+v", i, ev)
		}
	}
}

func TestVisibleAtStartEmitsEnterAtStart(t *testing.T) {
	p := model.GeodeticPoint{Latitude: -0.2, Longitude: 1.0}
	src := fakeSource(passModel{target: p, passes: [][2]int64{{0, 50}}}, 20*time.Second)
	w, _ := timectrl.WindowFrom(t0, 10*time.Minute)

	events, err := src.Events(context.Background(), model.Satellite{ID: "s"}, []model.GeodeticPoint{p}, w, 0.1)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 2 || events[0].Kind != Enter || !events[0].Time.Equal(t0) {
		t.Fatalf("events = %+v, want Enter at t0 then Exit", events)
	}
	if got := events[1].Time.Sub(t0); got != 50*time.Second {
		t.Fatalf("exit offset = %v, want 50s", got)
	}
}

func TestEventsSortedAcrossPoints(t *testing.T) {
	a := model.GeodeticPoint{Latitude: 0.1, Longitude: 0.1}
	b := model.GeodeticPoint{Latitude: -0.1, Longitude: 2.5}
	m := multiModel{
		a: passModel{target: a, passes: [][2]int64{{400, 500}}},
		b: passModel{target: b, passes: [][2]int64{{100, 350}}},
	}
	w, _ := timectrl.WindowFrom(t0, 20*time.Minute)

	src := NewSGP4Source(WithStep(45*time.Second), WithModelFactory(func(model.Satellite) (core.MotionModel, error) { return m, nil }))
	events, err := src.Events(context.Background(), model.Satellite{ID: "s"}, []model.GeodeticPoint{a, b}, w, 0)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Time.Before(events[i-1].Time) {
			t.Fatalf("events out of order at %d: %+v", i, events)
		}
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
}

// multiModel is overhead of whichever point has an active pass. Passes must
// not overlap.
type multiModel map[model.GeodeticPoint]passModel

func (m multiModel) PositionAt(t time.Time) (core.Vec3, error) {
	off := t.Unix() - t0.Unix()
	for _, pm := range m {
		for _, p := range pm.passes {
			if off >= p[0] && off < p[1] {
				return pm.PositionAt(t)
			}
		}
	}
	return core.Vec3{Z: -7_000_000}, nil
}

func TestModelErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	src := NewSGP4Source(WithModelFactory(func(model.Satellite) (core.MotionModel, error) { return nil, boom }))
	w, _ := timectrl.WindowFrom(t0, time.Minute)
	if _, err := src.Events(context.Background(), model.Satellite{}, nil, w, 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := fakeSource(core.StaticMotionModel{}, time.Second)
	w, _ := timectrl.WindowFrom(t0, time.Hour)
	if _, err := src.Events(ctx, model.Satellite{}, nil, w, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSGP4EventsAlternate(t *testing.T) {
	sat := model.Satellite{
		ID:    "leo",
		Epoch: t0,
		Elements: model.OrbitalElements{
			SemiMajorAxis: 7_000_000,
			Eccentricity:  0.001,
			Inclination:   97.8 * math.Pi / 180,
		},
	}
	p := model.GeodeticPoint{Latitude: 0.7, Longitude: 0.2}
	w, _ := timectrl.WindowFrom(t0, 24*time.Hour)

	events, err := NewSGP4Source(WithStep(time.Minute)).Events(context.Background(), sat, []model.GeodeticPoint{p}, w, 0)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected passes over a mid-latitude point in one day")
	}
	for i, ev := range events {
		if !w.Contains(ev.Time) {
			t.Fatalf("event %d outside window: %v", i, ev.Time)
		}
		if i > 0 && ev.Kind == events[i-1].Kind {
			t.Fatalf("events %d and %d have the same kind %s", i-1, i, ev.Kind)
		}
	}
}

func TestFootprintGeometry(t *testing.T) {
	const a = 7_000_000.0
	el := ElevationForHalfFOV(DefaultHalfFOV, a)
	if el <= 0 || el >= math.Pi/2 {
		t.Fatalf("elevation = %v, want in (0, π/2)", el)
	}
	// Central angle seen from that elevation matches the sensor footprint.
	alpha := -DefaultHalfFOV + math.Asin(a/core.WGS84A*math.Sin(DefaultHalfFOV))
	if got := CentralAngle(a, el); math.Abs(got-alpha) > 1e-9 {
		t.Fatalf("CentralAngle = %v, want %v", got, alpha)
	}

	if got := ElevationForHalfFOV(math.Pi/2, a); got != 0 {
		t.Fatalf("wide FOV elevation = %v, want 0", got)
	}

	step := AdaptiveStep(a, el)
	if step < 5*time.Second || step > 15*time.Second {
		t.Fatalf("AdaptiveStep = %v, want ≈10s", step)
	}
	if AdaptiveStep(a, math.Pi/2) != time.Second {
		t.Fatalf("zenith-only footprint should fall back to one second")
	}
}

func TestRecordedFiltersByPointAndSatellite(t *testing.T) {
	a := model.GeodeticPoint{Latitude: 1}
	b := model.GeodeticPoint{Latitude: 2}
	rec := NewRecorded(map[string][]Event{
		"s1": {
			{Point: b, Time: t0.Add(20 * time.Second), Kind: Enter},
			{Point: a, Time: t0.Add(10 * time.Second), Kind: Enter},
		},
	})
	w, _ := timectrl.WindowFrom(t0, time.Hour)

	got, err := rec.Events(context.Background(), model.Satellite{ID: "s1"}, []model.GeodeticPoint{a}, w, 0)
	if err != nil || len(got) != 1 || got[0].Point != a || got[0].SatelliteID != "s1" {
		t.Fatalf("Events = %+v, %v", got, err)
	}
	if got, _ := rec.Events(context.Background(), model.Satellite{ID: "other"}, []model.GeodeticPoint{a, b}, w, 0); len(got) != 0 {
		t.Fatalf("unknown satellite returned %d events", len(got))
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{Enter, Exit} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
