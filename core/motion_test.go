package core

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/model"
)

func TestStaticMotionModel_NoChange(t *testing.T) {
	m := StaticMotionModel{Position: Vec3{X: 1, Y: 2, Z: 3}}
	for _, at := range []time.Time{testEpoch, testEpoch.Add(time.Hour)} {
		pos, err := m.PositionAt(at)
		if err != nil || pos != (Vec3{X: 1, Y: 2, Z: 3}) {
			t.Fatalf("static position at %s = %+v, %v", at, pos, err)
		}
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we check the orbit radius and that the position moves.
func TestOrbitalModelFromElements(t *testing.T) {
	m, err := NewOrbitalModel(model.Satellite{ID: "s1", Elements: leo(), Epoch: testEpoch}, 1)
	if err != nil {
		t.Fatalf("NewOrbitalModel error: %v", err)
	}

	first, err := m.PositionAt(testEpoch)
	if err != nil {
		t.Fatalf("PositionAt error: %v", err)
	}
	second, err := m.PositionAt(testEpoch.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("PositionAt error: %v", err)
	}

	for _, p := range []Vec3{first, second} {
		if r := p.Norm(); math.Abs(r-7_000_000) > 50_000 {
			t.Fatalf("orbit radius = %.0f m, want ≈7000 km", r)
		}
	}
	if first == second {
		t.Fatalf("expected orbital position to change over time, got %+v at both times", first)
	}
}

func TestOrbitalModelFromTLE_ISS(t *testing.T) {
	tle := TLE{
		Line1: "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
		Line2: "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760",
	}
	m, err := NewOrbitalModelFromTLE(tle)
	if err != nil {
		t.Fatalf("NewOrbitalModelFromTLE error: %v", err)
	}
	pos, err := m.PositionAt(time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PositionAt error: %v", err)
	}
	if r := pos.Norm(); r < 6_600_000 || r > 6_900_000 {
		t.Fatalf("ISS radius = %.0f m", r)
	}
	if m.TLE() != tle {
		t.Fatalf("TLE accessor mismatch")
	}
}

func TestOrbitalModelRejectsShortLines(t *testing.T) {
	if _, err := NewOrbitalModelFromTLE(TLE{Line1: "1 short", Line2: "2 short"}); err == nil {
		t.Fatalf("expected error for malformed TLE")
	}
}

func TestOrbitalModelConcurrentUse(t *testing.T) {
	m, err := NewOrbitalModel(model.Satellite{ID: "s1", Elements: leo(), Epoch: testEpoch}, 1)
	if err != nil {
		t.Fatalf("NewOrbitalModel error: %v", err)
	}
	want, _ := m.PositionAt(testEpoch.Add(time.Minute))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.PositionAt(testEpoch.Add(time.Minute))
			if err != nil || got != want {
				t.Errorf("concurrent PositionAt = %+v, %v; want %+v", got, err, want)
			}
		}()
	}
	wg.Wait()
}
