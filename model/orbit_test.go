package model

import (
	"math"
	"testing"
)

func TestKeyForQuantisesAndNormalises(t *testing.T) {
	a := KeyFor(0.9, -math.Pi/2)
	b := KeyFor(0.9+1e-8, 3*math.Pi/2)
	if a != b {
		t.Fatalf("expected equal keys, got %+v vs %+v", a, b)
	}

	if c := KeyFor(0.9+1e-5, 3*math.Pi/2); c == a {
		t.Fatalf("keys 1e-5 rad apart should differ")
	}

	if got := KeyFor(1.0, 2*math.Pi-1e-9); got.RAAN != 0 {
		t.Fatalf("RAAN near full turn should wrap to 0, got %d", got.RAAN)
	}
}

func TestPlaneKeyRadians(t *testing.T) {
	k := KeyFor(0.5, 1.25)
	if math.Abs(k.InclinationRad()-0.5) > PlaneKeyResolution || math.Abs(k.RAANRad()-1.25) > PlaneKeyResolution {
		t.Fatalf("round trip drifted: %v %v", k.InclinationRad(), k.RAANRad())
	}
}

func TestSatellitePlane(t *testing.T) {
	s := Satellite{ID: "s", Elements: OrbitalElements{Inclination: 1, RAAN: 2}}
	if s.Plane() != KeyFor(1, 2) {
		t.Fatalf("Satellite.Plane mismatch")
	}
}
