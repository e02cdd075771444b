package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/constellation-optimizer/model"
)

func TestGeodeticToECEFAxes(t *testing.T) {
	eq := GeodeticToECEF(model.GeodeticPoint{})
	if math.Abs(eq.X-WGS84A) > 1e-6 || math.Abs(eq.Y) > 1e-6 || math.Abs(eq.Z) > 1e-6 {
		t.Fatalf("equator/prime meridian = %+v, want (%v, 0, 0)", eq, WGS84A)
	}

	pole := GeodeticToECEF(model.GeodeticPoint{Latitude: math.Pi / 2})
	polarRadius := WGS84A * (1 - WGS84F)
	if math.Abs(pole.Z-polarRadius) > 1e-3 {
		t.Fatalf("north pole Z = %v, want %v", pole.Z, polarRadius)
	}
}

func TestElevationOverheadAndHorizon(t *testing.T) {
	obs := model.GeodeticPoint{Latitude: 0.3, Longitude: -1.2}
	o := NewObserver(obs)

	// Straight up along the ellipsoid normal.
	up := GeodeticToECEF(model.GeodeticPoint{Latitude: obs.Latitude, Longitude: obs.Longitude, Altitude: 500_000})
	if el := o.Elevation(up); math.Abs(el-math.Pi/2) > 1e-9 {
		t.Fatalf("overhead elevation = %v, want π/2", el)
	}

	// The far side of the Earth is below the horizon.
	far := GeodeticToECEF(model.GeodeticPoint{Latitude: -obs.Latitude, Longitude: obs.Longitude + math.Pi, Altitude: 500_000})
	if el := o.Elevation(far); el >= 0 {
		t.Fatalf("antipodal elevation = %v, want negative", el)
	}

	if el := o.Elevation(o.ECEF); el != math.Pi/2 {
		t.Fatalf("coincident target elevation = %v, want π/2", el)
	}
}

func TestElevationMatchesObserver(t *testing.T) {
	obs := model.GeodeticPoint{Latitude: 0.7, Longitude: 0.1, Altitude: 120}
	target := Vec3{X: 7_000_000, Y: 100_000, Z: 2_000_000}
	if Elevation(obs, target) != NewObserver(obs).Elevation(target) {
		t.Fatalf("Elevation and Observer.Elevation disagree")
	}
}

func TestVec3Helpers(t *testing.T) {
	a := Vec3{X: 3, Y: 4}
	if a.Norm() != 5 {
		t.Fatalf("Norm = %v, want 5", a.Norm())
	}
	if d := a.DistanceTo(Vec3{}); d != 5 {
		t.Fatalf("DistanceTo = %v, want 5", d)
	}
	if a.Dot(Vec3{X: 1, Y: 1}) != 7 {
		t.Fatalf("Dot mismatch")
	}
}
