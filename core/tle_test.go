package core

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/model"
)

var testEpoch = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func leo() model.OrbitalElements {
	return model.OrbitalElements{
		SemiMajorAxis:     7_000_000,
		Eccentricity:      0.001,
		Inclination:       97.8 * math.Pi / 180,
		RAAN:              -math.Pi / 4,
		ArgumentOfPerigee: 0,
		MeanAnomaly:       3 * math.Pi / 2,
	}
}

func TestSynthesizeTLELayout(t *testing.T) {
	tle, err := SynthesizeTLE(leo(), testEpoch, 42)
	if err != nil {
		t.Fatalf("SynthesizeTLE error: %v", err)
	}
	if len(tle.Line1) != 69 || len(tle.Line2) != 69 {
		t.Fatalf("line lengths = %d/%d, want 69/69\n%s\n%s", len(tle.Line1), len(tle.Line2), tle.Line1, tle.Line2)
	}
	if !strings.HasPrefix(tle.Line1, "1 00042U") || !strings.HasPrefix(tle.Line2, "2 00042 ") {
		t.Fatalf("unexpected prefixes:\n%s\n%s", tle.Line1, tle.Line2)
	}
	// Epoch 2024 day 61.25.
	if got := tle.Line1[18:32]; got != "24061.25000000" {
		t.Fatalf("epoch field = %q", got)
	}
	if got := strings.TrimSpace(tle.Line2[8:16]); got != "97.8000" {
		t.Fatalf("inclination field = %q", got)
	}
	if got := strings.TrimSpace(tle.Line2[17:25]); got != "315.0000" {
		t.Fatalf("RAAN field = %q, want normalised 315.0000", got)
	}
	if got := tle.Line2[26:33]; got != "0010000" {
		t.Fatalf("eccentricity field = %q", got)
	}
	for _, line := range []string{tle.Line1, tle.Line2} {
		want := byte('0' + tleChecksum(line[:68]))
		if line[68] != want {
			t.Fatalf("checksum of %q = %c, want %c", line, line[68], want)
		}
	}
}

func TestTLEChecksumKnownLine(t *testing.T) {
	for _, line := range []string{
		"1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927",
		"2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537",
	} {
		if got := tleChecksum(line[:68]); got != 7 {
			t.Fatalf("checksum of %q = %d, want 7", line, got)
		}
	}
}

func TestMeanMotion(t *testing.T) {
	// Geostationary radius gives roughly one revolution per sidereal day.
	if n := MeanMotionRevPerDay(42_164_000); math.Abs(n-1.0027) > 1e-3 {
		t.Fatalf("GEO mean motion = %v, want ≈1.0027", n)
	}
}

func TestValidateElementsRejects(t *testing.T) {
	cases := map[string]func(*model.OrbitalElements){
		"inside earth":    func(e *model.OrbitalElements) { e.SemiMajorAxis = 6_000_000 },
		"hyperbolic":      func(e *model.OrbitalElements) { e.Eccentricity = 1.2 },
		"negative ecc":    func(e *model.OrbitalElements) { e.Eccentricity = -0.1 },
		"bad inclination": func(e *model.OrbitalElements) { e.Inclination = 4 },
		"nan anomaly":     func(e *model.OrbitalElements) { e.MeanAnomaly = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			el := leo()
			mutate(&el)
			if _, err := SynthesizeTLE(el, testEpoch, 1); !errors.Is(err, ErrInvalidElements) {
				t.Fatalf("err = %v, want ErrInvalidElements", err)
			}
		})
	}

	if _, err := SynthesizeTLE(leo(), testEpoch, 100000); !errors.Is(err, ErrInvalidElements) {
		t.Fatalf("six-digit catalogue number accepted")
	}
}
