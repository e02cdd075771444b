package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/model"
)

// MuWGS72 is the WGS-72 gravitational parameter (km³/s²) used by SGP4.
const MuWGS72 = 398600.8

// earthRadiusWGS72Km is the equatorial radius SGP4 assumes.
const earthRadiusWGS72Km = 6378.135

// ErrInvalidElements is returned when an element set cannot be expressed as a TLE.
var ErrInvalidElements = errors.New("invalid orbital elements")

// TLE is a two-line element set.
type TLE struct {
	Line1 string
	Line2 string
}

// MeanMotionRevPerDay converts a semi-major axis in metres to a Keplerian
// mean motion in revolutions per day.
func MeanMotionRevPerDay(semiMajorAxisM float64) float64 {
	aKm := semiMajorAxisM / 1000
	return math.Sqrt(MuWGS72/(aKm*aKm*aKm)) * 86400 / (2 * math.Pi)
}

// ValidateElements checks that elements describe a closed orbit above the
// Earth's surface with angles SGP4 accepts.
func ValidateElements(el model.OrbitalElements) error {
	switch {
	case math.IsNaN(el.SemiMajorAxis) || el.SemiMajorAxis/1000 <= earthRadiusWGS72Km:
		return fmt.Errorf("%w: semi-major axis %.1f m is inside the Earth", ErrInvalidElements, el.SemiMajorAxis)
	case !(el.Eccentricity >= 0 && el.Eccentricity < 1):
		return fmt.Errorf("%w: eccentricity %v outside [0, 1)", ErrInvalidElements, el.Eccentricity)
	case !(el.Inclination >= 0 && el.Inclination <= math.Pi):
		return fmt.Errorf("%w: inclination %v outside [0, π]", ErrInvalidElements, el.Inclination)
	}
	for _, a := range []float64{el.RAAN, el.ArgumentOfPerigee, el.MeanAnomaly} {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("%w: non-finite angle", ErrInvalidElements)
		}
	}
	if n := MeanMotionRevPerDay(el.SemiMajorAxis); n >= 100 {
		return fmt.Errorf("%w: mean motion %.3f rev/day", ErrInvalidElements, n)
	}
	return nil
}

// SynthesizeTLE formats elements valid at epoch as a TLE with zero drag
// terms. catalog is the NORAD catalogue number written into both lines and
// must fit five digits.
func SynthesizeTLE(el model.OrbitalElements, epoch time.Time, catalog int) (TLE, error) {
	if err := ValidateElements(el); err != nil {
		return TLE{}, err
	}
	if catalog < 0 || catalog > 99999 {
		return TLE{}, fmt.Errorf("%w: catalogue number %d", ErrInvalidElements, catalog)
	}

	epoch = epoch.UTC()
	midnight := time.Date(epoch.Year(), epoch.Month(), epoch.Day(), 0, 0, 0, 0, time.UTC)
	day := float64(epoch.YearDay()) + epoch.Sub(midnight).Seconds()/86400

	l1 := fmt.Sprintf("1 %05dU %-8s %02d%012.8f", catalog, "00001A", epoch.Year()%100, day) +
		"  .00000000  00000-0  00000-0 0  999"

	ecc := int64(math.Round(el.Eccentricity * 1e7))
	if ecc > 9999999 {
		ecc = 9999999
	}
	l2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		catalog,
		degrees(el.Inclination),
		degrees(model.NormalizeAngle(el.RAAN)),
		ecc,
		degrees(model.NormalizeAngle(el.ArgumentOfPerigee)),
		degrees(model.NormalizeAngle(el.MeanAnomaly)),
		MeanMotionRevPerDay(el.SemiMajorAxis),
		0,
	)

	return TLE{
		Line1: l1 + string(rune('0'+tleChecksum(l1))),
		Line2: l2 + string(rune('0'+tleChecksum(l2))),
	}, nil
}

// tleChecksum is the modulo-10 sum of digits, with '-' counting as one.
func tleChecksum(line string) int {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func degrees(rad float64) float64 {
	d := rad * 180 / math.Pi
	// %8.4f rounds, so keep 359.99995+ from printing as 360.0000.
	if d >= 359.99995 {
		d = 0
	}
	return d
}
