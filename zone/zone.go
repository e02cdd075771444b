// Package zone turns a ground polygon into the deterministic grid of mesh
// points over which revisit time is measured.
package zone

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/model"
)

// StandardResolution is 20 km of arc at the equator, in radians.
const StandardResolution = 20000.0 / core.WGS84A

// meshEpsilon absorbs floating-point error so an extent that is an exact
// multiple of the resolution still reaches the max corner.
const meshEpsilon = 1e-12

// MaxPoints caps the mesh size.
const MaxPoints = 1 << 20

var (
	ErrEmptyPolygon      = errors.New("zone: empty polygon")
	ErrInvalidResolution = errors.New("zone: resolution must be positive")
	ErrNonFinite         = errors.New("zone: non-finite polygon coordinate")
	ErrMeshTooLarge      = errors.New("zone: mesh too large")
)

// Bounds is the lat/lon bounding box of a polygon plus its mean altitude.
type Bounds struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	MeanAltitude   float64
}

// ComputeBounds scans the polygon once. NaN or infinite coordinates are
// rejected with ErrNonFinite.
func ComputeBounds(polygon []model.GeodeticPoint) (Bounds, error) {
	if len(polygon) == 0 {
		return Bounds{}, ErrEmptyPolygon
	}
	b := Bounds{
		LatMin: math.Inf(1), LatMax: math.Inf(-1),
		LonMin: math.Inf(1), LonMax: math.Inf(-1),
	}
	var alt float64
	for i, p := range polygon {
		if !finite(p.Latitude) || !finite(p.Longitude) || !finite(p.Altitude) {
			return Bounds{}, fmt.Errorf("%w: vertex %d is %+v", ErrNonFinite, i, p)
		}
		b.LatMin = math.Min(b.LatMin, p.Latitude)
		b.LatMax = math.Max(b.LatMax, p.Latitude)
		b.LonMin = math.Min(b.LonMin, p.Longitude)
		b.LonMax = math.Max(b.LonMax, p.Longitude)
		alt += p.Altitude
	}
	b.MeanAltitude = alt / float64(len(polygon))
	return b, nil
}

// Mesh samples the polygon's bounding box on a regular grid, row by row from
// (LatMin, LonMin). Every point carries the polygon's mean altitude. A grid
// of more than MaxPoints points is refused with ErrMeshTooLarge.
func Mesh(polygon []model.GeodeticPoint, resolution float64) ([]model.GeodeticPoint, error) {
	if !(resolution > 0) || math.IsInf(resolution, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResolution, resolution)
	}
	b, err := ComputeBounds(polygon)
	if err != nil {
		return nil, err
	}

	rows := steps(b.LatMax-b.LatMin, resolution)
	cols := steps(b.LonMax-b.LonMin, resolution)
	if rows*cols > MaxPoints {
		return nil, fmt.Errorf("%w: %.0f x %.0f points at resolution %v", ErrMeshTooLarge, rows, cols, resolution)
	}
	mesh := make([]model.GeodeticPoint, 0, int(rows*cols))
	for i := range int(rows) {
		lat := b.LatMin + float64(i)*resolution
		for j := range int(cols) {
			mesh = append(mesh, model.GeodeticPoint{
				Latitude:  lat,
				Longitude: b.LonMin + float64(j)*resolution,
				Altitude:  b.MeanAltitude,
			})
		}
	}
	return mesh, nil
}

// steps counts k ≥ 0 with k·res ≤ extent (within meshEpsilon). It stays a
// float so huge counts can be compared before conversion.
func steps(extent, res float64) float64 {
	return math.Floor((extent+meshEpsilon)/res) + 1
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Zone is an immutable polygon with its derived mesh.
type Zone struct {
	polygon    []model.GeodeticPoint
	resolution float64
	bounds     Bounds
	mesh       []model.GeodeticPoint
}

// New validates the polygon and resolution and builds the mesh once.
func New(polygon []model.GeodeticPoint, resolution float64) (*Zone, error) {
	mesh, err := Mesh(polygon, resolution)
	if err != nil {
		return nil, err
	}
	b, _ := ComputeBounds(polygon)
	return &Zone{
		polygon:    slices.Clone(polygon),
		resolution: resolution,
		bounds:     b,
		mesh:       mesh,
	}, nil
}

// Polygon returns a copy of the boundary polygon.
func (z *Zone) Polygon() []model.GeodeticPoint { return slices.Clone(z.polygon) }

// Mesh returns a copy of the mesh points in row-major order.
func (z *Zone) Mesh() []model.GeodeticPoint { return slices.Clone(z.mesh) }

// Len returns the number of mesh points.
func (z *Zone) Len() int { return len(z.mesh) }

// Point returns mesh point i.
func (z *Zone) Point(i int) model.GeodeticPoint { return z.mesh[i] }

func (z *Zone) Resolution() float64 { return z.resolution }

func (z *Zone) Bounds() Bounds { return z.bounds }

// MaxAbsLatitude is the largest |latitude| of the polygon.
func (z *Zone) MaxAbsLatitude() float64 {
	return math.Max(math.Abs(z.bounds.LatMin), math.Abs(z.bounds.LatMax))
}
