package constellation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
)

var (
	// ErrPlaneExists is returned by AddPlane when a plane with the same key
	// is already registered. Nothing is modified in that case.
	ErrPlaneExists = errors.New("plane already exists")
	// ErrPlaneNotFound is returned when removing an unknown plane.
	ErrPlaneNotFound = errors.New("plane not found")
	// ErrSatelliteNotFound is returned when removing an unknown satellite.
	ErrSatelliteNotFound = errors.New("satellite not found")
	// ErrSatelliteExists is returned by AddPlane when a member's ID is
	// already registered or repeated among the members.
	ErrSatelliteExists = errors.New("satellite already exists")
)

// Plane groups satellites sharing an inclination and RAAN.
type Plane struct {
	Key         model.PlaneKey
	Inclination float64
	RAAN        float64
	Satellites  []model.Satellite
}

func (p Plane) clone() Plane {
	p.Satellites = slices.Clone(p.Satellites)
	return p
}

// Constellation is an in-memory registry of satellites grouped by orbital
// plane. It is owned by a single evaluation and is not safe for concurrent
// mutation.
type Constellation struct {
	planes     map[model.PlaneKey]*Plane
	satellites []model.Satellite
	ids        map[string]struct{}

	nextID int
	log    logging.Logger
}

// Option configures a Constellation.
type Option func(*Constellation)

// WithLogger sets the logger used for warnings.
func WithLogger(l logging.Logger) Option {
	return func(c *Constellation) { c.log = logging.OrNoop(l) }
}

// New constructs an empty constellation.
func New(opts ...Option) *Constellation {
	c := &Constellation{
		planes: make(map[model.PlaneKey]*Plane),
		ids:    make(map[string]struct{}),
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddSatellite registers a satellite with the given elements, creating its
// plane if needed, and returns the stored satellite with its assigned ID.
func (c *Constellation) AddSatellite(elements model.OrbitalElements, epoch time.Time) model.Satellite {
	sat := model.Satellite{ID: c.allocID(), Elements: elements, Epoch: epoch}
	c.insert(sat)
	return sat
}

// AddPlane registers a plane with the given inclination and RAAN plus any
// member satellites. Member elements are aligned to the plane's inclination
// and RAAN, and members without an ID get one assigned. If the plane already
// exists nothing is changed and ErrPlaneExists is returned with the key. A
// member ID that is already registered, or given twice, leaves the
// constellation unchanged and returns ErrSatelliteExists.
func (c *Constellation) AddPlane(inclination, raan float64, sats ...model.Satellite) (model.PlaneKey, error) {
	key := model.KeyFor(inclination, raan)
	if _, ok := c.planes[key]; ok {
		return key, fmt.Errorf("add plane %+v: %w", key, ErrPlaneExists)
	}
	seen := make(map[string]struct{}, len(sats))
	for _, s := range sats {
		if s.ID == "" {
			continue
		}
		_, dup := seen[s.ID]
		if _, used := c.ids[s.ID]; used || dup {
			return key, fmt.Errorf("add plane %+v: satellite %q: %w", key, s.ID, ErrSatelliteExists)
		}
		seen[s.ID] = struct{}{}
	}
	// Reserve caller IDs before any are allocated.
	for id := range seen {
		c.ids[id] = struct{}{}
	}
	c.planes[key] = &Plane{Key: key, Inclination: inclination, RAAN: raan}
	for _, s := range sats {
		s.Elements.Inclination = inclination
		s.Elements.RAAN = raan
		if s.ID == "" {
			s.ID = c.allocID()
		}
		c.insert(s)
	}
	return key, nil
}

// RemovePlane removes the plane and every satellite that belongs to it.
func (c *Constellation) RemovePlane(key model.PlaneKey) error {
	p, ok := c.planes[key]
	if !ok {
		c.log.Warn(context.Background(), "remove of unknown plane",
			logging.Any("plane", key),
		)
		return fmt.Errorf("remove plane %+v: %w", key, ErrPlaneNotFound)
	}
	delete(c.planes, key)
	for _, s := range p.Satellites {
		delete(c.ids, s.ID)
	}
	c.satellites = slices.DeleteFunc(c.satellites, func(s model.Satellite) bool {
		return s.Plane() == p.Key
	})
	return nil
}

// RemoveSatellite removes a satellite by ID. The satellite's plane is removed
// when it becomes empty.
func (c *Constellation) RemoveSatellite(id string) error {
	idx := slices.IndexFunc(c.satellites, func(s model.Satellite) bool { return s.ID == id })
	if idx < 0 {
		return fmt.Errorf("remove satellite %q: %w", id, ErrSatelliteNotFound)
	}
	sat := c.satellites[idx]
	c.satellites = slices.Delete(c.satellites, idx, idx+1)
	delete(c.ids, id)

	key := sat.Plane()
	if p, ok := c.planes[key]; ok {
		if m := slices.IndexFunc(p.Satellites, func(s model.Satellite) bool { return s.ID == id }); m >= 0 {
			p.Satellites = slices.Delete(p.Satellites, m, m+1)
		}
		if len(p.Satellites) == 0 {
			delete(c.planes, key)
		}
	}
	return nil
}

// Planes returns a snapshot of all planes ordered by key.
func (c *Constellation) Planes() []Plane {
	res := make([]Plane, 0, len(c.planes))
	for _, p := range c.planes {
		res = append(res, p.clone())
	}
	slices.SortFunc(res, func(a, b Plane) int {
		if a.Key.Inclination != b.Key.Inclination {
			return cmpInt64(a.Key.Inclination, b.Key.Inclination)
		}
		return cmpInt64(a.Key.RAAN, b.Key.RAAN)
	})
	return res
}

// Plane returns a copy of the plane with the given key.
func (c *Constellation) Plane(key model.PlaneKey) (Plane, bool) {
	p, ok := c.planes[key]
	if !ok {
		return Plane{}, false
	}
	return p.clone(), true
}

// Satellites returns a snapshot of all satellites in insertion order.
func (c *Constellation) Satellites() []model.Satellite {
	return slices.Clone(c.satellites)
}

// PlaneCount returns the number of registered planes.
func (c *Constellation) PlaneCount() int { return len(c.planes) }

// SatelliteCount returns the number of registered satellites.
func (c *Constellation) SatelliteCount() int { return len(c.satellites) }

func (c *Constellation) insert(sat model.Satellite) {
	key := sat.Plane()
	p, ok := c.planes[key]
	if !ok {
		p = &Plane{Key: key, Inclination: sat.Elements.Inclination, RAAN: sat.Elements.RAAN}
		c.planes[key] = p
	}
	p.Satellites = append(p.Satellites, sat)
	c.satellites = append(c.satellites, sat)
	c.ids[sat.ID] = struct{}{}
}

// allocID returns the next generated ID not already in use.
func (c *Constellation) allocID() string {
	for {
		c.nextID++
		id := fmt.Sprintf("sat-%04d", c.nextID)
		if _, used := c.ids[id]; !used {
			return id
		}
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
