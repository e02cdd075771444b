// Package config loads optimisation run configuration from YAML (or JSON)
// files. Angles in files are degrees; everything handed to the rest of the
// program is radians and metres.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/decision"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/optimizer"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
	"github.com/signalsfoundry/constellation-optimizer/zone"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Builder policies.
const (
	BuilderSinglePlane = "single_plane"
	BuilderWalkerDelta = "walker_delta"
)

// Environment overrides.
const (
	EnvWorkers        = "CONSTELLATION_WORKERS"
	EnvSeed           = "CONSTELLATION_SEED"
	EnvVisibilityAddr = "CONSTELLATION_VISIBILITY_ADDR"
)

// Config is a validated run configuration.
type Config struct {
	Polygon    []model.GeodeticPoint
	Resolution float64

	Window timectrl.Window
	// Epoch of every generated satellite; defaults to Window.Start.
	Epoch time.Time

	Sensor     Sensor
	Builder    string
	Variables  []decision.Variable
	Optimizer  optimizer.Config
	Genetic    optimizer.Genetic
	Visibility Visibility

	// Defaults lists the optional settings absent from the document, as
	// "field=value", in the order they were filled in.
	Defaults []string

	eliteSet bool
}

// Sensor describes the visibility threshold. When MinElevation is set it is
// used for every satellite, otherwise the threshold follows HalfFOV and each
// satellite's altitude.
type Sensor struct {
	HalfFOV         float64
	MinElevation    float64
	HasMinElevation bool
	// Step is the SGP4 sampling step; zero selects the adaptive step.
	Step time.Duration
}

// Visibility selects the event source. An empty Addr means in-process SGP4.
type Visibility struct {
	Addr          string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

// file shapes; unexported so the on-disk format can evolve independently.
type fileConfig struct {
	Zone       zoneFile       `yaml:"zone"`
	Window     windowFile     `yaml:"window"`
	Epoch      string         `yaml:"epoch"`
	Sensor     sensorFile     `yaml:"sensor"`
	Builder    string         `yaml:"builder"`
	Variables  []variableFile `yaml:"variables"`
	Optimizer  optimizerFile  `yaml:"optimizer"`
	Visibility visibilityFile `yaml:"visibility"`
}

type zoneFile struct {
	Polygon       [][2]float64 `yaml:"polygon_deg"` // [lat, lon]
	ResolutionDeg *float64     `yaml:"resolution_deg"`
	ResolutionKm  *float64     `yaml:"resolution_km"`
	ResolutionRad *float64     `yaml:"resolution_rad"`
}

type windowFile struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Duration string `yaml:"duration"`
}

type sensorFile struct {
	HalfFOVDeg      *float64 `yaml:"half_fov_deg"`
	MinElevationDeg *float64 `yaml:"min_elevation_deg"`
	Step            string   `yaml:"step"`
}

type variableFile struct {
	Name         string  `yaml:"name"`
	Kind         string  `yaml:"kind"`
	Min          float64 `yaml:"min"`
	Max          float64 `yaml:"max"`
	MaxInclusive bool    `yaml:"max_inclusive"`
}

type optimizerFile struct {
	Population  int          `yaml:"population"`
	Generations int          `yaml:"generations"`
	Workers     int          `yaml:"workers"`
	WallClock   string       `yaml:"wall_clock"`
	Seed        *int64       `yaml:"seed"`
	Genetic     *geneticFile `yaml:"genetic"`
}

type geneticFile struct {
	Elite          *int     `yaml:"elite"`
	TournamentSize *int     `yaml:"tournament_size"`
	CrossoverRate  *float64 `yaml:"crossover_rate"`
	BlendAlpha     *float64 `yaml:"blend_alpha"`
	MutationRate   *float64 `yaml:"mutation_rate"`
	MutationScale  *float64 `yaml:"mutation_scale"`
}

type visibilityFile struct {
	Addr          string  `yaml:"addr"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	Timeout       string  `yaml:"timeout"`
}

// Defaults applied to fields absent from the file.
const (
	DefaultPopulation  = 20
	DefaultGenerations = 30
	DefaultSeed        = 1
	DefaultTimeout     = 2 * time.Minute
	DefaultWindow      = 24 * time.Hour
)

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document. Unknown fields are
// rejected. Optional settings left out are filled with defaults and listed
// in Config.Defaults.
func Parse(data []byte) (*Config, error) {
	var f fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	return f.resolve()
}

func (f fileConfig) resolve() (*Config, error) {
	cfg := &Config{Builder: f.Builder}
	if cfg.Builder == "" {
		cfg.Builder = BuilderSinglePlane
		cfg.defaulted("builder", cfg.Builder)
	}
	if cfg.Builder != BuilderSinglePlane && cfg.Builder != BuilderWalkerDelta {
		return nil, invalid("unknown builder %q", cfg.Builder)
	}

	if len(f.Zone.Polygon) == 0 {
		return nil, invalid("zone.polygon_deg is empty")
	}
	for i, p := range f.Zone.Polygon {
		// Written as negated bounds so NaN fails too.
		if !(math.Abs(p[0]) <= 90) || !(math.Abs(p[1]) <= 180) {
			return nil, invalid("zone.polygon_deg[%d] = %v out of range", i, p)
		}
		cfg.Polygon = append(cfg.Polygon, model.GeodeticPoint{Latitude: rad(p[0]), Longitude: rad(p[1])})
	}
	res, err := f.Zone.resolution()
	if err != nil {
		return nil, err
	}
	if res == 0 {
		res = zone.StandardResolution
		cfg.defaulted("zone.resolution_km", "20")
	}
	cfg.Resolution = res

	w, err := f.Window.resolve()
	if err != nil {
		return nil, err
	}
	if f.Window.End == "" && f.Window.Duration == "" {
		cfg.defaulted("window.duration", DefaultWindow.String())
	}
	cfg.Window = w
	cfg.Epoch = w.Start
	if f.Epoch != "" {
		if cfg.Epoch, err = time.Parse(time.RFC3339, f.Epoch); err != nil {
			return nil, invalid("epoch: %v", err)
		}
	}

	if cfg.Sensor, err = f.Sensor.resolve(); err != nil {
		return nil, err
	}
	if f.Sensor.HalfFOVDeg == nil && f.Sensor.MinElevationDeg == nil {
		cfg.defaulted("sensor.half_fov_deg", strconv.FormatFloat(cfg.Sensor.HalfFOV*180/math.Pi, 'g', -1, 64))
	}

	if len(f.Variables) == 0 {
		return nil, invalid("no decision variables")
	}
	for i, vf := range f.Variables {
		v, err := vf.resolve()
		if err != nil {
			return nil, fmt.Errorf("variables[%d]: %w", i, err)
		}
		cfg.Variables = append(cfg.Variables, v)
	}

	if err := f.Optimizer.resolve(cfg); err != nil {
		return nil, err
	}
	if err := f.Visibility.resolve(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolution returns the configured mesh step in radians, or zero when none
// is given. At most one of the three units may be set.
func (z zoneFile) resolution() (float64, error) {
	var (
		res  float64
		seen []string
	)
	for _, r := range []struct {
		name  string
		value *float64
		scale float64
	}{
		{"resolution_rad", z.ResolutionRad, 1},
		{"resolution_deg", z.ResolutionDeg, math.Pi / 180},
		{"resolution_km", z.ResolutionKm, 1000 / core.WGS84A},
	} {
		if r.value == nil {
			continue
		}
		v := *r.value
		if !(v > 0) || math.IsInf(v, 1) {
			return 0, invalid("zone.%s = %v must be positive", r.name, v)
		}
		seen = append(seen, r.name)
		res = v * r.scale
	}
	if len(seen) > 1 {
		return 0, invalid("zone: set one of %s", strings.Join(seen, ", "))
	}
	return res, nil
}

func (w windowFile) resolve() (timectrl.Window, error) {
	if w.Start == "" {
		return timectrl.Window{}, invalid("window.start is required")
	}
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return timectrl.Window{}, invalid("window.start: %v", err)
	}
	switch {
	case w.End != "" && w.Duration != "":
		return timectrl.Window{}, invalid("window: give end or duration, not both")
	case w.End != "":
		end, err := time.Parse(time.RFC3339, w.End)
		if err != nil {
			return timectrl.Window{}, invalid("window.end: %v", err)
		}
		win, err := timectrl.NewWindow(start, end)
		if err != nil {
			return timectrl.Window{}, invalid("window: %v", err)
		}
		return win, nil
	}
	d := DefaultWindow
	if w.Duration != "" {
		if d, err = time.ParseDuration(w.Duration); err != nil {
			return timectrl.Window{}, invalid("window.duration: %v", err)
		}
	}
	win, err := timectrl.WindowFrom(start, d)
	if err != nil {
		return timectrl.Window{}, invalid("window: %v", err)
	}
	return win, nil
}

func (s sensorFile) resolve() (Sensor, error) {
	out := Sensor{HalfFOV: visibility.DefaultHalfFOV}
	if s.HalfFOVDeg != nil {
		if *s.HalfFOVDeg <= 0 || *s.HalfFOVDeg >= 90 {
			return Sensor{}, invalid("sensor.half_fov_deg = %v out of (0, 90)", *s.HalfFOVDeg)
		}
		out.HalfFOV = rad(*s.HalfFOVDeg)
	}
	if s.MinElevationDeg != nil {
		if *s.MinElevationDeg < 0 || *s.MinElevationDeg >= 90 {
			return Sensor{}, invalid("sensor.min_elevation_deg = %v out of [0, 90)", *s.MinElevationDeg)
		}
		out.MinElevation = rad(*s.MinElevationDeg)
		out.HasMinElevation = true
	}
	if s.Step != "" {
		d, err := time.ParseDuration(s.Step)
		if err != nil || d < 0 {
			return Sensor{}, invalid("sensor.step %q", s.Step)
		}
		out.Step = d
	}
	return out, nil
}

func (v variableFile) resolve() (decision.Variable, error) {
	kind := decision.Real
	if v.Kind != "" {
		k, err := decision.ParseKind(v.Kind)
		if err != nil {
			return decision.Variable{}, invalid("%v", err)
		}
		kind = k
	}
	if kind == decision.Integer {
		if v.Min != math.Trunc(v.Min) || v.Max != math.Trunc(v.Max) {
			return decision.Variable{}, invalid("integer variable %q has fractional bounds", v.Name)
		}
		if !(math.Abs(v.Min) <= decision.MaxIntegerBound) || !(math.Abs(v.Max) <= decision.MaxIntegerBound) {
			return decision.Variable{}, invalid("integer variable %q bounds exceed ±2^53", v.Name)
		}
		iv, err := decision.NewInteger(v.Name, int64(v.Min), int64(v.Max), v.MaxInclusive)
		if err != nil {
			return decision.Variable{}, invalid("%v", err)
		}
		return iv, nil
	}
	lo, hi := v.Min, v.Max
	if IsAngle(v.Name) {
		lo, hi = rad(lo), rad(hi)
	}
	rv, err := decision.NewReal(v.Name, lo, hi)
	if err != nil {
		return decision.Variable{}, invalid("%v", err)
	}
	return rv, nil
}

func (o optimizerFile) resolve(cfg *Config) error {
	cfg.Optimizer = optimizer.Config{
		Population:  o.Population,
		Generations: o.Generations,
		Workers:     o.Workers,
		Seed:        DefaultSeed,
	}
	if cfg.Optimizer.Population == 0 {
		cfg.Optimizer.Population = DefaultPopulation
		cfg.defaulted("optimizer.population", strconv.Itoa(DefaultPopulation))
	}
	if cfg.Optimizer.Generations == 0 {
		cfg.Optimizer.Generations = DefaultGenerations
		cfg.defaulted("optimizer.generations", strconv.Itoa(DefaultGenerations))
	}
	if o.Seed != nil {
		cfg.Optimizer.Seed = *o.Seed
	} else {
		cfg.defaulted("optimizer.seed", strconv.Itoa(DefaultSeed))
	}
	if o.WallClock != "" {
		d, err := time.ParseDuration(o.WallClock)
		if err != nil || d < 0 {
			return invalid("optimizer.wall_clock %q", o.WallClock)
		}
		cfg.Optimizer.WallClock = d
	}

	cfg.Genetic = optimizer.DefaultGenetic()
	if g := o.Genetic; g != nil {
		cfg.eliteSet = g.Elite != nil
		setInt(&cfg.Genetic.Elite, g.Elite)
		setInt(&cfg.Genetic.TournamentSize, g.TournamentSize)
		setFloat(&cfg.Genetic.CrossoverRate, g.CrossoverRate)
		setFloat(&cfg.Genetic.BlendAlpha, g.BlendAlpha)
		setFloat(&cfg.Genetic.MutationRate, g.MutationRate)
		setFloat(&cfg.Genetic.MutationScale, g.MutationScale)
	}
	return nil
}

// Validate checks the optimiser and genetic settings. Call it again after
// changing them, e.g. from command-line overrides. A default elite larger
// than the population allows is lowered to population-1; an explicit one is
// an error.
func (c *Config) Validate() error {
	o := c.Optimizer
	if o.Population < 1 || o.Generations < 1 || o.Workers < 0 || o.WallClock < 0 {
		return invalid("optimizer: population %d, generations %d, workers %d, wall clock %s",
			o.Population, o.Generations, o.Workers, o.WallClock)
	}
	if !c.eliteSet {
		c.Genetic.Elite = min(optimizer.DefaultGenetic().Elite, o.Population-1)
	}
	gen := c.Genetic
	switch {
	case gen.Elite < 0 || gen.Elite >= o.Population:
		return invalid("optimizer.genetic.elite %d must be in [0, population)", gen.Elite)
	case gen.TournamentSize < 1:
		return invalid("optimizer.genetic.tournament_size %d", gen.TournamentSize)
	case !unit(gen.CrossoverRate) || !unit(gen.MutationRate):
		return invalid("optimizer.genetic rates must be in [0, 1]")
	case gen.BlendAlpha < 0 || gen.MutationScale < 0:
		return invalid("optimizer.genetic blend_alpha and mutation_scale must be non-negative")
	}
	return nil
}

func (v visibilityFile) resolve(cfg *Config) error {
	cfg.Visibility = Visibility{
		Addr:          v.Addr,
		RatePerSecond: v.RatePerSecond,
		Burst:         v.Burst,
		Timeout:       DefaultTimeout,
	}
	if v.Addr != "" && v.Timeout == "" {
		cfg.defaulted("visibility.timeout", DefaultTimeout.String())
	}
	if v.Timeout != "" {
		d, err := time.ParseDuration(v.Timeout)
		if err != nil || d <= 0 {
			return invalid("visibility.timeout %q", v.Timeout)
		}
		cfg.Visibility.Timeout = d
	}
	if v.RatePerSecond < 0 || v.Burst < 0 {
		return invalid("visibility rate limits must be non-negative")
	}
	return nil
}

// ApplyEnv overrides fields from CONSTELLATION_* variables read through
// getenv (os.Getenv when nil).
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if raw := getenv(EnvWorkers); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return invalid("%s=%q", EnvWorkers, raw)
		}
		c.Optimizer.Workers = n
	}
	if raw := getenv(EnvSeed); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return invalid("%s=%q", EnvSeed, raw)
		}
		c.Optimizer.Seed = n
	}
	if raw := getenv(EnvVisibilityAddr); raw != "" {
		c.Visibility.Addr = raw
	}
	return nil
}

// Zone meshes the configured polygon.
func (c *Config) Zone() (*zone.Zone, error) {
	return zone.New(c.Polygon, c.Resolution)
}

// Schema builds the decision schema over the configured zone.
func (c *Config) Schema(log logging.Logger) (*decision.Schema, error) {
	z, err := c.Zone()
	if err != nil {
		return nil, err
	}
	return decision.NewSchema(z, c.Variables, decision.WithSchemaLogger(log))
}

// ConstellationBuilder returns the configured builder policy.
func (c *Config) ConstellationBuilder(log logging.Logger) decision.Builder {
	if c.Builder == BuilderWalkerDelta {
		return decision.WalkerDelta{Epoch: c.Epoch, Logger: log}
	}
	return decision.SinglePlane{Epoch: c.Epoch, Logger: log}
}

// CostOptions returns the threshold policy for decision.NewCostFunction along
// with the fixed minimum elevation to pass it.
func (c *Config) CostOptions() (float64, []decision.CostOption) {
	if c.Sensor.HasMinElevation {
		return c.Sensor.MinElevation, nil
	}
	return 0, []decision.CostOption{decision.WithHalfFOV(c.Sensor.HalfFOV)}
}

// IsAngle reports whether a variable name holds an angle (degrees on disk).
func IsAngle(name string) bool {
	switch name {
	case decision.VarInclination, decision.VarRAAN, decision.VarArgPerigee:
		return true
	}
	return strings.HasPrefix(name, "anomaly")
}

func (c *Config) defaulted(field, value string) {
	c.Defaults = append(c.Defaults, field+"="+value)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

func unit(x float64) bool { return x >= 0 && x <= 1 }

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
