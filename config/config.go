// Package config provides configuration loading for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/picsim/phys"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is returned by Load and Validate for parameters the
// simulation cannot run with.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Domain      DomainConfig      `yaml:"domain"`
	Solver      SolverConfig      `yaml:"solver"`
	Particles   ParticlesConfig   `yaml:"particles"`
	Filter      FilterConfig      `yaml:"filter"`
	Species     []SpeciesConfig   `yaml:"species"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Run         RunConfig         `yaml:"run"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig describes the mesh and its decomposition into patches.
type DomainConfig struct {
	Dim         int        `yaml:"dim"`           // 2 (XZ) or 3
	NCell       [3]int     `yaml:"n_cell"`        // cells per axis; y ignored in 2D
	ProbLo      [3]float64 `yaml:"prob_lo"`       // m
	ProbHi      [3]float64 `yaml:"prob_hi"`       // m
	Periodic    [3]bool    `yaml:"periodic"`      // otherwise particles leaving are removed
	MaxGridSize [3]int     `yaml:"max_grid_size"` // patch size limit per axis
	TileSize    [3]int     `yaml:"tile_size"`     // particle tile size per axis
	Workers     int        `yaml:"workers"`       // patch workers; 0 = GOMAXPROCS
}

// SolverConfig holds the PSATD solver parameters.
type SolverConfig struct {
	SpectralOrder [3]int  `yaml:"spectral_order"` // finite-difference order of modified k; 0 = exact
	Nodal         bool    `yaml:"nodal"`          // all fields on nodes instead of the Yee staggering
	CFL           float64 `yaml:"cfl"`            // dt as a fraction of the Courant limit
	DT            float64 `yaml:"dt"`             // s; 0 derives dt from CFL
}

// ParticlesConfig selects the particle kernel algorithms.
type ParticlesConfig struct {
	ShapeOrder int    `yaml:"shape_order"` // 1, 2 or 3
	Gather     string `yaml:"gather"`      // energy-conserving | momentum-conserving
	Pusher     string `yaml:"pusher"`      // boris | vay
	Deposition string `yaml:"deposition"`  // esirkepov | direct
	Workers    int    `yaml:"workers"`     // tile workers; 0 = GOMAXPROCS
}

// FilterConfig controls smoothing of the deposited current.
type FilterConfig struct {
	Enabled bool   `yaml:"enabled"`
	NPass   [3]int `yaml:"npass"`
}

// SpeciesConfig describes one particle species and its initial uniform
// plasma.
type SpeciesConfig struct {
	Name    string     `yaml:"name"`
	Charge  float64    `yaml:"charge"`  // elementary charges
	Mass    float64    `yaml:"mass"`    // electron masses
	Density float64    `yaml:"density"` // m^-3; 0 injects nothing
	PPC     [3]int     `yaml:"ppc"`     // particles per cell per axis
	Drift   [3]float64 `yaml:"drift"`   // mean u/c
	Thermal [3]float64 `yaml:"thermal"` // u/c spread
}

// DiagnosticsConfig controls field output.
type DiagnosticsConfig struct {
	Interval     int    `yaml:"interval"`      // steps between diagnostics; 0 disables
	OutputDir    string `yaml:"output_dir"`    // empty disables file output
	RawFields    bool   `yaml:"raw_fields"`    // write compressed raw field dumps
	PlotGuards   bool   `yaml:"plot_guards"`   // include ghost cells in raw dumps
	CoarsenRatio int    `yaml:"coarsen_ratio"` // ratio of the coarsened cell-centered output; < 2 disables
}

// TelemetryConfig holds performance tracking parameters.
type TelemetryConfig struct {
	PerfCollectorWindow int `yaml:"perf_collector_window"`
	LogInterval         int `yaml:"log_interval"` // steps between progress logs
}

// RunConfig holds run length and seeding.
type RunConfig struct {
	MaxStep  int     `yaml:"max_step"`
	StopTime float64 `yaml:"stop_time"` // s; 0 = no limit
	Seed     uint64  `yaml:"seed"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DX        [3]float64 // cell size; 1 along the collapsed axis of a 2D run
	DT        float64    // timestep actually used
	NGrow     [3]int     // ghost width of every field
	Collapsed [3]bool
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// A species list in the file replaces the default one.
		var probe struct {
			Species []SpeciesConfig `yaml:"species"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if probe.Species != nil {
			cfg.Species = nil
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig)
}

// Validate checks every parameter that would make the simulation fail to
// construct or step.
func (c *Config) Validate() error {
	d := c.Domain
	if d.Dim != 2 && d.Dim != 3 {
		return invalid("domain.dim must be 2 or 3, got %d", d.Dim)
	}
	for ax := 0; ax < 3; ax++ {
		if d.Dim == 2 && ax == 1 {
			continue
		}
		if d.NCell[ax] < 1 {
			return invalid("domain.n_cell[%d] = %d", ax, d.NCell[ax])
		}
		if !(d.ProbHi[ax] > d.ProbLo[ax]) {
			return invalid("domain.prob_hi[%d] = %g is not above prob_lo %g", ax, d.ProbHi[ax], d.ProbLo[ax])
		}
		if d.MaxGridSize[ax] < 0 || d.TileSize[ax] < 0 {
			return invalid("domain: negative patch or tile size along axis %d", ax)
		}
	}
	if d.Workers < 0 || c.Particles.Workers < 0 {
		return invalid("negative worker count")
	}

	s := c.Solver
	for ax, o := range s.SpectralOrder {
		if o < 0 || o%2 != 0 {
			return invalid("solver.spectral_order[%d] = %d must be even and non-negative", ax, o)
		}
	}
	if s.DT < 0 || math.IsNaN(s.DT) || math.IsInf(s.DT, 0) {
		return invalid("solver.dt = %g", s.DT)
	}
	if s.DT == 0 && !(s.CFL > 0) {
		return invalid("solver.cfl = %g must be positive when dt is derived", s.CFL)
	}

	// Esirkepov writes each current component on its Yee edge.
	if s.Nodal && strings.EqualFold(c.Particles.Deposition, "esirkepov") {
		return invalid("particles.deposition = esirkepov needs staggered fields, but solver.nodal is set")
	}
	if o := c.Particles.ShapeOrder; o < 1 || o > 3 {
		return invalid("particles.shape_order = %d must be 1, 2 or 3", o)
	}
	for ax, n := range c.Filter.NPass {
		if n < 0 {
			return invalid("filter.npass[%d] = %d", ax, n)
		}
	}

	seen := make(map[string]bool, len(c.Species))
	for i, sp := range c.Species {
		if sp.Name == "" {
			return invalid("species[%d] has no name", i)
		}
		if seen[sp.Name] {
			return invalid("species %q defined twice", sp.Name)
		}
		seen[sp.Name] = true
		if !(sp.Mass > 0) {
			return invalid("species %q: mass %g", sp.Name, sp.Mass)
		}
		if sp.Density < 0 {
			return invalid("species %q: density %g", sp.Name, sp.Density)
		}
		for ax, n := range sp.PPC {
			if n < 0 || (sp.Density > 0 && n == 0 && !(d.Dim == 2 && ax == 1)) {
				return invalid("species %q: ppc[%d] = %d", sp.Name, ax, n)
			}
		}
	}

	if c.Diagnostics.Interval < 0 || c.Diagnostics.CoarsenRatio < 0 {
		return invalid("diagnostics: negative interval or coarsen ratio")
	}
	if c.Run.MaxStep < 0 {
		return invalid("run.max_step = %d", c.Run.MaxStep)
	}
	if c.Run.StopTime < 0 || math.IsNaN(c.Run.StopTime) {
		return invalid("run.stop_time = %g", c.Run.StopTime)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	d := c.Domain
	for ax := 0; ax < 3; ax++ {
		if d.Dim == 2 && ax == 1 {
			c.Derived.Collapsed[ax] = true
			c.Derived.DX[ax] = 1
			continue
		}
		c.Derived.DX[ax] = (d.ProbHi[ax] - d.ProbLo[ax]) / float64(d.NCell[ax])
	}

	c.Derived.DT = c.Solver.DT
	if c.Derived.DT == 0 {
		c.Derived.DT = phys.CourantDt(c.Solver.CFL, c.Derived.DX, c.Derived.Collapsed)
	}

	// Deposits reach shape_order+1 points past the owning patch, and the
	// filter reads npass points of deposited current.
	for ax := 0; ax < 3; ax++ {
		if c.Derived.Collapsed[ax] {
			continue
		}
		ng := c.Particles.ShapeOrder + 1
		if c.Filter.Enabled {
			ng = max(ng, c.Filter.NPass[ax])
		}
		c.Derived.NGrow[ax] = ng
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
