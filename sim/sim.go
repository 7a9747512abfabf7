// Package sim runs the particle-in-cell loop: it owns the plasma species,
// the electromagnetic fields on the Yee mesh, the spectral field solver and
// the per-step diagnostics.
package sim

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/pthm-cable/picsim/config"
	"github.com/pthm-cable/picsim/filter"
	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/particles"
	"github.com/pthm-cable/picsim/spectral"
	"github.com/pthm-cable/picsim/telemetry"
)

// Index types of the staggered fields. J shares the E layout and rho lives
// on nodes.
var (
	eType = [3]mesh.IndexType{{false, true, true}, {true, false, true}, {true, true, false}}
	bType = [3]mesh.IndexType{{true, false, false}, {false, true, false}, {false, false, true}}
)

// Simulation holds the complete state of a run.
type Simulation struct {
	cfg  *config.Config
	geom mesh.Geometry
	ba   mesh.BoxArray
	dm   mesh.DistributionMap

	species *speciesRegistry

	E, B, J [3]*mesh.MultiFab
	Rho     *mesh.MultiFab // RhoOldComp and RhoNewComp of the last step

	solver *spectral.Solver
	kernel *particles.Kernel
	filter *filter.Bilinear // nil when disabled

	istep int
	t     float64
	dt    float64

	// Telemetry
	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	output    *telemetry.OutputManager
	lastStats telemetry.StepStats
}

// New builds the mesh, fields, solver and empty species of cfg. Particles
// are injected by InitData.
func New(cfg *config.Config) (*Simulation, error) {
	d := cfg.Domain
	domain := mesh.NewBox(mesh.IntVect{}, mesh.IntVect{d.NCell[0] - 1, d.NCell[1] - 1, d.NCell[2] - 1})
	geom := mesh.NewGeometry(domain, d.ProbLo, d.ProbHi, d.Periodic, d.Dim)
	ba := mesh.Decompose(geom.Domain, mesh.IntVect(d.MaxGridSize))

	workers := d.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	dm := mesh.RoundRobin(len(ba), workers)

	s := &Simulation{
		cfg:       cfg,
		geom:      geom,
		ba:        ba,
		dm:        dm,
		species:   newSpeciesRegistry(),
		dt:        cfg.Derived.DT,
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector: telemetry.NewCollector(),
		bookmarks: telemetry.NewBookmarkDetector(10, telemetry.DefaultBookmarkThresholds),
	}

	ngrow := mesh.IntVect(cfg.Derived.NGrow)
	for c := 0; c < 3; c++ {
		et, bt := eType[c], bType[c]
		if cfg.Solver.Nodal {
			et, bt = mesh.NodalType, mesh.NodalType
		}
		s.E[c] = mesh.NewMultiFab(ba, dm, 1, ngrow, geom.IndexType(et))
		s.B[c] = mesh.NewMultiFab(ba, dm, 1, ngrow, geom.IndexType(bt))
		s.J[c] = mesh.NewMultiFab(ba, dm, 1, ngrow, geom.IndexType(et))
	}
	s.Rho = mesh.NewMultiFab(ba, dm, 2, ngrow, geom.IndexType(mesh.NodalType))

	solver, err := spectral.NewSolver(ba, dm, cfg.Solver.SpectralOrder, cfg.Solver.Nodal, cfg.Derived.DX, s.dt)
	if err != nil {
		return nil, err
	}
	s.solver = solver

	kcfg, err := kernelConfig(cfg)
	if err != nil {
		return nil, err
	}
	if s.kernel, err = particles.NewKernel(kcfg); err != nil {
		return nil, err
	}

	if cfg.Filter.Enabled {
		npass := cfg.Filter.NPass
		for ax := range npass {
			if geom.Collapsed(ax) {
				npass[ax] = 0
			}
		}
		if s.filter, err = filter.NewBilinear(npass); err != nil {
			s.kernel.Close()
			return nil, err
		}
	}

	tileSize := mesh.IntVect(d.TileSize)
	for _, sc := range cfg.Species {
		if err := s.species.add(sc, geom, ba, dm, tileSize); err != nil {
			s.kernel.Close()
			return nil, err
		}
	}

	if dir := cfg.Diagnostics.OutputDir; dir != "" {
		if s.output, err = telemetry.NewOutputManager(dir); err != nil {
			s.kernel.Close()
			return nil, err
		}
	}

	slog.Info("simulation created",
		"dim", d.Dim,
		"domain", geom.Domain.String(),
		"patches", len(ba),
		"workers", dm.NumWorkers(),
		"dt", s.dt,
		"species", len(cfg.Species),
	)
	return s, nil
}

func kernelConfig(cfg *config.Config) (particles.KernelConfig, error) {
	p := cfg.Particles
	gather, err := particles.ParseGatherAlgo(p.Gather)
	if err != nil {
		return particles.KernelConfig{}, err
	}
	pusher, err := particles.ParsePusherAlgo(p.Pusher)
	if err != nil {
		return particles.KernelConfig{}, err
	}
	deposition, err := particles.ParseDepositionAlgo(p.Deposition)
	if err != nil {
		return particles.KernelConfig{}, err
	}
	if cfg.Solver.Nodal && deposition == particles.Esirkepov {
		return particles.KernelConfig{}, fmt.Errorf("sim: esirkepov deposition on a nodal solver: %w", particles.ErrInvalidConfig)
	}
	return particles.KernelConfig{
		ShapeOrder: [3]int{p.ShapeOrder, p.ShapeOrder, p.ShapeOrder},
		Gather:     gather,
		Pusher:     pusher,
		Deposition: deposition,
		Workers:    p.Workers,
	}, nil
}

// InitData injects the plasma, deposits the initial charge, staggers the
// momenta half a step back and records the step-0 diagnostics.
func (s *Simulation) InitData() error {
	if err := s.output.WriteConfig(s.cfg); err != nil {
		return fmt.Errorf("writing config snapshot: %w", err)
	}

	in := injector{geom: s.geom, ba: s.ba, seed: s.cfg.Run.Seed}
	s.Rho.SetVal(0)
	fields := s.fields()
	s.species.each(func(sp *Species, pl *Plasma) {
		n := in.inject(pl.Particles, sp.Config, sp.Index)
		pl.Injected += n
		s.collector.RecordInjected(n)

		s.kernel.DepositCharge(pl.Particles, s.Rho, particles.RhoNewComp)
		s.kernel.PushMomentum(pl.Particles, fields, -0.5*s.dt)

		slog.Info("species initialized", "species", sp.Config.Name, "particles", n)
	})
	s.Rho.SumBoundary(s.geom)

	for c := 0; c < 3; c++ {
		s.E[c].FillBoundary(s.geom)
		s.B[c].FillBoundary(s.geom)
	}

	s.recordDiagnostics()
	return nil
}

func (s *Simulation) fields() particles.Fields {
	return particles.Fields{E: s.E, B: s.B}
}

// Step advances particles and fields by one timestep.
func (s *Simulation) Step() {
	s.perf.StartTick()

	for c := 0; c < 3; c++ {
		s.J[c].SetVal(0)
	}
	s.Rho.SetVal(0)

	// Particles: gather, push and deposit J and both charge densities.
	s.perf.StartPhase(telemetry.PhaseParticles)
	fields := s.fields()
	src := particles.Sources{J: s.J, Rho: s.Rho}
	s.species.each(func(_ *Species, pl *Plasma) {
		s.kernel.Evolve(pl.Particles, fields, src, s.dt)
	})

	s.perf.StartPhase(telemetry.PhaseRedistribute)
	s.species.each(func(sp *Species, pl *Plasma) {
		if n := pl.Particles.Redistribute(); n > 0 {
			pl.Lost += n
			s.collector.RecordLost(sp.Config.Name, n)
		}
	})

	s.perf.StartPhase(telemetry.PhaseSumBoundary)
	for c := 0; c < 3; c++ {
		s.J[c].SumBoundary(s.geom)
	}
	s.Rho.SumBoundary(s.geom)

	if s.filter != nil {
		s.perf.StartPhase(telemetry.PhaseFilter)
		for c := 0; c < 3; c++ {
			s.filter.Apply(s.J[c], s.J[c], 0, 0, 1)
			s.J[c].FillBoundary(s.geom)
		}
		s.filter.Apply(s.Rho, s.Rho, 0, 0, 2)
		s.Rho.FillBoundary(s.geom)
	}

	s.perf.StartPhase(telemetry.PhaseFFTForward)
	for c := 0; c < 3; c++ {
		slot := spectral.Slot(c)
		s.solver.ForwardTransform(s.E[c], spectral.Ex+slot, 0)
		s.solver.ForwardTransform(s.B[c], spectral.Bx+slot, 0)
		s.solver.ForwardTransform(s.J[c], spectral.Jx+slot, 0)
	}
	s.solver.ForwardTransform(s.Rho, spectral.RhoOld, particles.RhoOldComp)
	s.solver.ForwardTransform(s.Rho, spectral.RhoNew, particles.RhoNewComp)

	s.perf.StartPhase(telemetry.PhasePSATDPush)
	s.solver.PushSpectralFields()

	s.perf.StartPhase(telemetry.PhaseFFTBackward)
	for c := 0; c < 3; c++ {
		slot := spectral.Slot(c)
		s.solver.BackwardTransform(spectral.Ex+slot, s.E[c], 0)
		s.solver.BackwardTransform(spectral.Bx+slot, s.B[c], 0)
	}

	s.perf.StartPhase(telemetry.PhaseFillBoundary)
	for c := 0; c < 3; c++ {
		s.E[c].FillBoundary(s.geom)
		s.B[c].FillBoundary(s.geom)
	}

	s.istep++
	s.t += s.dt

	if iv := s.cfg.Diagnostics.Interval; iv > 0 && s.istep%iv == 0 {
		s.perf.StartPhase(telemetry.PhaseDiagnostics)
		s.recordDiagnostics()
	}
	s.perf.EndTick()

	if li := s.cfg.Telemetry.LogInterval; li > 0 && s.istep%li == 0 {
		slog.Info("step",
			"step", s.istep,
			"time", s.t,
			"particles", s.species.numParticles(),
			"perf", s.perf.Stats(),
		)
	}
}

// Evolve runs numsteps steps, or up to run.max_step when numsteps is
// negative. It stops early once the simulated time reaches run.stop_time.
func (s *Simulation) Evolve(numsteps int) {
	if numsteps < 0 {
		numsteps = s.cfg.Run.MaxStep - s.istep
	}
	stop := s.cfg.Run.StopTime
	for n := 0; n < numsteps; n++ {
		if stop > 0 && s.t >= stop {
			slog.Info("stop time reached", "step", s.istep, "time", s.t)
			return
		}
		s.Step()
	}
}

// Close stops the particle workers and closes the output files.
func (s *Simulation) Close() error {
	s.kernel.Close()
	return s.output.Close()
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int { return s.istep }

// Time returns the simulated time in s.
func (s *Simulation) Time() float64 { return s.t }

// Dt returns the timestep.
func (s *Simulation) Dt() float64 { return s.dt }

// Geometry returns the level geometry.
func (s *Simulation) Geometry() mesh.Geometry { return s.geom }

// Stats returns the diagnostics of the last record.
func (s *Simulation) Stats() telemetry.StepStats { return s.lastStats }

// Particles returns the container of the named species, or nil.
func (s *Simulation) Particles(name string) *particles.Container {
	var pc *particles.Container
	s.species.each(func(sp *Species, pl *Plasma) {
		if sp.Config.Name == name {
			pc = pl.Particles
		}
	})
	return pc
}
