package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/picsim/config"
	"github.com/pthm-cable/picsim/fieldio"
	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/particles"
	"github.com/pthm-cable/picsim/phys"
)

// A 16x16 periodic XZ plane split into four patches.
const planeYAML = `
domain:
  dim: 2
  n_cell: [16, 0, 16]
  prob_lo: [0, 0, 0]
  prob_hi: [16.0e-6, 1, 16.0e-6]
  max_grid_size: [8, 0, 8]
  tile_size: [4, 0, 4]
  workers: %WORKERS%
particles:
  workers: %WORKERS%
`

const warmElectrons = `
species:
  - name: electrons
    charge: -1
    mass: 1
    density: 1.0e24
    ppc: [2, 0, 2]
    thermal: [0.01, 0.01, 0.01]
`

const coldNeutral = `
species:
  - name: electrons
    charge: -1
    mass: 1
    density: 1.0e24
    ppc: [2, 0, 2]
  - name: protons
    charge: 1
    mass: 1836.15267343
    density: 1.0e24
    ppc: [2, 0, 2]
`

func loadConfig(t *testing.T, workers string, extra ...string) *config.Config {
	t.Helper()
	body := strings.ReplaceAll(planeYAML, "%WORKERS%", workers) + strings.Join(extra, "")
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	cfg.Diagnostics.Interval = 1
	cfg.Telemetry.LogInterval = 0
	cfg.Run.MaxStep = 4
	return cfg
}

func newSim(t *testing.T, cfg *config.Config) *Simulation {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.InitData())
	return s
}

func TestNewBuildsYeeLayout(t *testing.T) {
	cfg := loadConfig(t, "2", warmElectrons)
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, s.ba, 4)
	assert.Equal(t, cfg.Derived.DT, s.Dt())
	assert.True(t, s.Geometry().Collapsed(1))

	// Nodality along y is dropped in the XZ plane.
	assert.Equal(t, mesh.IndexType{false, false, true}, s.E[0].IndexType())
	assert.Equal(t, mesh.IndexType{true, false, true}, s.E[1].IndexType())
	assert.Equal(t, mesh.IndexType{true, false, false}, s.B[0].IndexType())
	assert.Equal(t, mesh.IndexType{true, false, true}, s.Rho.IndexType())
	assert.Equal(t, 2, s.Rho.NComp())
	assert.Equal(t, mesh.IntVect{4, 0, 4}, s.J[2].NGrow())

	require.NotNil(t, s.filter)
	assert.Equal(t, [3]int{1, 0, 1}, s.filter.NPass())
}

func TestNodalSolverPutsEverythingOnNodes(t *testing.T) {
	cfg := loadConfig(t, "1", warmElectrons)
	cfg.Solver.Nodal = true
	cfg.Particles.Deposition = "direct"
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Close()

	for c := 0; c < 3; c++ {
		assert.Equal(t, mesh.IndexType{true, false, true}, s.E[c].IndexType())
		assert.Equal(t, mesh.IndexType{true, false, true}, s.B[c].IndexType())
	}
}

func TestNewRejectsEsirkepovOnNodalSolver(t *testing.T) {
	cfg := loadConfig(t, "1", warmElectrons)
	cfg.Solver.Nodal = true
	_, err := New(cfg)
	assert.ErrorIs(t, err, particles.ErrInvalidConfig)
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	cfg := loadConfig(t, "1", warmElectrons)
	cfg.Particles.Pusher = "leapfrog"
	_, err := New(cfg)
	assert.ErrorIs(t, err, particles.ErrInvalidConfig)
}

func TestInitDataInjectsUniformPlasma(t *testing.T) {
	cfg := loadConfig(t, "2", warmElectrons)
	s := newSim(t, cfg)

	pc := s.Particles("electrons")
	require.NotNil(t, pc)
	assert.Nil(t, s.Particles("positrons"))
	assert.Equal(t, 16*16*4, pc.NumParticles())

	// Weight per unit length along the collapsed axis.
	volume := 16e-6 * 16e-6
	assert.InEpsilon(t, 1e24*volume, pc.TotalWeight(), 1e-12)

	st := s.Stats()
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, 16*16*4, st.Particles)
	assert.Equal(t, 16*16*4, st.Injected)
	assert.InEpsilon(t, -phys.QElectron*1e24*volume, st.TotalCharge, 1e-9)
	assert.Greater(t, st.KineticEnergy, 0.0)
	assert.Greater(t, st.GammaMean, 1.0)
}

func TestStepConservesChargeWithPeriodicBoundaries(t *testing.T) {
	cfg := loadConfig(t, "2", warmElectrons)
	s := newSim(t, cfg)
	q0 := s.Stats().TotalCharge

	for n := 1; n <= 4; n++ {
		s.Step()
		st := s.Stats()
		require.Equal(t, n, st.Step)
		assert.InEpsilon(t, q0, st.TotalCharge, 1e-9, "step %d", n)
		assert.Equal(t, 16*16*4, st.Particles)
		assert.Zero(t, st.Lost)
	}
	assert.InDelta(t, 4*s.Dt(), s.Time(), 1e-12*s.Dt())

	// A warm plasma radiates: fields have grown from zero.
	assert.Greater(t, s.Stats().FieldEnergyE, 0.0)
}

func TestColdNeutralPlasmaStaysQuiet(t *testing.T) {
	cfg := loadConfig(t, "2", coldNeutral)
	s := newSim(t, cfg)

	assert.InDelta(t, 0, s.Stats().TotalCharge, 1e-12*phys.QElectron*1e24*16e-6*16e-6)

	s.Evolve(3)
	st := s.Stats()
	assert.Less(t, st.MaxE, 1e-3)
	assert.Less(t, st.MaxB, 1e-12)
	assert.InDelta(t, 1.0, st.GammaP90, 1e-12)
}

func TestRunsAreReproducible(t *testing.T) {
	run := func(workers string) *Simulation {
		s := newSim(t, loadConfig(t, workers, warmElectrons))
		s.Evolve(3)
		return s
	}
	a, b := run("1"), run("3")
	assert.Equal(t, a.Stats(), b.Stats())
}

func TestEvolveHonorsMaxStepAndStopTime(t *testing.T) {
	s := newSim(t, loadConfig(t, "1", warmElectrons))
	s.Evolve(-1)
	assert.Equal(t, 4, s.StepCount())

	cfg := loadConfig(t, "1", warmElectrons, "solver:\n  dt: 1.0e-16\n")
	cfg.Run.StopTime = 2.5e-16
	s = newSim(t, cfg)
	s.Evolve(10)
	assert.Equal(t, 3, s.StepCount())
}

func TestOutputFiles(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	cfg := loadConfig(t, "2", warmElectrons)
	cfg.Diagnostics.Interval = 2
	cfg.Diagnostics.OutputDir = out
	cfg.Diagnostics.RawFields = true
	cfg.Diagnostics.CoarsenRatio = 2
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.InitData())
	s.Evolve(2)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(out, "fields.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3, "header plus records for steps 0 and 2")

	_, err = config.Load(filepath.Join(out, "config.yaml"))
	assert.NoError(t, err)

	fields := filepath.Join(out, "fields")
	ex, err := fieldio.ReadRawField(fields, "step000002", "Ex")
	require.NoError(t, err)
	assert.Len(t, ex.Fabs, 4)
	assert.Equal(t, mesh.IndexType{false, false, true}, ex.Header.IndexType)

	coarse, err := fieldio.ReadRawField(fields, "step000000", "coarse_EBJ")
	require.NoError(t, err)
	assert.Equal(t, 9, coarse.Header.NComp)
	assert.Equal(t, mesh.IntVect{3, 0, 3}, coarse.Header.Patches[0].Hi)
}

func TestInjectorAppliesDrift(t *testing.T) {
	cfg := loadConfig(t, "1", coldNeutral)
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Close()

	sc := cfg.Species[0]
	sc.Drift = [3]float64{0.1, 0, -0.2}
	pc := s.Particles(sc.Name)
	in := injector{geom: s.geom, ba: s.ba, seed: 7}
	require.Equal(t, 16*16*4, in.inject(pc, sc, 0))

	pc.ForEach(func(p particles.Particle) {
		assert.Equal(t, 0.1*phys.C, p.UX)
		assert.Equal(t, 0.0, p.UY)
		assert.Equal(t, -0.2*phys.C, p.UZ)
		assert.Equal(t, 0.0, p.Y)
	})

	sc.Density = 0
	assert.Zero(t, in.inject(pc, sc, 0))
}
