package particles

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/phys"
)

var yeeE = [3]mesh.IndexType{{false, true, true}, {true, false, true}, {true, true, false}}
var yeeB = [3]mesh.IndexType{{true, false, false}, {false, true, false}, {false, false, true}}

type testGrid struct {
	geom mesh.Geometry
	ba   mesh.BoxArray
	dm   mesh.DistributionMap
	f    Fields
	src  Sources
}

// newTestGrid builds a periodic cubic domain of n cells per resolved axis
// and unit-free cell size dx, with Yee fields and two-component rho.
func newTestGrid(dim, n, maxGrid, ngrow int, dx float64) *testGrid {
	lo := -n / 2
	domain := mesh.NewBox(mesh.IntVect{lo, lo, lo}, mesh.IntVect{lo + n - 1, lo + n - 1, lo + n - 1})
	l := float64(n) * dx
	geom := mesh.NewGeometry(domain,
		[3]float64{float64(lo) * dx, float64(lo) * dx, float64(lo) * dx},
		[3]float64{float64(lo)*dx + l, float64(lo)*dx + l, float64(lo)*dx + l},
		[3]bool{true, true, true}, dim)
	ba := mesh.Decompose(geom.Domain, mesh.IntVect{maxGrid, maxGrid, maxGrid})
	dm := mesh.RoundRobin(len(ba), 2)
	g := &testGrid{geom: geom, ba: ba, dm: dm}
	ng := geom.Ghosts(ngrow)
	for d := 0; d < 3; d++ {
		g.f.E[d] = mesh.NewMultiFab(ba, dm, 1, ng, geom.IndexType(yeeE[d]))
		g.f.B[d] = mesh.NewMultiFab(ba, dm, 1, ng, geom.IndexType(yeeB[d]))
		g.src.J[d] = mesh.NewMultiFab(ba, dm, 1, ng, geom.IndexType(yeeE[d]))
	}
	g.src.Rho = mesh.NewMultiFab(ba, dm, 2, ng, geom.IndexType(mesh.NodalType))
	return g
}

func (g *testGrid) container(t *testing.T, sp Species, tile int) *Container {
	pc, err := NewContainer(sp, g.geom, g.ba, g.dm, mesh.IntVect{tile, tile, tile})
	require.NoError(t, err)
	return pc
}

func newTestKernel(t *testing.T, cfg KernelConfig) *Kernel {
	k, err := NewKernel(cfg)
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return k
}

// fillRandom adds n particles with random positions and velocities up to
// vmax*c per axis.
func fillRandom(t *testing.T, pc *Container, rng *rand.Rand, n int, vmax float64) {
	g := pc.Geometry()
	for range n {
		var pos, u [3]float64
		for d := 0; d < 3; d++ {
			pos[d] = g.ProbLo[d] + rng.Float64()*(g.ProbHi[d]-g.ProbLo[d])
			u[d] = (2*rng.Float64() - 1) * vmax * phys.C
		}
		v2 := (u[0]*u[0] + u[1]*u[1] + u[2]*u[2]) / (phys.C * phys.C)
		gamma := 1 / math.Sqrt(1-v2)
		require.True(t, pc.AddParticle(Particle{
			X: pos[0], Y: pos[1], Z: pos[2],
			UX: gamma * u[0], UY: gamma * u[1], UZ: gamma * u[2],
			W: 0.5 + rng.Float64(),
		}))
	}
}

// swap exchanges slots i and j.
func (t *Tile) swap(i, j int) {
	t.X[i], t.X[j] = t.X[j], t.X[i]
	t.Y[i], t.Y[j] = t.Y[j], t.Y[i]
	t.Z[i], t.Z[j] = t.Z[j], t.Z[i]
	t.UX[i], t.UX[j] = t.UX[j], t.UX[i]
	t.UY[i], t.UY[j] = t.UY[j], t.UY[i]
	t.UZ[i], t.UZ[j] = t.UZ[j], t.UZ[i]
	t.W[i], t.W[j] = t.W[j], t.W[i]
	t.GInv[i], t.GInv[j] = t.GInv[j], t.GInv[i]
	t.ID[i], t.ID[j] = t.ID[j], t.ID[i]
}

func TestShapeFactorsSumToOne(t *testing.T) {
	for order := 0; order <= 3; order++ {
		for _, xi := range []float64{-3.7, -0.5, 0, 0.25, 1.5, 2.999, 10.1} {
			var w [maxStencil]float64
			start := shape(order, xi, &w)
			sum := 0.0
			for m := 0; m <= order; m++ {
				sum += w[m]
				assert.GreaterOrEqual(t, w[m], 0.0)
			}
			assert.InDelta(t, 1.0, sum, 1e-14, "order %d xi %g", order, xi)
			assert.LessOrEqual(t, float64(start), xi+0.5)
			assert.Greater(t, float64(start+order)+1, xi-0.5)
		}
	}

	var w [maxStencil]float64
	assert.Equal(t, 3, shape(1, 3.25, &w))
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, w[:2], 1e-15)

	// A particle on a node gives the cubic spline's 1/6, 2/3, 1/6.
	assert.Equal(t, 1, shape(3, 2, &w))
	assert.InDeltaSlice(t, []float64{1.0 / 6, 2.0 / 3, 1.0 / 6, 0}, w[:4], 1e-15)
}

func TestNewKernelRejectsBadConfig(t *testing.T) {
	bad := []KernelConfig{
		{ShapeOrder: [3]int{0, 1, 1}},
		{ShapeOrder: [3]int{1, 4, 1}},
		{ShapeOrder: [3]int{1, 1, 1}, Pusher: PusherAlgo(7)},
		{ShapeOrder: [3]int{1, 1, 1}, Gather: GatherAlgo(-1)},
		{ShapeOrder: [3]int{1, 1, 1}, Deposition: DepositionAlgo(2)},
		{ShapeOrder: [3]int{1, 1, 1}, Workers: -1},
	}
	for _, cfg := range bad {
		_, err := NewKernel(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
	}

	_, err := ParsePusherAlgo("leapfrog")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	algo, err := ParseGatherAlgo("Momentum-Conserving")
	require.NoError(t, err)
	assert.Equal(t, MomentumConserving, algo)
}

func TestParticleAtRestInZeroField(t *testing.T) {
	for _, pusher := range []PusherAlgo{Boris, Vay} {
		for _, order := range []int{1, 2, 3} {
			g := newTestGrid(3, 8, 8, 3, 1e-6)
			pc := g.container(t, Species{Name: "electrons", Charge: -phys.QElectron, Mass: phys.MElectron}, 4)
			require.True(t, pc.AddParticle(Particle{X: 0.3e-6, Y: -1.1e-6, Z: 2.5e-6, W: 1e5}))

			k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{order, order, order}, Pusher: pusher})
			k.Evolve(pc, g.f, g.src, 1e-15)

			var got Particle
			pc.ForEach(func(p Particle) { got = p })
			assert.Equal(t, 0.3e-6, got.X)
			assert.Equal(t, -1.1e-6, got.Y)
			assert.Equal(t, 2.5e-6, got.Z)
			assert.Equal(t, [3]float64{}, [3]float64{got.UX, got.UY, got.UZ})
			for d := 0; d < 3; d++ {
				assert.Equal(t, 0.0, g.src.J[d].MaxAbs(0), "pusher %d order %d J%d", pusher, order, d)
			}
			// Old and new charge agree exactly.
			assert.Equal(t, g.src.Rho.Sum(RhoOldComp), g.src.Rho.Sum(RhoNewComp))
		}
	}
}

func TestUniformElectricFieldKick(t *testing.T) {
	for _, pusher := range []PusherAlgo{Boris, Vay} {
		g := newTestGrid(3, 16, 16, 3, 1)
		g.f.E[0].SetVal(1)
		pc := g.container(t, Species{Name: "unit", Charge: 1, Mass: 1}, 8)
		require.True(t, pc.AddParticle(Particle{W: 1}))

		k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{1, 1, 1}, Pusher: pusher})
		const dt = 0.01
		k.Evolve(pc, g.f, g.src, dt)

		tile := pc.Tile(0, 0)
		found := false
		for p := 0; p < pc.NumPatches(); p++ {
			for ti := 0; ti < pc.NumTiles(p); ti++ {
				if pc.Tile(p, ti).Len() == 1 {
					tile = pc.Tile(p, ti)
					found = true
				}
			}
		}
		require.True(t, found)
		assert.InDelta(t, 1*1*dt/1, tile.UX[0], 1e-15, "pusher %d", pusher)
		assert.Equal(t, 0.0, tile.UY[0])
		assert.Equal(t, 0.0, tile.UZ[0])
		assert.InDelta(t, 1.0, 1/tile.GInv[0], 1e-15)
		assert.InDelta(t, dt*dt, tile.X[0], 1e-15)
	}
}

func TestBorisConservesEnergyInMagneticField(t *testing.T) {
	ux, uy, uz := 0.6*phys.C, 0.1*phys.C, -0.3*phys.C
	u0 := math.Sqrt(ux*ux + uy*uy + uz*uz)
	qm := -phys.QElectron / phys.MElectron
	for range 1000 {
		pushBoris(&ux, &uy, &uz, 0, 0, 0, 0.2, -0.5, 1.3, qm, 1e-12)
	}
	assert.InEpsilon(t, u0, math.Sqrt(ux*ux+uy*uy+uz*uz), 1e-12)
}

func TestVayPreservesExBDrift(t *testing.T) {
	// E + v x B = 0 for v along x, B along z.
	v := 0.5 * phys.C
	bz := 2.0
	gamma := 1 / math.Sqrt(1-0.25)
	ux, uy, uz := gamma*v, 0.0, 0.0
	qm := phys.QElectron / phys.MProton
	for range 100 {
		ginv := pushVay(&ux, &uy, &uz, 0, v*bz, 0, 0, 0, bz, qm, 1e-9)
		assert.InEpsilon(t, 1/gamma, ginv, 1e-12)
	}
	assert.InEpsilon(t, gamma*v, ux, 1e-10)
	assert.InDelta(t, 0, uy, 1e-6*v)
}

// continuityResidual returns the largest |drho/dt + div J| over owned nodes
// and the largest |drho/dt|.
func continuityResidual(g *testGrid, dt float64) (resid, scale float64) {
	dx := g.geom.CellSize()
	rho := g.src.Rho
	for p := 0; p < rho.NumPatches(); p++ {
		b := rho.OwnedBox(p)
		jx, jy, jz := g.src.J[0].Fab(p), g.src.J[1].Fab(p), g.src.J[2].Fab(p)
		for k := b.Lo[2]; k <= b.Hi[2]; k++ {
			for j := b.Lo[1]; j <= b.Hi[1]; j++ {
				for i := b.Lo[0]; i <= b.Hi[0]; i++ {
					drho := (rho.Fab(p).At(i, j, k, RhoNewComp) - rho.Fab(p).At(i, j, k, RhoOldComp)) / dt
					div := (jx.At(i, j, k, 0)-jx.At(i-1, j, k, 0))/dx[0] +
						(jz.At(i, j, k, 0)-jz.At(i, j, k-1, 0))/dx[2]
					if g.geom.Dim == 3 {
						div += (jy.At(i, j, k, 0) - jy.At(i, j-1, k, 0)) / dx[1]
					}
					resid = math.Max(resid, math.Abs(drho+div))
					scale = math.Max(scale, math.Abs(drho))
				}
			}
		}
	}
	return resid, scale
}

func TestEsirkepovConservesCharge(t *testing.T) {
	for _, dim := range []int{3, 2} {
		for order := 1; order <= 3; order++ {
			g := newTestGrid(dim, 8, 4, 3, 1e-6)
			pc := g.container(t, Species{Name: "electrons", Charge: -phys.QElectron, Mass: phys.MElectron}, 2)
			fillRandom(t, pc, rand.New(rand.NewPCG(uint64(dim), uint64(order))), 200, 0.4)

			k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{order, order, order}, Workers: 3})
			dt := 0.5 * 1e-6 / phys.C
			k.Evolve(pc, g.f, g.src, dt)
			for d := 0; d < 3; d++ {
				g.src.J[d].SumBoundary(g.geom)
			}
			g.src.Rho.SumBoundary(g.geom)

			resid, scale := continuityResidual(g, dt)
			require.Greater(t, scale, 0.0)
			assert.Less(t, resid, 1e-10*scale, "dim %d order %d", dim, order)

			// Total charge is unchanged by the step.
			assert.InEpsilon(t, g.src.Rho.Sum(RhoOldComp), g.src.Rho.Sum(RhoNewComp), 1e-12)
		}
	}
}

func TestDirectDepositionCarriesCurrent(t *testing.T) {
	g := newTestGrid(3, 8, 8, 3, 1)
	pc := g.container(t, Species{Name: "unit", Charge: 2, Mass: 1}, 8)
	require.True(t, pc.AddParticle(Particle{X: 0.1, Y: 0.2, Z: 0.3, UX: 1e3, W: 1.5}))

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{2, 2, 2}, Deposition: Direct})
	k.Evolve(pc, g.f, Sources{J: g.src.J}, 1e-6)

	// Shape weights sum to one, so the summed current is q*w*v/dV.
	assert.InEpsilon(t, 2*1.5*1e3, g.src.J[0].Sum(0), 1e-9)
	assert.Equal(t, 0.0, g.src.J[1].MaxAbs(0))
}

// nodalCurrent replaces the Yee current of g with nodal MultiFabs.
func (g *testGrid) nodalCurrent() {
	for d := 0; d < 3; d++ {
		g.src.J[d] = mesh.NewMultiFab(g.ba, g.dm, 1, g.geom.Ghosts(3), g.geom.IndexType(mesh.NodalType))
	}
}

func TestEsirkepovRejectsNodalCurrent(t *testing.T) {
	g := newTestGrid(3, 8, 8, 3, 1)
	g.nodalCurrent()
	pc := g.container(t, Species{Name: "unit", Charge: 1, Mass: 1}, 8)
	require.True(t, pc.AddParticle(Particle{X: 0.3, UX: 0.2 * phys.C, W: 1}))

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{1, 1, 1}})
	assert.Panics(t, func() { k.Evolve(pc, g.f, Sources{J: g.src.J}, 1/phys.C) })
}

func TestDirectDepositionOnNodesCentersAtMidStep(t *testing.T) {
	g := newTestGrid(3, 8, 8, 3, 1)
	g.nodalCurrent()
	pc := g.container(t, Species{Name: "unit", Charge: 1, Mass: 1}, 8)
	require.True(t, pc.AddParticle(Particle{X: 0.3, UX: 0.2 * phys.C, W: 1}))

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{1, 1, 1}, Deposition: Direct})
	k.Evolve(pc, g.f, Sources{J: g.src.J}, 1/phys.C)

	jx := g.src.J[0].Fab(0)
	b := jx.Box()
	sum, moment := 0.0, 0.0
	for kk := b.Lo[2]; kk <= b.Hi[2]; kk++ {
		for jj := b.Lo[1]; jj <= b.Hi[1]; jj++ {
			for ii := b.Lo[0]; ii <= b.Hi[0]; ii++ {
				v := jx.At(ii, jj, kk, 0)
				sum += v
				moment += float64(ii) * v
			}
		}
	}
	require.Greater(t, sum, 0.0)
	mid := 0.3 + 0.5*0.2/math.Sqrt(1.04)
	assert.InDelta(t, mid, moment/sum, 1e-9)
}

func TestDepositionOrderIndependent(t *testing.T) {
	run := func(reverse bool) *testGrid {
		g := newTestGrid(3, 8, 8, 3, 1e-6)
		pc := g.container(t, Species{Name: "ions", Charge: phys.QElectron, Mass: phys.MProton}, 4)
		fillRandom(t, pc, rand.New(rand.NewPCG(3, 5)), 300, 0.3)
		if reverse {
			for p := 0; p < pc.NumPatches(); p++ {
				for ti := 0; ti < pc.NumTiles(p); ti++ {
					tile := pc.Tile(p, ti)
					for i, j := 0, tile.Len()-1; i < j; i, j = i+1, j-1 {
						tile.swap(i, j)
					}
				}
			}
		}
		k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{3, 3, 3}})
		k.Evolve(pc, g.f, g.src, 0.5e-6/phys.C)
		return g
	}
	a, b := run(false), run(true)
	for d := 0; d < 3; d++ {
		scale := a.src.J[d].MaxAbs(0)
		for p := 0; p < len(a.ba); p++ {
			assert.InDeltaSlice(t, a.src.J[d].Fab(p).Comp(0), b.src.J[d].Fab(p).Comp(0), 1e-12*scale)
		}
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	run := func(workers int) *testGrid {
		g := newTestGrid(3, 16, 8, 3, 1e-6)
		for d := 0; d < 3; d++ {
			g.f.E[d].SetVal(1e9 * float64(d+1))
			g.f.B[d].SetVal(0.5 * float64(d-1))
		}
		pc := g.container(t, Species{Name: "electrons", Charge: -phys.QElectron, Mass: phys.MElectron}, 4)
		fillRandom(t, pc, rand.New(rand.NewPCG(9, 9)), 4*parallelThreshold, 0.2)
		k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{2, 2, 2}, Pusher: Vay, Workers: workers})
		k.Evolve(pc, g.f, g.src, 0.3e-6/phys.C)
		return g
	}
	serial, parallel := run(1), run(4)
	for d := 0; d < 3; d++ {
		for p := 0; p < len(serial.ba); p++ {
			require.Equal(t, serial.src.J[d].Fab(p).Comp(0), parallel.src.J[d].Fab(p).Comp(0))
		}
	}
	for p := 0; p < len(serial.ba); p++ {
		require.Equal(t, serial.src.Rho.Fab(p).Comp(RhoNewComp), parallel.src.Rho.Fab(p).Comp(RhoNewComp))
	}
}

func TestEmptyContainerIsNoOp(t *testing.T) {
	g := newTestGrid(3, 8, 4, 3, 1)
	for d := 0; d < 3; d++ {
		g.src.J[d].SetVal(3)
	}
	g.src.Rho.SetVal(-2)
	pc := g.container(t, Species{Name: "none", Charge: 1, Mass: 1}, 2)

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{3, 3, 3}})
	k.Evolve(pc, g.f, g.src, 1)
	k.PushMomentum(pc, g.f, -0.5)
	k.DepositCharge(pc, g.src.Rho, RhoOldComp)

	for d := 0; d < 3; d++ {
		for p := 0; p < len(g.ba); p++ {
			for _, v := range g.src.J[d].Fab(p).Comp(0) {
				require.Equal(t, 3.0, v)
			}
		}
	}
	for p := 0; p < len(g.ba); p++ {
		for c := 0; c < 2; c++ {
			for _, v := range g.src.Rho.Fab(p).Comp(c) {
				require.Equal(t, -2.0, v)
			}
		}
	}
}

func TestDepositChargeMatchesTotal(t *testing.T) {
	g := newTestGrid(2, 16, 8, 3, 1e-6)
	sp := Species{Name: "electrons", Charge: -phys.QElectron, Mass: phys.MElectron}
	pc := g.container(t, sp, 4)
	fillRandom(t, pc, rand.New(rand.NewPCG(1, 1)), 100, 0)

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{2, 2, 2}})
	k.DepositCharge(pc, g.src.Rho, RhoNewComp)
	g.src.Rho.SumBoundary(g.geom)

	want := sp.Charge * pc.TotalWeight() / g.geom.CellVolume()
	assert.InEpsilon(t, want, g.src.Rho.Sum(RhoNewComp), 1e-12)
	assert.Equal(t, 0.0, g.src.Rho.MaxAbs(RhoOldComp))
}

func TestPushMomentumLeavesPositions(t *testing.T) {
	g := newTestGrid(3, 8, 8, 3, 1)
	g.f.E[2].SetVal(-4)
	pc := g.container(t, Species{Name: "unit", Charge: 1, Mass: 1}, 8)
	require.True(t, pc.AddParticle(Particle{X: 0.5, Y: 0.5, Z: 0.5, W: 1}))

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{1, 1, 1}})
	k.PushMomentum(pc, g.f, -0.5)

	pc.ForEach(func(p Particle) {
		assert.Equal(t, 0.5, p.X)
		assert.Equal(t, 0.5, p.Z)
		assert.InDelta(t, 2.0, p.UZ, 1e-12)
	})
}

func TestGatherOutsideSupportPanics(t *testing.T) {
	g := newTestGrid(3, 8, 4, 0, 1)
	pc := g.container(t, Species{Name: "unit", Charge: 1, Mass: 1}, 4)
	// The cubic stencil of a particle next to a patch face needs ghost cells.
	require.True(t, pc.AddParticle(Particle{X: -3.9, Y: 0.5, Z: 0.5, W: 1}))

	k := newTestKernel(t, KernelConfig{ShapeOrder: [3]int{3, 3, 3}})
	assert.Panics(t, func() { k.PushMomentum(pc, g.f, 1) })
}

func TestRedistribute(t *testing.T) {
	lo := mesh.IntVect{0, 0, 0}
	domain := mesh.NewBox(lo, mesh.IntVect{7, 7, 7})
	geom := mesh.NewGeometry(domain, [3]float64{}, [3]float64{8, 8, 8}, [3]bool{true, true, false}, 3)
	ba := mesh.Decompose(domain, mesh.IntVect{4, 8, 8})
	pc, err := NewContainer(Species{Name: "unit", Charge: 1, Mass: 1}, geom, ba, mesh.RoundRobin(len(ba), 1), mesh.IntVect{2, 8, 8})
	require.NoError(t, err)
	assert.Equal(t, 2, pc.NumTiles(0))

	require.True(t, pc.AddParticle(Particle{X: 1, Y: 1, Z: 1, W: 1}))
	require.True(t, pc.AddParticle(Particle{X: 3, Y: 1, Z: 1, W: 1}))
	require.True(t, pc.AddParticle(Particle{X: 5, Y: 1, Z: 7.5, W: 1}))
	assert.False(t, pc.AddParticle(Particle{X: 5, Y: 1, Z: 9, W: 1}))
	require.Equal(t, 1, pc.Tile(0, 0).Len())
	require.Equal(t, 1, pc.Tile(0, 1).Len())

	// Move across a tile face, across the periodic x boundary, and out
	// through the open z face.
	pc.Tile(0, 0).X[0] = 2.5
	pc.Tile(0, 1).X[0] = -0.5
	pc.Tile(1, 0).Z[0] = 8.2

	removed := pc.Redistribute()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, pc.NumParticles())
	assert.Equal(t, 1, pc.Tile(0, 1).Len())
	assert.Equal(t, 2.5, pc.Tile(0, 1).X[0])
	require.Equal(t, 1, pc.Tile(1, 1).Len())
	assert.Equal(t, 7.5, pc.Tile(1, 1).X[0])
	assert.Equal(t, uint64(2), pc.Tile(1, 1).ID[0])
}

func TestNewContainerRejectsBadSpecies(t *testing.T) {
	g := newTestGrid(3, 8, 8, 1, 1)
	_, err := NewContainer(Species{Name: "massless", Charge: 1}, g.geom, g.ba, g.dm, mesh.IntVect{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewContainer(Species{Name: "x", Mass: 1}, g.geom, g.ba, nil, mesh.IntVect{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
