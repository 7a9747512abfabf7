// Package particles holds the particle side of the PIC cycle: a
// structure-of-arrays container bucketed by patch and tile, and the kernel
// that gathers fields to particles, pushes them and deposits their current
// and charge back onto the mesh.
package particles

import (
	"fmt"
	"strings"

	"github.com/pthm-cable/picsim/mesh"
)

// GatherAlgo selects how fields are interpolated to particles.
type GatherAlgo int

const (
	// EnergyConserving uses one order lower along axes where a field is
	// cell-centered.
	EnergyConserving GatherAlgo = iota
	// MomentumConserving uses the particle shape order on every axis.
	MomentumConserving
)

// PusherAlgo selects the momentum integrator.
type PusherAlgo int

const (
	Boris PusherAlgo = iota
	Vay
)

// DepositionAlgo selects the current deposition scheme.
type DepositionAlgo int

const (
	// Esirkepov conserves charge exactly.
	Esirkepov DepositionAlgo = iota
	// Direct deposits q*w*v at the mid-step position.
	Direct
)

// Components of the charge density MultiFab in Sources.
const (
	RhoOldComp = 0
	RhoNewComp = 1
)

// ParseGatherAlgo maps a configuration name to a GatherAlgo.
func ParseGatherAlgo(s string) (GatherAlgo, error) {
	switch strings.ToLower(s) {
	case "energy", "energy-conserving":
		return EnergyConserving, nil
	case "momentum", "momentum-conserving":
		return MomentumConserving, nil
	}
	return 0, fmt.Errorf("particles: unknown gather algorithm %q: %w", s, ErrInvalidConfig)
}

// ParsePusherAlgo maps a configuration name to a PusherAlgo.
func ParsePusherAlgo(s string) (PusherAlgo, error) {
	switch strings.ToLower(s) {
	case "boris":
		return Boris, nil
	case "vay":
		return Vay, nil
	}
	return 0, fmt.Errorf("particles: unknown pusher %q: %w", s, ErrInvalidConfig)
}

// ParseDepositionAlgo maps a configuration name to a DepositionAlgo.
func ParseDepositionAlgo(s string) (DepositionAlgo, error) {
	switch strings.ToLower(s) {
	case "esirkepov":
		return Esirkepov, nil
	case "direct":
		return Direct, nil
	}
	return 0, fmt.Errorf("particles: unknown deposition scheme %q: %w", s, ErrInvalidConfig)
}

// KernelConfig selects the algorithms of a Kernel.
type KernelConfig struct {
	ShapeOrder [3]int // particle shape order per axis, 1..3
	Gather     GatherAlgo
	Pusher     PusherAlgo
	Deposition DepositionAlgo
	Workers    int // worker goroutines; 0 uses GOMAXPROCS
}

// Sources is the set of MultiFabs a kernel deposits into. Deposits are
// accumulated, never overwritten. Rho is optional; when set it must carry
// RhoOldComp and RhoNewComp.
type Sources struct {
	J   [3]*mesh.MultiFab
	Rho *mesh.MultiFab
}

// Kernel runs the gather, push and deposit loop over the tiles of a
// particle container. A Kernel holds no simulation state besides its
// configuration and worker pool, so several differently configured kernels
// can run side by side.
type Kernel struct {
	cfg  KernelConfig
	pool *workerPool
}

// NewKernel validates cfg and starts nothing until the first parallel run.
func NewKernel(cfg KernelConfig) (*Kernel, error) {
	for d, o := range cfg.ShapeOrder {
		if o < 1 || o > 3 {
			return nil, fmt.Errorf("particles: shape order %d along axis %d must be 1, 2 or 3: %w", o, d, ErrInvalidConfig)
		}
	}
	if cfg.Gather != EnergyConserving && cfg.Gather != MomentumConserving {
		return nil, fmt.Errorf("particles: gather algorithm %d: %w", cfg.Gather, ErrInvalidConfig)
	}
	if cfg.Pusher != Boris && cfg.Pusher != Vay {
		return nil, fmt.Errorf("particles: pusher %d: %w", cfg.Pusher, ErrInvalidConfig)
	}
	if cfg.Deposition != Esirkepov && cfg.Deposition != Direct {
		return nil, fmt.Errorf("particles: deposition scheme %d: %w", cfg.Deposition, ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("particles: negative worker count %d: %w", cfg.Workers, ErrInvalidConfig)
	}
	return &Kernel{cfg: cfg, pool: newWorkerPool(cfg.Workers)}, nil
}

// Config returns the kernel configuration.
func (k *Kernel) Config() KernelConfig { return k.cfg }

// Close stops the worker goroutines.
func (k *Kernel) Close() { k.pool.stop() }

// reach is how far past its tile a particle's deposit can land.
func (k *Kernel) reach(geom mesh.Geometry) mesh.IntVect {
	var r mesh.IntVect
	for d := 0; d < 3; d++ {
		if !geom.Collapsed(d) {
			r[d] = k.cfg.ShapeOrder[d] + 2
		}
	}
	return r
}

// jobs lists the non-empty tiles of pc.
func jobs(pc *Container) []tileJob {
	var out []tileJob
	for p := range pc.patches {
		for t, tile := range pc.patches[p].tiles {
			if tile.Len() > 0 {
				out = append(out, tileJob{patch: p, tile: t, np: tile.Len()})
			}
		}
	}
	return out
}

func checkLayout(pc *Container, op string, mfs ...*mesh.MultiFab) {
	for i, mf := range mfs {
		if mf == nil {
			panic(fmt.Sprintf("particles: %s: species %q: field %d is nil", op, pc.Name, i))
		}
		if !mf.BoxArray().Equal(pc.ba) {
			panic(fmt.Sprintf("particles: %s: species %q: field %d is not laid out on the particle patches", op, pc.Name, i))
		}
	}
}

// checkEdgeCurrent panics unless every current component is cell-centered
// along its own resolved axis, the edge layout Esirkepov deposits onto.
func checkEdgeCurrent(pc *Container, j [3]*mesh.MultiFab) {
	for d := 0; d < 3; d++ {
		if !pc.geom.Collapsed(d) && j[d].IndexType()[d] {
			panic(fmt.Sprintf("particles: Evolve: species %q: Esirkepov deposition needs J%c on cell edges, got index type %v",
				pc.Name, "xyz"[d], j[d].IndexType()))
		}
	}
}

// Evolve advances every particle of pc by dt and deposits into src: the
// charge at the old positions (RhoOldComp), the current of the step, and
// the charge at the new positions (RhoNewComp). Tiles run in parallel; the
// result does not depend on the number of workers. Particles are not
// redistributed.
func (k *Kernel) Evolve(pc *Container, f Fields, src Sources, dt float64) {
	e := f.all()
	checkLayout(pc, "Evolve", e[:]...)
	checkLayout(pc, "Evolve", src.J[:]...)
	if src.Rho != nil {
		checkLayout(pc, "Evolve", src.Rho)
	}

	if k.cfg.Deposition == Esirkepov {
		checkEdgeCurrent(pc, src.J)
	}

	qm := pc.Charge / pc.Mass
	reach := k.reach(pc.geom)
	js := jobs(pc)

	k.pool.run(js, func(job tileJob, s *workerScratch) {
		tile := pc.patches[job.patch].tiles[job.tile]
		s.resize(tile.Len())
		buf := tile.prepareBuffers(src, job.patch, reach)

		if src.Rho != nil {
			k.depositChargeTile(pc, job.patch, job.tile, tile, buf.rho, buf.rhoType, RhoOldComp, tile.X, tile.Y, tile.Z)
		}
		copy(s.x0, tile.X)
		copy(s.y0, tile.Y)
		copy(s.z0, tile.Z)

		k.gatherTile(pc, f, job.patch, job.tile, tile, s)
		k.pushTile(tile, s, qm, dt, true)

		switch k.cfg.Deposition {
		case Esirkepov:
			k.depositEsirkepov(pc, job.patch, job.tile, tile, s, buf, dt)
		case Direct:
			k.depositDirect(pc, job.patch, job.tile, tile, buf, dt)
		}
		if src.Rho != nil {
			k.depositChargeTile(pc, job.patch, job.tile, tile, buf.rho, buf.rhoType, RhoNewComp, tile.X, tile.Y, tile.Z)
		}
	})

	k.reduce(pc, src, js)
}

// reduce adds tile buffers into the patch fabs in tile order.
func (k *Kernel) reduce(pc *Container, src Sources, js []tileJob) {
	if len(js) == 0 {
		return
	}
	pc.dm.ForEachPatch(func(_, p int) {
		for _, tile := range pc.patches[p].tiles {
			tile.buf.flush(src, p)
		}
	})
}

// PushMomentum gathers fields and advances momenta by dt without moving
// particles. A negative dt pushes backwards, as used to stagger momenta half
// a step behind positions before the first step.
func (k *Kernel) PushMomentum(pc *Container, f Fields, dt float64) {
	e := f.all()
	checkLayout(pc, "PushMomentum", e[:]...)
	qm := pc.Charge / pc.Mass

	k.pool.run(jobs(pc), func(job tileJob, s *workerScratch) {
		tile := pc.patches[job.patch].tiles[job.tile]
		s.resize(tile.Len())
		k.gatherTile(pc, f, job.patch, job.tile, tile, s)
		k.pushTile(tile, s, qm, dt, false)
	})
}

// DepositCharge accumulates the charge density of pc at the current
// positions into component comp of rho.
func (k *Kernel) DepositCharge(pc *Container, rho *mesh.MultiFab, comp int) {
	checkLayout(pc, "DepositCharge", rho)
	reach := k.reach(pc.geom)
	js := jobs(pc)

	k.pool.run(js, func(job tileJob, _ *workerScratch) {
		tile := pc.patches[job.patch].tiles[job.tile]
		if tile.buf == nil {
			tile.buf = &depositBuffer{}
		}
		b := tile.buf
		box := bufferBox(rho, job.patch, tile, reach)
		if b.rho == nil || b.rho.Box() != box || b.rho.NComp() != rho.NComp() {
			b.rho = mesh.NewFab(box, rho.NComp())
		} else {
			b.rho.SetVal(0)
		}
		b.rhoType = rho.IndexType()
		k.depositChargeTile(pc, job.patch, job.tile, tile, b.rho, b.rhoType, comp, tile.X, tile.Y, tile.Z)
	})

	pc.dm.ForEachPatch(func(_, p int) {
		for _, tile := range pc.patches[p].tiles {
			if tile.Len() == 0 || tile.buf == nil || tile.buf.rho == nil {
				continue
			}
			rho.Fab(p).AddShifted(tile.buf.rho, tile.buf.rho.Box(), mesh.IntVect{}, comp, comp, 1)
		}
	})
}

// pushTile advances momenta with the gathered fields in s and, when move is
// set, positions by u/gamma*dt.
func (k *Kernel) pushTile(tile *Tile, s *workerScratch, qm, dt float64, move bool) {
	push := pushBoris
	if k.cfg.Pusher == Vay {
		push = pushVay
	}
	for i := 0; i < tile.Len(); i++ {
		ginv := push(&tile.UX[i], &tile.UY[i], &tile.UZ[i],
			s.ex[i], s.ey[i], s.ez[i], s.bx[i], s.by[i], s.bz[i], qm, dt)
		tile.GInv[i] = ginv
		if move {
			tile.X[i] += tile.UX[i] * ginv * dt
			tile.Y[i] += tile.UY[i] * ginv * dt
			tile.Z[i] += tile.UZ[i] * ginv * dt
		}
	}
}
