package particles

import (
	"fmt"

	"github.com/pthm-cable/picsim/mesh"
)

// depositBuffer is a tile's private accumulation target. Tiles deposit into
// their own buffers concurrently; the buffers are then added into the patch
// fabs in tile order.
type depositBuffer struct {
	j       [3]*mesh.Fab
	jType   [3]mesh.IndexType
	rho     *mesh.Fab
	rhoType mesh.IndexType
	used    bool
}

// bufferBox returns the region of target patch that tile can deposit into:
// the tile converted to the target's index type, grown by the stencil
// reach and clipped to the target fab.
func bufferBox(target *mesh.MultiFab, patch int, tile *Tile, reach mesh.IntVect) mesh.Box {
	return tile.box.Convert(target.IndexType()).Grow(reach).Intersect(target.FabBox(patch))
}

// prepareBuffers makes sure the tile's buffers match the targets and zeroes
// them.
func (t *Tile) prepareBuffers(src Sources, patch int, reach mesh.IntVect) *depositBuffer {
	if t.buf == nil {
		t.buf = &depositBuffer{}
	}
	b := t.buf
	for d := 0; d < 3; d++ {
		box := bufferBox(src.J[d], patch, t, reach)
		if b.j[d] == nil || b.j[d].Box() != box {
			b.j[d] = mesh.NewFab(box, 1)
		} else {
			b.j[d].SetVal(0)
		}
		b.jType[d] = src.J[d].IndexType()
	}
	if src.Rho != nil {
		box := bufferBox(src.Rho, patch, t, reach)
		if b.rho == nil || b.rho.Box() != box || b.rho.NComp() != src.Rho.NComp() {
			b.rho = mesh.NewFab(box, src.Rho.NComp())
		} else {
			b.rho.SetVal(0)
		}
		b.rhoType = src.Rho.IndexType()
	}
	b.used = true
	return b
}

// flush adds the tile's buffers into the patch fabs and marks them unused.
func (b *depositBuffer) flush(src Sources, patch int) {
	if b == nil || !b.used {
		return
	}
	for d := 0; d < 3; d++ {
		src.J[d].Fab(patch).AddShifted(b.j[d], b.j[d].Box(), mesh.IntVect{}, 0, 0, 1)
	}
	if src.Rho != nil && b.rho != nil {
		src.Rho.Fab(patch).AddShifted(b.rho, b.rho.Box(), mesh.IntVect{}, 0, 0, src.Rho.NComp())
	}
	b.used = false
}

// esirkepovAxis holds the old and new shape factors of one particle along
// one axis over a common window.
type esirkepovAxis struct {
	lo int
	n  int
	s0 [maxStencil]float64
	ds [maxStencil]float64
}

func newEsirkepovAxis(order int, xi0, xi1 float64, collapsed bool) (esirkepovAxis, bool) {
	var a esirkepovAxis
	if collapsed {
		a.n = 1
		a.s0[0] = 1
		return a, true
	}
	var w0, w1 [maxStencil]float64
	start0 := shape(order, xi0, &w0)
	start1 := shape(order, xi1, &w1)
	a.lo = min(start0, start1)
	a.n = max(start0, start1) + order + 1 - a.lo
	if a.n > maxStencil {
		return a, false
	}
	var s1 [maxStencil]float64
	for m := 0; m <= order; m++ {
		a.s0[start0-a.lo+m] = w0[m]
		s1[start1-a.lo+m] = w1[m]
	}
	for m := 0; m < a.n; m++ {
		a.ds[m] = s1[m] - a.s0[m]
	}
	return a, true
}

// esirkepovWeight is the charge-conserving weight of the point whose
// transverse shape factors are (s0a, dsa) and (s0b, dsb).
func esirkepovWeight(s0a, dsa, s0b, dsb float64) float64 {
	return s0a*s0b + 0.5*dsa*s0b + 0.5*s0a*dsb + dsa*dsb/3
}

func checkWindow(f *mesh.Fab, lo mesh.IntVect, n mesh.IntVect) bool {
	if n[0] <= 0 || n[1] <= 0 || n[2] <= 0 {
		return true
	}
	return f.Box().ContainsBox(mesh.NewBox(lo, lo.Add(n).Sub(mesh.IntVect{1, 1, 1})))
}

// depositEsirkepov deposits the current of particles that moved from
// (x0,y0,z0) to their present positions over dt, so that the discrete
// continuity equation holds against the nodal charge of depositCharge.
func (k *Kernel) depositEsirkepov(pc *Container, patch, tileIdx int, tile *Tile, s *workerScratch, buf *depositBuffer, dt float64) {
	geom := pc.geom
	dx := geom.CellSize()
	invVol := 1 / geom.CellVolume()
	twoD := geom.Dim == 2
	order := k.cfg.ShapeOrder

	jx, jy, jz := buf.j[0], buf.j[1], buf.j[2]
	dataX, dataY, dataZ := jx.Comp(0), jy.Comp(0), jz.Comp(0)

	for i := 0; i < tile.Len(); i++ {
		xi0 := pc.gridPosition(s.x0[i], s.y0[i], s.z0[i])
		xi1 := pc.gridPosition(tile.X[i], tile.Y[i], tile.Z[i])

		var ax [3]esirkepovAxis
		for d := 0; d < 3; d++ {
			var ok bool
			ax[d], ok = newEsirkepovAxis(order[d], xi0[d], xi1[d], geom.Collapsed(d))
			if !ok {
				panic(fmt.Sprintf("particles: deposit: species %q patch %d tile %d particle %d moved more than one cell along axis %d",
					pc.Name, patch, tileIdx, tile.ID[i], d))
			}
		}
		lo := mesh.IntVect{ax[0].lo, ax[1].lo, ax[2].lo}
		n := mesh.IntVect{ax[0].n, ax[1].n, ax[2].n}
		qw := pc.Charge * tile.W[i]

		nY := n
		if !twoD {
			nY[1]--
		}
		okX := checkWindow(jx, lo, n.Sub(mesh.IntVect{1, 0, 0}))
		okY := checkWindow(jy, lo, nY)
		okZ := checkWindow(jz, lo, n.Sub(mesh.IntVect{0, 0, 1}))
		if !okX || !okY || !okZ {
			panic(fmt.Sprintf("particles: deposit: species %q patch %d tile %d particle %d at (%g, %g, %g) is outside the stencil support",
				pc.Name, patch, tileIdx, tile.ID[i], tile.X[i], tile.Y[i], tile.Z[i]))
		}

		// Jx accumulates along x; the last window point always carries zero.
		cx := -qw * dx[0] * invVol / dt
		for kk := 0; kk < n[2]; kk++ {
			for jj := 0; jj < n[1]; jj++ {
				wyz := esirkepovWeight(ax[1].s0[jj], ax[1].ds[jj], ax[2].s0[kk], ax[2].ds[kk])
				o := jx.Offset(lo[0], lo[1]+jj, lo[2]+kk)
				sum := 0.0
				for ii := 0; ii < n[0]-1; ii++ {
					sum += ax[0].ds[ii] * wyz
					dataX[o+ii] += cx * sum
				}
			}
		}

		if twoD {
			vy := tile.UY[i] * tile.GInv[i]
			cy := qw * vy * invVol
			for kk := 0; kk < n[2]; kk++ {
				o := jy.Offset(lo[0], 0, lo[2]+kk)
				for ii := 0; ii < n[0]; ii++ {
					dataY[o+ii] += cy * esirkepovWeight(ax[0].s0[ii], ax[0].ds[ii], ax[2].s0[kk], ax[2].ds[kk])
				}
			}
		} else {
			cy := -qw * dx[1] * invVol / dt
			sy, _ := jy.Strides()
			for kk := 0; kk < n[2]; kk++ {
				for ii := 0; ii < n[0]; ii++ {
					wxz := esirkepovWeight(ax[0].s0[ii], ax[0].ds[ii], ax[2].s0[kk], ax[2].ds[kk])
					o := jy.Offset(lo[0]+ii, lo[1], lo[2]+kk)
					sum := 0.0
					for jj := 0; jj < n[1]-1; jj++ {
						sum += ax[1].ds[jj] * wxz
						dataY[o+jj*sy] += cy * sum
					}
				}
			}
		}

		cz := -qw * dx[2] * invVol / dt
		_, sz := jz.Strides()
		for jj := 0; jj < n[1]; jj++ {
			for ii := 0; ii < n[0]; ii++ {
				wxy := esirkepovWeight(ax[0].s0[ii], ax[0].ds[ii], ax[1].s0[jj], ax[1].ds[jj])
				o := jz.Offset(lo[0]+ii, lo[1]+jj, lo[2])
				sum := 0.0
				for kk := 0; kk < n[2]-1; kk++ {
					sum += ax[2].ds[kk] * wxy
					dataZ[o+kk*sz] += cz * sum
				}
			}
		}
	}
}

// depositDirect deposits q*w*v*S at the mid-step position. It does not
// conserve charge.
func (k *Kernel) depositDirect(pc *Container, patch, tileIdx int, tile *Tile, buf *depositBuffer, dt float64) {
	invVol := 1 / pc.geom.CellVolume()
	for i := 0; i < tile.Len(); i++ {
		g := tile.GInv[i]
		v := [3]float64{tile.UX[i] * g, tile.UY[i] * g, tile.UZ[i] * g}
		xi := pc.gridPosition(tile.X[i]-0.5*dt*v[0], tile.Y[i]-0.5*dt*v[1], tile.Z[i]-0.5*dt*v[2])
		qw := pc.Charge * tile.W[i] * invVol
		for d := 0; d < 3; d++ {
			if !k.depositPoint(buf.j[d], buf.jType[d], 0, xi, qw*v[d], pc.geom) {
				panic(fmt.Sprintf("particles: deposit: species %q patch %d tile %d particle %d at (%g, %g, %g) is outside the stencil support",
					pc.Name, patch, tileIdx, tile.ID[i], tile.X[i], tile.Y[i], tile.Z[i]))
			}
		}
	}
}

// depositChargeTile deposits q*w*S/dV of every particle of tile into
// component comp of f, at the given positions.
func (k *Kernel) depositChargeTile(pc *Container, patch, tileIdx int, tile *Tile, f *mesh.Fab, ix mesh.IndexType, comp int, x, y, z []float64) {
	invVol := 1 / pc.geom.CellVolume()
	for i := 0; i < tile.Len(); i++ {
		xi := pc.gridPosition(x[i], y[i], z[i])
		if !k.depositPoint(f, ix, comp, xi, pc.Charge*tile.W[i]*invVol, pc.geom) {
			panic(fmt.Sprintf("particles: deposit charge: species %q patch %d tile %d particle %d at (%g, %g, %g) is outside the stencil support",
				pc.Name, patch, tileIdx, tile.ID[i], x[i], y[i], z[i]))
		}
	}
}

// depositPoint spreads value over the shape stencil at xi on f, a fab of
// index type ix. It reports false when the stencil leaves f.
func (k *Kernel) depositPoint(f *mesh.Fab, ix mesh.IndexType, comp int, xi [3]float64, value float64, geom mesh.Geometry) bool {
	var w [3][maxStencil]float64
	var lo, n mesh.IntVect
	for d := 0; d < 3; d++ {
		lo[d], n[d] = axisShape(k.cfg.ShapeOrder[d], xi[d], ix[d], geom.Collapsed(d), &w[d])
	}
	if !checkWindow(f, lo, n) {
		return false
	}
	data := f.Comp(comp)
	for kk := 0; kk < n[2]; kk++ {
		for jj := 0; jj < n[1]; jj++ {
			wyz := value * w[1][jj] * w[2][kk]
			o := f.Offset(lo[0], lo[1]+jj, lo[2]+kk)
			for ii := 0; ii < n[0]; ii++ {
				data[o+ii] += w[0][ii] * wyz
			}
		}
	}
	return true
}
