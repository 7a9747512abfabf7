package particles

import (
	"fmt"

	"github.com/pthm-cable/picsim/mesh"
)

// Fields is the set of electromagnetic field MultiFabs a kernel gathers
// from, one component each, laid out on the particle container's patches.
type Fields struct {
	E [3]*mesh.MultiFab
	B [3]*mesh.MultiFab
}

func (f Fields) all() [6]*mesh.MultiFab {
	return [6]*mesh.MultiFab{f.E[0], f.E[1], f.E[2], f.B[0], f.B[1], f.B[2]}
}

// interpolator evaluates one field component of one patch at particle
// positions.
type interpolator struct {
	fab       *mesh.Fab
	data      []float64
	ix        mesh.IndexType
	order     [3]int
	collapsed [3]bool
}

// newInterpolator prepares the gather of mf on patch. For the
// energy-conserving scheme, axes along which the field is cell-centered use
// one order lower than the particle shape.
func newInterpolator(mf *mesh.MultiFab, patch int, shapeOrder [3]int, algo GatherAlgo, geom mesh.Geometry) interpolator {
	ip := interpolator{
		fab:  mf.Fab(patch),
		data: mf.Fab(patch).Comp(0),
		ix:   mf.IndexType(),
	}
	for d := 0; d < 3; d++ {
		ip.collapsed[d] = geom.Collapsed(d)
		ip.order[d] = shapeOrder[d]
		if algo == EnergyConserving && !ip.ix[d] {
			ip.order[d]--
		}
	}
	return ip
}

// at returns the interpolated value at xi (grid-index units). It reports
// false when the stencil leaves the fab.
func (ip *interpolator) at(xi [3]float64) (float64, bool) {
	var wx, wy, wz [maxStencil]float64
	i0, nx := axisShape(ip.order[0], xi[0], ip.ix[0], ip.collapsed[0], &wx)
	j0, ny := axisShape(ip.order[1], xi[1], ip.ix[1], ip.collapsed[1], &wy)
	k0, nz := axisShape(ip.order[2], xi[2], ip.ix[2], ip.collapsed[2], &wz)

	if !ip.fab.Box().ContainsBox(mesh.NewBox(mesh.IntVect{i0, j0, k0}, mesh.IntVect{i0 + nx - 1, j0 + ny - 1, k0 + nz - 1})) {
		return 0, false
	}

	sum := 0.0
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			o := ip.fab.Offset(i0, j0+j, k0+k)
			wyz := wy[j] * wz[k]
			row := ip.data[o : o+nx]
			for i, v := range row {
				sum += wx[i] * wyz * v
			}
		}
	}
	return sum, true
}

// gatherTile interpolates the six field components to every particle of
// tile, writing them into s.
func (k *Kernel) gatherTile(pc *Container, f Fields, patch, tileIdx int, tile *Tile, s *workerScratch) {
	var ips [6]interpolator
	for c, mf := range f.all() {
		ips[c] = newInterpolator(mf, patch, k.cfg.ShapeOrder, k.cfg.Gather, pc.geom)
	}
	out := [6][]float64{s.ex, s.ey, s.ez, s.bx, s.by, s.bz}

	for i := 0; i < tile.Len(); i++ {
		xi := pc.gridPosition(tile.X[i], tile.Y[i], tile.Z[i])
		for c := range ips {
			v, ok := ips[c].at(xi)
			if !ok {
				panic(fmt.Sprintf("particles: gather: species %q patch %d tile %d particle %d at (%g, %g, %g) is outside the stencil support of field %d",
					pc.Name, patch, tileIdx, tile.ID[i], tile.X[i], tile.Y[i], tile.Z[i], c))
			}
			out[c][i] = v
		}
	}
}

// gridPosition converts a physical position into grid-index units, where
// node i of the domain sits at i.
func (pc *Container) gridPosition(x, y, z float64) [3]float64 {
	dx := pc.geom.CellSize()
	pos := [3]float64{x, y, z}
	var xi [3]float64
	for d := 0; d < 3; d++ {
		if pc.geom.Collapsed(d) {
			continue
		}
		xi[d] = (pos[d]-pc.geom.ProbLo[d])/dx[d] + float64(pc.geom.Domain.Lo[d])
	}
	return xi
}
