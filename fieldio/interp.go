package fieldio

import (
	"fmt"
	"math"

	"github.com/pthm-cable/picsim/mesh"
)

// InterpolatedScalar returns a new MultiFab with the layout, index type
// and ghost width ngrow of fp, filled by linear interpolation of cp, a field
// of the same index type on the patches of fp coarsened by ratio. cp needs
// at least one ghost, exchanged.
func InterpolatedScalar(cp, fp *mesh.MultiFab, ratio int, ngrow mesh.IntVect) *mesh.MultiFab {
	if ratio < 1 {
		panic(fmt.Sprintf("fieldio: InterpolatedScalar: refinement ratio %d", ratio))
	}
	if cp.IndexType() != fp.IndexType() || !cp.BoxArray().Equal(fp.BoxArray().Coarsen(ratio)) {
		panic(fmt.Sprintf("fieldio: InterpolatedScalar: %v is not the %d-coarsened layout of %v", cp, ratio, fp))
	}
	out := mesh.NewMultiFab(fp.BoxArray(), fp.DistributionMap(), cp.NComp(), ngrow, fp.IndexType())
	ix := fp.IndexType()
	out.DistributionMap().ForEachPatch(func(_, p int) {
		interpolatePatch(out.Fab(p), cp.Fab(p), ix, ratio, out.FabBox(p))
	})
	return out
}

// InterpolatedVector applies InterpolatedScalar to each component.
func InterpolatedVector(cp, fp [3]*mesh.MultiFab, ratio int, ngrow mesh.IntVect) [3]*mesh.MultiFab {
	var out [3]*mesh.MultiFab
	for d := 0; d < 3; d++ {
		out[d] = InterpolatedScalar(cp[d], fp[d], ratio, ngrow)
	}
	return out
}

// coarsePosition maps fine index i to a coarse index position. Nodes line
// up every ratio points; cell centers sit at (i+1/2)/ratio - 1/2.
func coarsePosition(i, ratio int, nodal bool) (lo int, frac float64) {
	var x float64
	if nodal {
		x = float64(i) / float64(ratio)
	} else {
		x = (float64(i)+0.5)/float64(ratio) - 0.5
	}
	f := math.Floor(x)
	return int(f), x - f
}

func interpolatePatch(out, in *mesh.Fab, ix mesh.IndexType, ratio int, b mesh.Box) {
	var lo [3][]int
	var w [3][]float64
	for d := 0; d < 3; d++ {
		n := b.Length(d)
		lo[d] = make([]int, n)
		w[d] = make([]float64, n)
		for m := 0; m < n; m++ {
			if in.Box().Length(d) == 1 {
				// collapsed axis
				lo[d][m] = in.Box().Lo[d]
				continue
			}
			lo[d][m], w[d][m] = coarsePosition(b.Lo[d]+m, ratio, ix[d])
		}
	}
	// A weight of zero never reads past the coarse fab.
	hi := func(d, m int) int {
		if w[d][m] == 0 {
			return lo[d][m]
		}
		return lo[d][m] + 1
	}
	for c := 0; c < out.NComp(); c++ {
		for k := 0; k < b.Length(2); k++ {
			k0, k1, wz := lo[2][k], hi(2, k), w[2][k]
			for j := 0; j < b.Length(1); j++ {
				j0, j1, wy := lo[1][j], hi(1, j), w[1][j]
				for i := 0; i < b.Length(0); i++ {
					i0, i1, wx := lo[0][i], hi(0, i), w[0][i]
					v := (1-wz)*((1-wy)*((1-wx)*in.At(i0, j0, k0, c)+wx*in.At(i1, j0, k0, c))+
						wy*((1-wx)*in.At(i0, j1, k0, c)+wx*in.At(i1, j1, k0, c))) +
						wz*((1-wy)*((1-wx)*in.At(i0, j0, k1, c)+wx*in.At(i1, j0, k1, c))+
							wy*((1-wx)*in.At(i0, j1, k1, c)+wx*in.At(i1, j1, k1, c)))
					out.Set(b.Lo[0]+i, b.Lo[1]+j, b.Lo[2]+k, c, v)
				}
			}
		}
	}
}

// CoarsenCellCentered averages a cell-centered field down by ratio along
// every resolved axis. It returns the coarse field, without ghosts, and its
// geometry.
func CoarsenCellCentered(src *mesh.MultiFab, srcGeom mesh.Geometry, ratio int) (*mesh.MultiFab, mesh.Geometry) {
	if src.IndexType() != mesh.CellType {
		panic(fmt.Sprintf("fieldio: CoarsenCellCentered: %v is not cell-centered", src))
	}
	if ratio < 1 {
		panic(fmt.Sprintf("fieldio: CoarsenCellCentered: coarsening ratio %d", ratio))
	}
	var r mesh.IntVect
	for d := 0; d < 3; d++ {
		r[d] = ratio
		if srcGeom.Collapsed(d) {
			r[d] = 1
		}
	}
	for p, b := range src.BoxArray() {
		for d := 0; d < 3; d++ {
			if b.Length(d)%r[d] != 0 || b.Lo[d]%r[d] != 0 {
				panic(fmt.Sprintf("fieldio: CoarsenCellCentered: patch %d %v is not aligned to ratio %d", p, b, ratio))
			}
		}
	}

	cgeom := srcGeom.Coarsen(ratio)
	cba := src.BoxArray().Coarsen(ratio)
	dst := mesh.NewMultiFab(cba, src.DistributionMap(), src.NComp(), mesh.IntVect{}, mesh.CellType)
	inv := 1 / float64(r[0]*r[1]*r[2])

	dst.DistributionMap().ForEachPatch(func(_, p int) {
		in, out := src.Fab(p), dst.Fab(p)
		cb := dst.ValidBox(p)
		for c := 0; c < src.NComp(); c++ {
			data := in.Comp(c)
			for k := cb.Lo[2]; k <= cb.Hi[2]; k++ {
				for j := cb.Lo[1]; j <= cb.Hi[1]; j++ {
					for i := cb.Lo[0]; i <= cb.Hi[0]; i++ {
						sum := 0.0
						for kk := 0; kk < r[2]; kk++ {
							for jj := 0; jj < r[1]; jj++ {
								o := in.Offset(i*r[0], j*r[1]+jj, k*r[2]+kk)
								for ii := 0; ii < r[0]; ii++ {
									sum += data[o+ii]
								}
							}
						}
						out.Set(i, j, k, c, sum*inv)
					}
				}
			}
		}
	})
	return dst, cgeom
}
