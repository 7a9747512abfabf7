// Package fieldio derives output arrays from solver fields: cell-centered
// averages, coarse-to-fine interpolation, coarsened levels and compressed
// raw dumps. Nothing here modifies its inputs.
package fieldio

import (
	"fmt"

	"github.com/pthm-cable/picsim/mesh"
)

// PackVectorPtrs lists the three components of a vector field in order.
func PackVectorPtrs(vf [3]*mesh.MultiFab) []*mesh.MultiFab {
	return []*mesh.MultiFab{vf[0], vf[1], vf[2]}
}

// AverageAndPackVectorField averages each component of vf to cell centers
// and stores them in components dcomp, dcomp+1 and dcomp+2 of dst, a
// cell-centered MultiFab on the same patches. Points up to ngrow ghosts out
// are filled.
func AverageAndPackVectorField(dst *mesh.MultiFab, vf [3]*mesh.MultiFab, dcomp int, ngrow mesh.IntVect) {
	for d := 0; d < 3; d++ {
		AverageAndPackScalarField(dst, vf[d], dcomp+d, ngrow)
	}
}

// AverageAndPackScalarField averages component 0 of sf to cell centers into
// component dcomp of dst.
func AverageAndPackScalarField(dst, sf *mesh.MultiFab, dcomp int, ngrow mesh.IntVect) {
	if dst.IndexType() != mesh.CellType {
		panic(fmt.Sprintf("fieldio: AverageAndPack: destination %v is not cell-centered", dst))
	}
	if !dst.BoxArray().Equal(sf.BoxArray()) {
		panic("fieldio: AverageAndPack: source and destination patches differ")
	}
	ix := sf.IndexType()
	sf.DistributionMap().ForEachPatch(func(_, p int) {
		b := dst.ValidBox(p).Grow(ngrow)
		in, out := sf.Fab(p), dst.Fab(p)
		if !in.Box().ContainsBox(b.Convert(ix)) {
			panic(fmt.Sprintf("fieldio: AverageAndPack: patch %d: source %v does not cover %v", p, in.Box(), b.Convert(ix)))
		}
		averageToCells(out, dcomp, in, 0, ix, b)
	})
}

// averageToCells sets every cell of b in out to the mean of the source
// points surrounding its center: one point along cell-centered axes, two
// along nodal ones.
func averageToCells(out *mesh.Fab, dcomp int, in *mesh.Fab, scomp int, ix mesh.IndexType, b mesh.Box) {
	var hi mesh.IntVect
	n := 1
	for d := 0; d < 3; d++ {
		if ix[d] {
			hi[d] = 1
			n *= 2
		}
	}
	inv := 1 / float64(n)
	src := in.Comp(scomp)
	for k := b.Lo[2]; k <= b.Hi[2]; k++ {
		for j := b.Lo[1]; j <= b.Hi[1]; j++ {
			for i := b.Lo[0]; i <= b.Hi[0]; i++ {
				sum := 0.0
				for kk := 0; kk <= hi[2]; kk++ {
					for jj := 0; jj <= hi[1]; jj++ {
						o := in.Offset(i, j+jj, k+kk)
						for ii := 0; ii <= hi[0]; ii++ {
							sum += src[o+ii]
						}
					}
				}
				out.Set(i, j, k, dcomp, sum*inv)
			}
		}
	}
}
