// Package filter smooths deposited current before it enters the field
// solver.
package filter

import (
	"fmt"

	"github.com/pthm-cable/picsim/mesh"
)

// Bilinear applies npass passes of the (1/4, 1/2, 1/4) binomial filter
// along each axis. The passes are folded into one precomputed stencil per
// axis, so a single sweep over the source gives the same result as npass
// sweeps with a ghost exchange between them.
type Bilinear struct {
	npass   [3]int
	stencil [3][]float64
}

// NewBilinear precomputes the stencils. An axis with zero passes is left
// untouched.
func NewBilinear(npass [3]int) (*Bilinear, error) {
	f := &Bilinear{npass: npass}
	for d, n := range npass {
		if n < 0 {
			return nil, fmt.Errorf("filter: negative pass count %d along axis %d", n, d)
		}
		f.stencil[d] = halfStencil(n)
	}
	return f, nil
}

// halfStencil returns the weights at offsets 0..n of n convolutions of
// (1/4, 1/2, 1/4). The full stencil is symmetric.
func halfStencil(n int) []float64 {
	full := []float64{1}
	for range n {
		next := make([]float64, len(full)+2)
		for i, v := range full {
			next[i] += 0.25 * v
			next[i+1] += 0.5 * v
			next[i+2] += 0.25 * v
		}
		full = next
	}
	return full[n:]
}

// NPass returns the pass count per axis, which is also the ghost width the
// source needs.
func (f *Bilinear) NPass() [3]int { return f.npass }

// Stencil returns the weights along axis d at offsets 0..NPass()[d].
func (f *Bilinear) Stencil(d int) []float64 { return f.stencil[d] }

// Apply writes the filtered components [scomp, scomp+ncomp) of src into
// [dcomp, dcomp+ncomp) of dst over every valid point. The ghosts of src must
// be exchanged beforehand and be at least NPass wide. dst and src may be the
// same MultiFab.
func (f *Bilinear) Apply(dst, src *mesh.MultiFab, scomp, dcomp, ncomp int) {
	if !dst.SameLayout(src) {
		panic(fmt.Sprintf("filter: Apply: layouts differ: %v and %v", dst, src))
	}
	for d := 0; d < 3; d++ {
		if src.NGrow()[d] < f.npass[d] {
			panic(fmt.Sprintf("filter: Apply: source has %d ghosts along axis %d, need %d", src.NGrow()[d], d, f.npass[d]))
		}
	}

	src.DistributionMap().ForEachPatch(func(_, p int) {
		in := src.Fab(p)
		if dst == src {
			in = mesh.NewFab(src.Fab(p).Box(), src.NComp())
			in.Copy(src.Fab(p), in.Box(), scomp, scomp, ncomp)
		}
		f.patch(dst.Fab(p), in, dst.ValidBox(p), scomp, dcomp, ncomp)
	})
}

func (f *Bilinear) patch(out, in *mesh.Fab, b mesh.Box, scomp, dcomp, ncomp int) {
	sx, sy, sz := f.stencil[0], f.stencil[1], f.stencil[2]
	nx, ny, nz := f.npass[0], f.npass[1], f.npass[2]
	for c := 0; c < ncomp; c++ {
		src := in.Comp(scomp + c)
		for k := b.Lo[2]; k <= b.Hi[2]; k++ {
			for j := b.Lo[1]; j <= b.Hi[1]; j++ {
				for i := b.Lo[0]; i <= b.Hi[0]; i++ {
					sum := 0.0
					for kk := -nz; kk <= nz; kk++ {
						wz := sz[abs(kk)]
						for jj := -ny; jj <= ny; jj++ {
							wyz := wz * sy[abs(jj)]
							o := in.Offset(i, j+jj, k+kk)
							for ii := -nx; ii <= nx; ii++ {
								sum += sx[abs(ii)] * wyz * src[o+ii]
							}
						}
					}
					out.Set(i, j, k, dcomp+c, sum)
				}
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
