package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MultiFab is a field distributed over the patches of a BoxArray. Each patch
// holds a Fab over its box converted to the field's index type and grown by
// the ghost width.
//
// The owned region of patch i is ba[i] read in the field's index space: for
// nodal axes the high face belongs to the neighbouring patch and is treated
// as a ghost by FillBoundary and SumBoundary.
type MultiFab struct {
	ba    BoxArray
	dm    DistributionMap
	ix    IndexType
	ncomp int
	ngrow IntVect
	fabs  []*Fab
}

// NewMultiFab allocates a zeroed field over every patch of ba.
func NewMultiFab(ba BoxArray, dm DistributionMap, ncomp int, ngrow IntVect, ix IndexType) *MultiFab {
	dm.Check(ba)
	mf := &MultiFab{
		ba:    ba,
		dm:    dm,
		ix:    ix,
		ncomp: ncomp,
		ngrow: ngrow,
		fabs:  make([]*Fab, len(ba)),
	}
	for i := range ba {
		mf.fabs[i] = NewFab(mf.FabBox(i), ncomp)
	}
	return mf
}

// BoxArray returns the patch layout.
func (mf *MultiFab) BoxArray() BoxArray { return mf.ba }

// DistributionMap returns the patch-to-worker assignment.
func (mf *MultiFab) DistributionMap() DistributionMap { return mf.dm }

// IndexType returns the staggering of the field.
func (mf *MultiFab) IndexType() IndexType { return mf.ix }

// NComp returns the number of components.
func (mf *MultiFab) NComp() int { return mf.ncomp }

// NGrow returns the ghost width.
func (mf *MultiFab) NGrow() IntVect { return mf.ngrow }

// NumPatches returns the number of patches.
func (mf *MultiFab) NumPatches() int { return len(mf.ba) }

// Fab returns the array of patch i.
func (mf *MultiFab) Fab(i int) *Fab { return mf.fabs[i] }

// ValidBox returns the index region of patch i without ghosts.
func (mf *MultiFab) ValidBox(i int) Box { return mf.ba[i].Convert(mf.ix) }

// OwnedBox returns the points of patch i not shared with any other patch.
func (mf *MultiFab) OwnedBox(i int) Box { return mf.ba[i] }

// FabBox returns the full index region of patch i.
func (mf *MultiFab) FabBox(i int) Box { return mf.ValidBox(i).Grow(mf.ngrow) }

// SameLayout reports whether o shares the patch layout and index type of mf.
func (mf *MultiFab) SameLayout(o *MultiFab) bool {
	return mf.ix == o.ix && mf.ba.Equal(o.ba)
}

// SetVal fills every component of every patch, ghosts included.
func (mf *MultiFab) SetVal(v float64) {
	for _, f := range mf.fabs {
		f.SetVal(v)
	}
}

// SetValComp fills components [c, c+n) of every patch, ghosts included.
func (mf *MultiFab) SetValComp(v float64, c, n int) {
	for _, f := range mf.fabs {
		f.SetValBox(f.Box(), c, n, v)
	}
}

// Copy copies components of src into dst over the valid region grown by
// ngrow. Both must share a layout.
func Copy(dst, src *MultiFab, scomp, dcomp, ncomp int, ngrow IntVect) {
	if !dst.SameLayout(src) {
		panic("mesh: Copy between MultiFabs with different layouts")
	}
	for i := range dst.fabs {
		dst.fabs[i].Copy(src.fabs[i], dst.ValidBox(i).Grow(ngrow), scomp, dcomp, ncomp)
	}
}

// Sum returns the sum of component c over owned points.
func (mf *MultiFab) Sum(c int) float64 {
	var s float64
	for i, f := range mf.fabs {
		f.ForEachRow(mf.OwnedBox(i), c, func(_, _ int, row []float64) {
			s += floats.Sum(row)
		})
	}
	return s
}

// SumSquares returns the sum of squares of component c over owned points.
func (mf *MultiFab) SumSquares(c int) float64 {
	var s float64
	for i, f := range mf.fabs {
		f.ForEachRow(mf.OwnedBox(i), c, func(_, _ int, row []float64) {
			s += floats.Dot(row, row)
		})
	}
	return s
}

// MaxAbs returns the largest magnitude of component c over owned points.
func (mf *MultiFab) MaxAbs(c int) float64 {
	var m float64
	for i, f := range mf.fabs {
		f.ForEachRow(mf.OwnedBox(i), c, func(_, _ int, row []float64) {
			for _, v := range row {
				m = math.Max(m, math.Abs(v))
			}
		})
	}
	return m
}

// Saxpy computes dst += a * src for component c over the full fab boxes.
func Saxpy(dst *MultiFab, a float64, src *MultiFab, scomp, dcomp int) {
	if !dst.SameLayout(src) || dst.ngrow != src.ngrow {
		panic("mesh: Saxpy between MultiFabs with different layouts")
	}
	for i := range dst.fabs {
		floats.AddScaled(dst.fabs[i].Comp(dcomp), a, src.fabs[i].Comp(scomp))
	}
}

func (mf *MultiFab) String() string {
	return fmt.Sprintf("MultiFab{patches=%d ncomp=%d ngrow=%v ix=%v}", len(mf.ba), mf.ncomp, mf.ngrow, mf.ix)
}
