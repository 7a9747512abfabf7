package mesh

import "fmt"

// Fab is a dense multi-component array over one box. Data is stored
// x-fastest, one contiguous block per component.
type Fab struct {
	box   Box
	ncomp int
	sy    int
	sz    int
	sc    int
	data  []float64
}

// NewFab allocates a zeroed fab over box b.
func NewFab(b Box, ncomp int) *Fab {
	if !b.Ok() || ncomp < 1 {
		panic(fmt.Sprintf("mesh: invalid fab box %v with %d components", b, ncomp))
	}
	nx, ny, nz := b.Length(0), b.Length(1), b.Length(2)
	return &Fab{
		box:   b,
		ncomp: ncomp,
		sy:    nx,
		sz:    nx * ny,
		sc:    nx * ny * nz,
		data:  make([]float64, nx*ny*nz*ncomp),
	}
}

// Box returns the full index region of the fab, ghosts included.
func (f *Fab) Box() Box { return f.box }

// NComp returns the number of components.
func (f *Fab) NComp() int { return f.ncomp }

// Strides returns the offsets between neighbouring points along y and z.
// The x stride is 1.
func (f *Fab) Strides() (sy, sz int) { return f.sy, f.sz }

// Offset returns the position of (i,j,k) inside a component slice.
func (f *Fab) Offset(i, j, k int) int {
	return (i - f.box.Lo[0]) + (j-f.box.Lo[1])*f.sy + (k-f.box.Lo[2])*f.sz
}

// Comp returns the backing slice of component c.
func (f *Fab) Comp(c int) []float64 {
	return f.data[c*f.sc : (c+1)*f.sc]
}

// At returns the value at (i,j,k) of component c.
func (f *Fab) At(i, j, k, c int) float64 {
	return f.data[c*f.sc+f.Offset(i, j, k)]
}

// Set stores v at (i,j,k) of component c.
func (f *Fab) Set(i, j, k, c int, v float64) {
	f.data[c*f.sc+f.Offset(i, j, k)] = v
}

// Add accumulates v at (i,j,k) of component c.
func (f *Fab) Add(i, j, k, c int, v float64) {
	f.data[c*f.sc+f.Offset(i, j, k)] += v
}

// SetVal fills every component with v.
func (f *Fab) SetVal(v float64) {
	for i := range f.data {
		f.data[i] = v
	}
}

// SetValBox fills components [c, c+n) over region b with v.
func (f *Fab) SetValBox(b Box, c, n int, v float64) {
	b = b.Intersect(f.box)
	if !b.Ok() {
		return
	}
	for comp := c; comp < c+n; comp++ {
		data := f.Comp(comp)
		for k := b.Lo[2]; k <= b.Hi[2]; k++ {
			for j := b.Lo[1]; j <= b.Hi[1]; j++ {
				row := data[f.Offset(b.Lo[0], j, k):]
				for i := 0; i < b.Length(0); i++ {
					row[i] = v
				}
			}
		}
	}
}

// CopyShifted copies region srcBox of src into f, with destination index
// equal to source index plus shift.
func (f *Fab) CopyShifted(src *Fab, srcBox Box, shift IntVect, scomp, dcomp, n int) {
	f.transfer(src, srcBox, shift, scomp, dcomp, n, false)
}

// AddShifted accumulates region srcBox of src into f, with destination index
// equal to source index plus shift.
func (f *Fab) AddShifted(src *Fab, srcBox Box, shift IntVect, scomp, dcomp, n int) {
	f.transfer(src, srcBox, shift, scomp, dcomp, n, true)
}

// Copy copies region b (same indices in both fabs).
func (f *Fab) Copy(src *Fab, b Box, scomp, dcomp, n int) {
	f.transfer(src, b, IntVect{}, scomp, dcomp, n, false)
}

func (f *Fab) transfer(src *Fab, srcBox Box, shift IntVect, scomp, dcomp, n int, add bool) {
	srcBox = srcBox.Intersect(src.box).Intersect(f.box.Shift(IntVect{}.Sub(shift)))
	if !srcBox.Ok() {
		return
	}
	nx := srcBox.Length(0)
	for c := 0; c < n; c++ {
		s := src.Comp(scomp + c)
		d := f.Comp(dcomp + c)
		for k := srcBox.Lo[2]; k <= srcBox.Hi[2]; k++ {
			for j := srcBox.Lo[1]; j <= srcBox.Hi[1]; j++ {
				so := src.Offset(srcBox.Lo[0], j, k)
				do := f.Offset(srcBox.Lo[0]+shift[0], j+shift[1], k+shift[2])
				if add {
					for i := 0; i < nx; i++ {
						d[do+i] += s[so+i]
					}
				} else {
					copy(d[do:do+nx], s[so:so+nx])
				}
			}
		}
	}
}

// ForEachRow calls fn with the contiguous x-row of component c starting at
// (b.Lo[0], j, k) for every (j, k) in region b.
func (f *Fab) ForEachRow(b Box, c int, fn func(j, k int, row []float64)) {
	b = b.Intersect(f.box)
	if !b.Ok() {
		return
	}
	data := f.Comp(c)
	nx := b.Length(0)
	for k := b.Lo[2]; k <= b.Hi[2]; k++ {
		for j := b.Lo[1]; j <= b.Hi[1]; j++ {
			o := f.Offset(b.Lo[0], j, k)
			fn(j, k, data[o:o+nx])
		}
	}
}
