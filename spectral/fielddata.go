package spectral

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/pthm-cable/picsim/mesh"
)

// Slot names one field held in spectral space.
type Slot int

const (
	Ex Slot = iota
	Ey
	Ez
	Bx
	By
	Bz
	Jx
	Jy
	Jz
	RhoOld
	RhoNew
	NumSlots
)

var slotNames = [NumSlots]string{"Ex", "Ey", "Ez", "Bx", "By", "Bz", "Jx", "Jy", "Jz", "rho_old", "rho_new"}

func (s Slot) String() string {
	if s < 0 || s >= NumSlots {
		return fmt.Sprintf("Slot(%d)", int(s))
	}
	return slotNames[s]
}

// FieldData stores every spectral slot of every patch and performs the
// transforms between real-space MultiFabs and spectral space.
//
// Each patch is transformed by the worker that owns it. FFT plans and line
// buffers live in per-worker scratch, so no two goroutines share one.
type FieldData struct {
	ba     mesh.BoxArray
	dm     mesh.DistributionMap
	shapes []mesh.IntVect
	fields [][NumSlots][]complex128

	shiftFwd [3]ShiftVector
	shiftBwd [3]ShiftVector

	scratch []*transformScratch
}

// transformScratch holds one worker's cached FFT plans and buffers.
type transformScratch struct {
	plans map[int]*fourier.CmplxFFT
	line  []complex128
	work  []complex128
}

func (s *transformScratch) plan(n int) *fourier.CmplxFFT {
	p, ok := s.plans[n]
	if !ok {
		p = fourier.NewCmplxFFT(n)
		s.plans[n] = p
	}
	return p
}

func (s *transformScratch) buffer(n int) []complex128 {
	if cap(s.work) < n {
		s.work = make([]complex128, n)
	}
	return s.work[:n]
}

// NewFieldData allocates the spectral slots for every patch described by ks.
func NewFieldData(ks *KSpace, dm mesh.DistributionMap) *FieldData {
	ba := ks.BoxArray()
	dm.Check(ba)
	fd := &FieldData{
		ba:      ba,
		dm:      dm,
		shapes:  make([]mesh.IntVect, len(ba)),
		fields:  make([][NumSlots][]complex128, len(ba)),
		scratch: make([]*transformScratch, max(dm.NumWorkers(), 1)),
	}
	for i := range ba {
		s := ks.Shape(i)
		fd.shapes[i] = s
		for slot := range fd.fields[i] {
			fd.fields[i][slot] = make([]complex128, s[0]*s[1]*s[2])
		}
	}
	for d := 0; d < 3; d++ {
		fd.shiftFwd[d] = ks.ShiftFactor(d, CenteredToNodal)
		fd.shiftBwd[d] = ks.ShiftFactor(d, NodalToCentered)
	}
	for w := range fd.scratch {
		fd.scratch[w] = &transformScratch{plans: make(map[int]*fourier.CmplxFFT)}
	}
	return fd
}

// NumPatches returns the number of patches stored.
func (fd *FieldData) NumPatches() int { return len(fd.shapes) }

// Shape returns the spectral shape of patch i.
func (fd *FieldData) Shape(i int) mesh.IntVect { return fd.shapes[i] }

// Field returns the spectral data of slot on patch i, x-fastest.
func (fd *FieldData) Field(i int, slot Slot) []complex128 { return fd.fields[i][slot] }

// ForwardTransform transforms component comp of mf into slot. Only owned
// points take part; cell-centered axes are shifted onto the nodes of the
// spectral grid. It panics if mf's patches do not match the registered
// shapes.
func (fd *FieldData) ForwardTransform(mf *mesh.MultiFab, slot Slot, comp int) {
	fd.checkLayout(mf, "ForwardTransform")
	ix := mf.IndexType()
	fd.dm.ForEachPatch(func(w, i int) {
		sc := fd.scratch[w]
		shape := fd.shapes[i]
		out := fd.fields[i][slot]
		owned := mf.OwnedBox(i)

		mf.Fab(i).ForEachRow(owned, comp, func(j, k int, row []float64) {
			base := (j-owned.Lo[1])*shape[0] + (k-owned.Lo[2])*shape[0]*shape[1]
			for ii, v := range row {
				out[base+ii] = complex(v, 0)
			}
		})
		fft3(sc, out, shape, true)
		fd.applyShift(out, i, ix, fd.shiftFwd)
	})
}

// BackwardTransform transforms slot back into component comp of mf,
// normalised so that a forward then backward transform reproduces the
// input. The slot itself is left unchanged. Ghost points of mf are not
// written.
func (fd *FieldData) BackwardTransform(slot Slot, mf *mesh.MultiFab, comp int) {
	fd.checkLayout(mf, "BackwardTransform")
	ix := mf.IndexType()
	fd.dm.ForEachPatch(func(w, i int) {
		sc := fd.scratch[w]
		shape := fd.shapes[i]
		n := shape[0] * shape[1] * shape[2]
		buf := sc.buffer(n)
		copy(buf, fd.fields[i][slot])

		fd.applyShift(buf, i, ix, fd.shiftBwd)
		fft3(sc, buf, shape, false)

		inv := 1 / float64(n)
		owned := mf.OwnedBox(i)
		mf.Fab(i).ForEachRow(owned, comp, func(j, k int, row []float64) {
			base := (j-owned.Lo[1])*shape[0] + (k-owned.Lo[2])*shape[0]*shape[1]
			for ii := range row {
				row[ii] = real(buf[base+ii]) * inv
			}
		})
	})
}

func (fd *FieldData) checkLayout(mf *mesh.MultiFab, op string) {
	if mf.NumPatches() != len(fd.shapes) {
		panic(fmt.Sprintf("spectral: %s: field has %d patches, store has %d", op, mf.NumPatches(), len(fd.shapes)))
	}
	for i, s := range fd.shapes {
		if got := mf.OwnedBox(i).Size(); got != s {
			panic(fmt.Sprintf("spectral: %s: patch %d has shape %v, registered shape is %v", op, i, got, s))
		}
	}
}

// applyShift multiplies data by the shift factor of every cell-centered
// axis of index type ix.
func (fd *FieldData) applyShift(data []complex128, patch int, ix mesh.IndexType, shift [3]ShiftVector) {
	shape := fd.shapes[patch]
	if ix[0] && ix[1] && ix[2] {
		return
	}
	sx, sy, sz := shift[0][patch], shift[1][patch], shift[2][patch]
	idx := 0
	for k := 0; k < shape[2]; k++ {
		for j := 0; j < shape[1]; j++ {
			f := complex(1, 0)
			if !ix[1] {
				f *= sy[j]
			}
			if !ix[2] {
				f *= sz[k]
			}
			for i := 0; i < shape[0]; i++ {
				g := f
				if !ix[0] {
					g *= sx[i]
				}
				data[idx] *= g
				idx++
			}
		}
	}
}

// fft3 performs an unnormalised in-place 3D transform of data with the
// given shape, one axis at a time. Axes of length one are skipped.
func fft3(sc *transformScratch, data []complex128, shape mesh.IntVect, forward bool) {
	stride := 1
	for d := 0; d < 3; d++ {
		n := shape[d]
		if n > 1 {
			transformAxis(sc, data, shape, d, stride, forward)
		}
		stride *= n
	}
}

func transformAxis(sc *transformScratch, data []complex128, shape mesh.IntVect, axis, stride int, forward bool) {
	n := shape[axis]
	plan := sc.plan(n)
	if cap(sc.line) < n {
		sc.line = make([]complex128, n)
	}
	line := sc.line[:n]

	total := shape[0] * shape[1] * shape[2]
	block := stride * n
	for outer := 0; outer < total; outer += block {
		for inner := 0; inner < stride; inner++ {
			base := outer + inner
			if stride == 1 {
				seg := data[base : base+n]
				if forward {
					plan.Coefficients(seg, seg)
				} else {
					plan.Sequence(seg, seg)
				}
				continue
			}
			for m := 0; m < n; m++ {
				line[m] = data[base+m*stride]
			}
			if forward {
				plan.Coefficients(line, line)
			} else {
				plan.Sequence(line, line)
			}
			for m := 0; m < n; m++ {
				data[base+m*stride] = line[m]
			}
		}
	}
}
