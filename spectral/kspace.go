// Package spectral implements the pseudo-spectral analytic time-domain
// (PSATD) field solver: per-patch Fourier transforms of mesh fields, the
// analytic update coefficients and the update itself.
package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/pthm-cable/picsim/mesh"
)

// KVector holds one real value per spectral index along an axis, for every
// patch.
type KVector [][]float64

// ShiftVector holds one complex phase per spectral index along an axis, for
// every patch.
type ShiftVector [][]complex128

// ShiftDirection selects which way a staggering shift moves data.
type ShiftDirection int

const (
	// CenteredToNodal moves cell-centered data onto the nodes of the
	// spectral grid, applied after a forward transform.
	CenteredToNodal ShiftDirection = -1
	// NodalToCentered undoes CenteredToNodal before a backward transform.
	NodalToCentered ShiftDirection = 1
)

// KSpace describes the wavenumber grid of every patch of a box array. It is
// a pure function of the patch shapes and the cell size.
type KSpace struct {
	ba     mesh.BoxArray
	dx     [3]float64
	shapes []mesh.IntVect
	k      [3]KVector
}

// NewKSpace computes the wavenumbers of every patch of ba. Wavenumbers are
// stored in FFT order. An axis with a single cell has the single
// wavenumber 0.
func NewKSpace(ba mesh.BoxArray, dx [3]float64) *KSpace {
	ks := &KSpace{
		ba:     ba,
		dx:     dx,
		shapes: make([]mesh.IntVect, len(ba)),
	}
	for d := 0; d < 3; d++ {
		ks.k[d] = make(KVector, len(ba))
	}
	for i, b := range ba {
		ks.shapes[i] = b.Size()
		for d := 0; d < 3; d++ {
			ks.k[d][i] = wavenumbers(b.Length(d), dx[d])
		}
	}
	return ks
}

func wavenumbers(n int, dx float64) []float64 {
	k := make([]float64, n)
	if n == 1 {
		return k
	}
	fft := fourier.NewCmplxFFT(n)
	for i := range k {
		k[i] = 2 * math.Pi * fft.Freq(i) / dx
	}
	return k
}

// NumPatches returns the number of patches described.
func (ks *KSpace) NumPatches() int { return len(ks.ba) }

// BoxArray returns the real-space patch layout.
func (ks *KSpace) BoxArray() mesh.BoxArray { return ks.ba }

// Shape returns the spectral shape of patch i.
func (ks *KSpace) Shape(i int) mesh.IntVect { return ks.shapes[i] }

// CellSize returns the real-space cell size.
func (ks *KSpace) CellSize() [3]float64 { return ks.dx }

// Empty reports whether the k-space holds no spectral cells.
func (ks *KSpace) Empty() bool {
	for _, s := range ks.shapes {
		if s[0]*s[1]*s[2] > 0 {
			return false
		}
	}
	return true
}

// KComponent returns the exact wavenumbers along axis.
func (ks *KSpace) KComponent(axis int) KVector {
	return ks.k[axis]
}

// ModifiedKComponent returns the wavenumbers seen by a centered
// finite-difference derivative of the given order along axis. Order 0
// means infinite order and returns the exact wavenumbers. nodal selects the
// collocated stencil; otherwise the staggered (half-cell) stencil is used.
// It panics on an order rejected by CheckOrder.
func (ks *KSpace) ModifiedKComponent(axis, order int, nodal bool) KVector {
	if err := CheckOrder(order); err != nil {
		panic(err)
	}
	out := make(KVector, len(ks.ba))
	if order == 0 {
		for i, k := range ks.k[axis] {
			out[i] = append([]float64(nil), k...)
		}
		return out
	}

	coefs := stencilCoefficients(order, nodal)
	dx := ks.dx[axis]
	for i, k := range ks.k[axis] {
		mod := make([]float64, len(k))
		for j, kj := range k {
			for n := 1; n < len(coefs); n++ {
				s := float64(n)
				if !nodal {
					s -= 0.5
				}
				mod[j] += coefs[n] * math.Sin(kj*s*dx) / (s * dx)
			}
		}
		out[i] = mod
	}
	return out
}

// ShiftFactor returns exp(dir * i*k*dx/2) along axis for every patch. It
// translates data by half a cell between cell centers and nodes.
func (ks *KSpace) ShiftFactor(axis int, dir ShiftDirection) ShiftVector {
	out := make(ShiftVector, len(ks.ba))
	half := float64(dir) * 0.5 * ks.dx[axis]
	for i, k := range ks.k[axis] {
		f := make([]complex128, len(k))
		for j, kj := range k {
			f[j] = cmplx.Exp(complex(0, kj*half))
		}
		out[i] = f
	}
	return out
}

// CheckOrder validates a finite-difference order: 0 (infinite) or a
// positive even integer.
func CheckOrder(order int) error {
	if order < 0 || order%2 != 0 {
		return fmt.Errorf("spectral: stencil order %d must be 0 or a positive even integer: %w", order, ErrInvalidConfig)
	}
	return nil
}

// stencilCoefficients returns the Fornberg weights of a centered derivative
// of the given order. Entry 0 is a normalisation term; entries 1..order/2
// weight the n-th neighbour pair.
func stencilCoefficients(order int, nodal bool) []float64 {
	m := order / 2
	coefs := make([]float64, m+1)
	if nodal {
		coefs[0] = -2
		for n := 1; n <= m; n++ {
			coefs[n] = -float64(m+1-n) / float64(m+n) * coefs[n-1]
		}
		return coefs
	}

	prod := 1.0
	for k := 1; k <= m; k++ {
		prod *= float64(m+k) / float64(4*k)
	}
	coefs[0] = 4 * float64(m) * prod * prod
	for n := 1; n <= m; n++ {
		coefs[n] = -float64((2*n-3)*(m+1-n)) / float64((2*n-1)*(m-1+n)) * coefs[n-1]
	}
	return coefs
}
