package spectral

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/phys"
)

// ErrInvalidConfig is returned when a solver is constructed with parameters
// it cannot run with.
var ErrInvalidConfig = errors.New("invalid spectral solver configuration")

// smallTheta is the phase c|k|dt below which the source coefficients are
// evaluated from their Taylor series.
const smallTheta = 1e-4

// Coefficients holds the PSATD update coefficients of one patch, one value
// per spectral cell in x-fastest order.
type Coefficients struct {
	C   []float64
	Sck []float64
	X1  []float64
	X2  []float64
	X3  []float64
}

// PSATD holds the analytic update coefficients of every patch and applies
// one timestep to a FieldData.
type PSATD struct {
	dm     mesh.DistributionMap
	dt     float64
	shapes []mesh.IntVect
	modk   [3]KVector
	coefs  []Coefficients
}

// NewPSATD computes the update coefficients over ks for timestep dt, with
// finite-difference orders norder (0 for infinite order) along each axis.
func NewPSATD(ks *KSpace, dm mesh.DistributionMap, norder [3]int, nodal bool, dt float64) (*PSATD, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("psatd: timestep %g must be positive and finite: %w", dt, ErrInvalidConfig)
	}
	for d, o := range norder {
		if err := CheckOrder(o); err != nil {
			return nil, fmt.Errorf("psatd: axis %d: %w", d, err)
		}
	}
	if ks == nil || ks.Empty() {
		return nil, fmt.Errorf("psatd: empty k-space: %w", ErrInvalidConfig)
	}
	if len(dm) != ks.NumPatches() {
		return nil, fmt.Errorf("psatd: distribution map covers %d patches, k-space has %d: %w",
			len(dm), ks.NumPatches(), ErrInvalidConfig)
	}

	p := &PSATD{
		dm:     dm,
		dt:     dt,
		shapes: make([]mesh.IntVect, ks.NumPatches()),
		coefs:  make([]Coefficients, ks.NumPatches()),
	}
	for d := 0; d < 3; d++ {
		p.modk[d] = ks.ModifiedKComponent(d, norder[d], nodal)
	}
	dm.ForEachPatch(func(_, i int) {
		p.shapes[i] = ks.Shape(i)
		p.coefs[i] = p.patchCoefficients(i)
	})
	return p, nil
}

func (p *PSATD) patchCoefficients(patch int) Coefficients {
	shape := p.shapes[patch]
	n := shape[0] * shape[1] * shape[2]
	co := Coefficients{
		C:   make([]float64, n),
		Sck: make([]float64, n),
		X1:  make([]float64, n),
		X2:  make([]float64, n),
		X3:  make([]float64, n),
	}
	kx, ky, kz := p.modk[0][patch], p.modk[1][patch], p.modk[2][patch]
	c, dt := phys.C, p.dt
	c2 := c * c

	idx := 0
	for k := 0; k < shape[2]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[0]; i++ {
				k2 := kx[i]*kx[i] + ky[j]*ky[j] + kz[k]*kz[k]
				knorm := math.Sqrt(k2)
				theta := c * knorm * dt
				co.C[idx] = math.Cos(theta)
				if knorm == 0 {
					co.Sck[idx] = dt
					co.X1[idx] = 0.5 * dt * dt / phys.Ep0
					co.X2[idx] = c2 * dt * dt / (6 * phys.Ep0)
					co.X3[idx] = -c2 * dt * dt / (3 * phys.Ep0)
					idx++
					continue
				}

				co.Sck[idx] = math.Sin(theta) / (c * knorm)
				// 1 - cos(theta) written as 2 sin^2(theta/2) to keep precision at small theta.
				s := math.Sin(0.5 * theta)
				co.X1[idx] = 2 * s * s / (phys.Ep0 * c2 * k2)
				if theta < smallTheta {
					t2 := theta * theta
					co.X2[idx] = c2 * dt * dt * (1.0/6 - t2/120) / phys.Ep0
					co.X3[idx] = c2 * dt * dt * (-1.0/3 + t2/30) / phys.Ep0
				} else {
					co.X2[idx] = (1 - co.Sck[idx]/dt) / (phys.Ep0 * k2)
					co.X3[idx] = (co.C[idx] - co.Sck[idx]/dt) / (phys.Ep0 * k2)
				}
				idx++
			}
		}
	}
	return co
}

// Dt returns the timestep the coefficients were computed for.
func (p *PSATD) Dt() float64 { return p.dt }

// Coefficients returns the coefficients of patch i. The slices must not be
// modified.
func (p *PSATD) Coefficients(i int) Coefficients { return p.coefs[i] }

// ModifiedK returns the modified wavenumbers along axis.
func (p *PSATD) ModifiedK(axis int) KVector { return p.modk[axis] }

// PushSpectralFields advances E and B in fd by one timestep. Each spectral
// cell is updated from its own old E, B, J and rho values only.
func (p *PSATD) PushSpectralFields(fd *FieldData) {
	if fd.NumPatches() != len(p.shapes) {
		panic(fmt.Sprintf("psatd: PushSpectralFields: store has %d patches, coefficients cover %d",
			fd.NumPatches(), len(p.shapes)))
	}
	c2 := phys.C * phys.C
	invEp0 := complex(1/phys.Ep0, 0)
	I := complex(0, 1)

	p.dm.ForEachPatch(func(_, patch int) {
		shape := p.shapes[patch]
		if fd.Shape(patch) != shape {
			panic(fmt.Sprintf("psatd: PushSpectralFields: patch %d has shape %v, coefficients were built for %v",
				patch, fd.Shape(patch), shape))
		}
		f := &fd.fields[patch]
		co := p.coefs[patch]
		kxv, kyv, kzv := p.modk[0][patch], p.modk[1][patch], p.modk[2][patch]

		idx := 0
		for k := 0; k < shape[2]; k++ {
			for j := 0; j < shape[1]; j++ {
				for i := 0; i < shape[0]; i++ {
					kx, ky, kz := complex(kxv[i], 0), complex(kyv[j], 0), complex(kzv[k], 0)

					exOld, eyOld, ezOld := f[Ex][idx], f[Ey][idx], f[Ez][idx]
					bxOld, byOld, bzOld := f[Bx][idx], f[By][idx], f[Bz][idx]
					jx, jy, jz := f[Jx][idx], f[Jy][idx], f[Jz][idx]
					rhoOld, rhoNew := f[RhoOld][idx], f[RhoNew][idx]

					C := complex(co.C[idx], 0)
					S := complex(co.Sck[idx], 0)
					X1 := complex(co.X1[idx], 0)
					X2 := complex(co.X2[idx], 0)
					X3 := complex(co.X3[idx], 0)
					cc := complex(c2, 0)
					rho := X2*rhoNew - X3*rhoOld

					f[Ex][idx] = C*exOld + S*(cc*I*(ky*bzOld-kz*byOld)-invEp0*jx) - I*rho*kx
					f[Ey][idx] = C*eyOld + S*(cc*I*(kz*bxOld-kx*bzOld)-invEp0*jy) - I*rho*ky
					f[Ez][idx] = C*ezOld + S*(cc*I*(kx*byOld-ky*bxOld)-invEp0*jz) - I*rho*kz

					f[Bx][idx] = C*bxOld - S*I*(ky*ezOld-kz*eyOld) + X1*I*(ky*jz-kz*jy)
					f[By][idx] = C*byOld - S*I*(kz*exOld-kx*ezOld) + X1*I*(kz*jx-kx*jz)
					f[Bz][idx] = C*bzOld - S*I*(kx*eyOld-ky*exOld) + X1*I*(kx*jy-ky*jx)
					idx++
				}
			}
		}
	})
}
