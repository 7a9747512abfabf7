package spectral

import (
	"fmt"

	"github.com/pthm-cable/picsim/mesh"
)

// Solver is the spectral field solver: a k-space, the PSATD coefficients
// over it and the spectral field store, all built over the same patches.
type Solver struct {
	ks        *KSpace
	algorithm *PSATD
	fields    *FieldData
}

// NewSolver builds a solver for the real-space patches ba with cell size dx
// and timestep dt. norder gives the finite-difference order along each axis
// (0 for infinite order); nodal selects collocated stencils.
func NewSolver(ba mesh.BoxArray, dm mesh.DistributionMap, norder [3]int, nodal bool, dx [3]float64, dt float64) (*Solver, error) {
	if len(ba) == 0 {
		return nil, fmt.Errorf("spectral solver: no patches: %w", ErrInvalidConfig)
	}
	for d, h := range dx {
		if !(h > 0) {
			return nil, fmt.Errorf("spectral solver: cell size %g along axis %d must be positive: %w", h, d, ErrInvalidConfig)
		}
	}
	ks := NewKSpace(ba, dx)
	algorithm, err := NewPSATD(ks, dm, norder, nodal, dt)
	if err != nil {
		return nil, fmt.Errorf("spectral solver: %w", err)
	}
	return &Solver{
		ks:        ks,
		algorithm: algorithm,
		fields:    NewFieldData(ks, dm),
	}, nil
}

// ForwardTransform transforms component comp of mf into slot.
func (s *Solver) ForwardTransform(mf *mesh.MultiFab, slot Slot, comp int) {
	s.fields.ForwardTransform(mf, slot, comp)
}

// BackwardTransform transforms slot back into component comp of mf.
func (s *Solver) BackwardTransform(slot Slot, mf *mesh.MultiFab, comp int) {
	s.fields.BackwardTransform(slot, mf, comp)
}

// PushSpectralFields advances the spectral fields by one timestep.
func (s *Solver) PushSpectralFields() {
	s.algorithm.PushSpectralFields(s.fields)
}

// KSpace returns the wavenumber grid.
func (s *Solver) KSpace() *KSpace { return s.ks }

// Coefficients returns the update coefficients of patch i.
func (s *Solver) Coefficients(i int) Coefficients { return s.algorithm.Coefficients(i) }

// Dt returns the timestep the solver was built for.
func (s *Solver) Dt() float64 { return s.algorithm.Dt() }
