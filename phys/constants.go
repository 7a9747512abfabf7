// Package phys holds the physical constants shared by the field solver and
// the particle kernel. All values are SI.
package phys

import "math"

const (
	C         = 299792458.0         // speed of light [m/s]
	Mu0       = 1.25663706212e-06   // vacuum permeability [N/A^2]
	Ep0       = 1.0 / (C * C * Mu0) // vacuum permittivity [F/m]
	QElectron = 1.602176634e-19     // elementary charge [C]
	MElectron = 9.1093837015e-31    // electron mass [kg]
	MProton   = 1.67262192369e-27   // proton mass [kg]
)

// CourantDt returns cfl times the vacuum Courant limit of a mesh with cell
// sizes dx, ignoring collapsed axes.
func CourantDt(cfl float64, dx [3]float64, collapsed [3]bool) float64 {
	sumInv := 0.0
	for d, h := range dx {
		if collapsed[d] {
			continue
		}
		sumInv += 1 / (h * h)
	}
	return cfl / (C * math.Sqrt(sumInv))
}
