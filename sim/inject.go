package sim

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/picsim/config"
	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/particles"
	"github.com/pthm-cable/picsim/phys"
)

// injector places a uniform plasma. Particles sit on a regular sub-grid of
// ppc points per cell and draw each momentum component from a Gaussian of
// mean drift and width thermal (both as u/c).
type injector struct {
	geom mesh.Geometry
	ba   mesh.BoxArray
	seed uint64
}

// inject fills pc with the plasma of sc and returns the number of particles
// added. The momentum stream depends only on the seed and the species index.
func (in injector) inject(pc *particles.Container, sc config.SpeciesConfig, index int) int {
	if sc.Density == 0 {
		return 0
	}

	ppc := sc.PPC
	for d := 0; d < 3; d++ {
		if in.geom.Collapsed(d) {
			ppc[d] = 1
		}
	}
	nppc := ppc[0] * ppc[1] * ppc[2]
	weight := sc.Density * in.geom.CellVolume() / float64(nppc)

	src := rand.NewPCG(in.seed, uint64(index))
	var u [3]distuv.Normal
	for d := 0; d < 3; d++ {
		u[d] = distuv.Normal{Mu: sc.Drift[d] * phys.C, Sigma: sc.Thermal[d] * phys.C, Src: src}
	}

	dx := in.geom.CellSize()
	added := 0
	for _, b := range in.ba {
		lo := in.geom.BoxLo(b)
		for k := 0; k < b.Length(2); k++ {
			for j := 0; j < b.Length(1); j++ {
				for i := 0; i < b.Length(0); i++ {
					cell := [3]int{i, j, k}
					for c := 0; c < nppc; c++ {
						sub := [3]int{c % ppc[0], (c / ppc[0]) % ppc[1], c / (ppc[0] * ppc[1])}
						var pos [3]float64
						for d := 0; d < 3; d++ {
							if in.geom.Collapsed(d) {
								pos[d] = in.geom.ProbLo[d]
								continue
							}
							pos[d] = lo[d] + (float64(cell[d])+(float64(sub[d])+0.5)/float64(ppc[d]))*dx[d]
						}
						p := particles.Particle{
							X: pos[0], Y: pos[1], Z: pos[2],
							UX: u[0].Rand(), UY: u[1].Rand(), UZ: u[2].Rand(),
							W: weight,
						}
						if pc.AddParticle(p) {
							added++
						}
					}
				}
			}
		}
	}
	return added
}
