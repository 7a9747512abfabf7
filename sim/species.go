package sim

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/picsim/config"
	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/particles"
	"github.com/pthm-cable/picsim/phys"
)

// Species is the component describing one particle species.
type Species struct {
	Index  int // position in the configured species list
	Config config.SpeciesConfig
}

// Plasma is the component holding the particles of a species.
type Plasma struct {
	Particles *particles.Container
	Injected  int // particles added since the start of the run
	Lost      int // particles removed at open faces since the start of the run
}

// speciesRegistry keeps the species entities of a run. Iteration follows
// the configured order so that deposition order, and therefore the fields,
// are reproducible.
type speciesRegistry struct {
	world   *ecs.World
	mapper  *ecs.Map2[Species, Plasma]
	filter  *ecs.Filter2[Species, Plasma]
	ordered []ecs.Entity
}

func newSpeciesRegistry() *speciesRegistry {
	world := ecs.NewWorld()
	return &speciesRegistry{
		world:  world,
		mapper: ecs.NewMap2[Species, Plasma](world),
		filter: ecs.NewFilter2[Species, Plasma](world),
	}
}

// add builds an empty container for sc and registers it.
func (r *speciesRegistry) add(sc config.SpeciesConfig, geom mesh.Geometry, ba mesh.BoxArray, dm mesh.DistributionMap, tileSize mesh.IntVect) error {
	pc, err := particles.NewContainer(particles.Species{
		Name:   sc.Name,
		Charge: sc.Charge * phys.QElectron,
		Mass:   sc.Mass * phys.MElectron,
	}, geom, ba, dm, tileSize)
	if err != nil {
		return fmt.Errorf("species %q: %w", sc.Name, err)
	}
	sp := Species{Index: len(r.ordered), Config: sc}
	pl := Plasma{Particles: pc}
	r.ordered = append(r.ordered, r.mapper.NewEntity(&sp, &pl))
	return nil
}

// each calls fn for every species in configured order.
func (r *speciesRegistry) each(fn func(sp *Species, pl *Plasma)) {
	for _, e := range r.ordered {
		fn(r.mapper.Get(e))
	}
}

// numParticles sums particle counts over all species.
func (r *speciesRegistry) numParticles() int {
	n := 0
	query := r.filter.Query()
	for query.Next() {
		_, pl := query.Get()
		n += pl.Particles.NumParticles()
	}
	return n
}
