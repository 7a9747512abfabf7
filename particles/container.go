package particles

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/picsim/mesh"
	"github.com/pthm-cable/picsim/phys"
)

// ErrInvalidConfig is returned when a container or kernel is constructed
// with parameters it cannot run with.
var ErrInvalidConfig = errors.New("invalid particle configuration")

// Species describes the physical properties shared by every particle of a
// container.
type Species struct {
	Name   string
	Charge float64 // C
	Mass   float64 // kg
}

// patchTiles holds the tiles of one patch, ordered x-fastest.
type patchTiles struct {
	box    mesh.Box
	ntiles mesh.IntVect
	tiles  []*Tile
}

// Container stores the particles of one species, bucketed by patch and by
// tile within the patch.
type Container struct {
	Species

	geom     mesh.Geometry
	ba       mesh.BoxArray
	dm       mesh.DistributionMap
	tileSize mesh.IntVect
	patches  []patchTiles
	nextID   uint64
}

// NewContainer creates an empty container over the patches of ba. Each
// patch is split into tiles of at most tileSize cells; a non-positive entry
// disables tiling along that axis.
func NewContainer(sp Species, geom mesh.Geometry, ba mesh.BoxArray, dm mesh.DistributionMap, tileSize mesh.IntVect) (*Container, error) {
	if !(sp.Mass > 0) {
		return nil, fmt.Errorf("particles: species %q has non-positive mass %g: %w", sp.Name, sp.Mass, ErrInvalidConfig)
	}
	if len(ba) == 0 {
		return nil, fmt.Errorf("particles: species %q: no patches: %w", sp.Name, ErrInvalidConfig)
	}
	if len(dm) != len(ba) {
		return nil, fmt.Errorf("particles: species %q: distribution map covers %d of %d patches: %w",
			sp.Name, len(dm), len(ba), ErrInvalidConfig)
	}

	pc := &Container{
		Species:  sp,
		geom:     geom,
		ba:       ba,
		dm:       dm,
		tileSize: tileSize,
		patches:  make([]patchTiles, len(ba)),
		nextID:   1,
	}
	for i, b := range ba {
		tboxes := mesh.Decompose(b, tileSize)
		pt := patchTiles{box: b, tiles: make([]*Tile, len(tboxes))}
		for d := 0; d < 3; d++ {
			ts := tileSize[d]
			if ts <= 0 {
				ts = b.Length(d)
			}
			pt.ntiles[d] = (b.Length(d) + ts - 1) / ts
		}
		for t, tb := range tboxes {
			pt.tiles[t] = newTile(tb)
		}
		pc.patches[i] = pt
	}
	return pc, nil
}

// Geometry returns the geometry particles are located with.
func (pc *Container) Geometry() mesh.Geometry { return pc.geom }

// BoxArray returns the patch layout.
func (pc *Container) BoxArray() mesh.BoxArray { return pc.ba }

// DistributionMap returns the patch-to-worker assignment.
func (pc *Container) DistributionMap() mesh.DistributionMap { return pc.dm }

// NumPatches returns the number of patches.
func (pc *Container) NumPatches() int { return len(pc.patches) }

// NumTiles returns the number of tiles of patch p.
func (pc *Container) NumTiles(p int) int { return len(pc.patches[p].tiles) }

// Tile returns tile t of patch p.
func (pc *Container) Tile(p, t int) *Tile { return pc.patches[p].tiles[t] }

// NumParticles returns the total particle count.
func (pc *Container) NumParticles() int {
	n := 0
	for _, pt := range pc.patches {
		for _, t := range pt.tiles {
			n += t.Len()
		}
	}
	return n
}

// TotalWeight returns the summed weight of all particles.
func (pc *Container) TotalWeight() float64 {
	w := 0.0
	for _, pt := range pc.patches {
		for _, t := range pt.tiles {
			for _, v := range t.W {
				w += v
			}
		}
	}
	return w
}

// KineticEnergy returns sum of w*(gamma-1)*m*c^2 over all particles.
func (pc *Container) KineticEnergy() float64 {
	const invC2 = 1 / (phys.C * phys.C)
	e := 0.0
	for _, pt := range pc.patches {
		for _, t := range pt.tiles {
			for i := range t.W {
				u2 := t.UX[i]*t.UX[i] + t.UY[i]*t.UY[i] + t.UZ[i]*t.UZ[i]
				gamma := math.Sqrt(1 + u2*invC2)
				e += t.W[i] * (gamma - 1) * pc.Mass * phys.C * phys.C
			}
		}
	}
	return e
}

// ForEach calls fn for every particle in patch, tile and slot order.
func (pc *Container) ForEach(fn func(p Particle)) {
	for _, pt := range pc.patches {
		for _, t := range pt.tiles {
			for i := 0; i < t.Len(); i++ {
				fn(t.Particle(i))
			}
		}
	}
}

// AddParticle places p in the tile containing its position and assigns it
// a new ID. Positions outside a periodic axis are wrapped. It reports false
// when the position lies outside the domain.
func (pc *Container) AddParticle(p Particle) bool {
	pos, ok := pc.geom.Wrap([3]float64{p.X, p.Y, p.Z})
	if !ok {
		return false
	}
	patch, tile, ok := pc.locate(pos)
	if !ok {
		return false
	}
	p.X, p.Y, p.Z = pos[0], pos[1], pos[2]
	p.ID = pc.nextID
	pc.nextID++
	pc.patches[patch].tiles[tile].add(p, inverseGamma(p.UX, p.UY, p.UZ))
	return true
}

// cellIndex returns the cell containing a physical position inside the
// domain.
func (pc *Container) cellIndex(pos [3]float64) mesh.IntVect {
	dx := pc.geom.CellSize()
	var iv mesh.IntVect
	for d := 0; d < 3; d++ {
		if pc.geom.Collapsed(d) {
			iv[d] = pc.geom.Domain.Lo[d]
			continue
		}
		iv[d] = int(math.Floor((pos[d]-pc.geom.ProbLo[d])/dx[d])) + pc.geom.Domain.Lo[d]
		// Rounding can push a position just below ProbHi into the next cell.
		iv[d] = min(max(iv[d], pc.geom.Domain.Lo[d]), pc.geom.Domain.Hi[d])
	}
	return iv
}

func (pc *Container) locate(pos [3]float64) (patch, tile int, ok bool) {
	iv := pc.cellIndex(pos)
	for p := range pc.patches {
		pt := &pc.patches[p]
		if !pt.box.Contains(iv) {
			continue
		}
		var tc mesh.IntVect
		for d := 0; d < 3; d++ {
			ts := pc.tileSize[d]
			if ts <= 0 {
				ts = pt.box.Length(d)
			}
			tc[d] = (iv[d] - pt.box.Lo[d]) / ts
		}
		return p, tc[0] + pt.ntiles[0]*(tc[1]+pt.ntiles[1]*tc[2]), true
	}
	return 0, 0, false
}

// Redistribute moves every particle into the tile that contains its
// position, wrapping periodic axes and removing particles that left the
// domain through a non-periodic face. It returns the number removed.
//
// Moves are applied in patch, tile and slot order so the resulting layout
// does not depend on scheduling.
func (pc *Container) Redistribute() int {
	type move struct {
		patch, tile int
		p           Particle
		ginv        float64
	}
	var moves []move
	removed := 0

	for p := range pc.patches {
		for t, tile := range pc.patches[p].tiles {
			for i := 0; i < tile.Len(); {
				pos, ok := pc.geom.Wrap([3]float64{tile.X[i], tile.Y[i], tile.Z[i]})
				np, nt := p, t
				if ok {
					np, nt, ok = pc.locate(pos)
				}
				if !ok {
					tile.remove(i)
					removed++
					continue
				}
				tile.X[i], tile.Y[i], tile.Z[i] = pos[0], pos[1], pos[2]
				if np == p && nt == t {
					i++
					continue
				}
				moves = append(moves, move{patch: np, tile: nt, p: tile.Particle(i), ginv: tile.GInv[i]})
				tile.remove(i)
			}
		}
	}
	for _, m := range moves {
		pc.patches[m.patch].tiles[m.tile].add(m.p, m.ginv)
	}
	return removed
}

func inverseGamma(ux, uy, uz float64) float64 {
	const invC2 = 1 / (phys.C * phys.C)
	return 1 / math.Sqrt(1+(ux*ux+uy*uy+uz*uz)*invC2)
}
