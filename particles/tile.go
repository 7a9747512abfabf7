package particles

import "github.com/pthm-cable/picsim/mesh"

// Particle is a single macro-particle, used for injection and inspection.
// Momentum is u = gamma*v in m/s.
type Particle struct {
	ID         uint64
	X, Y, Z    float64
	UX, UY, UZ float64
	W          float64
}

// Tile holds the particles of one sub-block of a patch as parallel arrays
// (SoA layout), indexed by a slot that is stable until the next
// Redistribute.
type Tile struct {
	X, Y, Z    []float64 // positions
	UX, UY, UZ []float64 // momenta (gamma*v)
	W          []float64 // weights
	GInv       []float64 // 1/gamma after the last push
	ID         []uint64

	box mesh.Box

	// deposition buffers, allocated on first use and reused across steps
	buf *depositBuffer
}

func newTile(box mesh.Box) *Tile {
	return &Tile{box: box}
}

// Box returns the cells covered by the tile.
func (t *Tile) Box() mesh.Box { return t.box }

// Len returns the number of particles in the tile.
func (t *Tile) Len() int { return len(t.X) }

// Particle returns a copy of the particle in slot i.
func (t *Tile) Particle(i int) Particle {
	return Particle{
		ID: t.ID[i],
		X:  t.X[i], Y: t.Y[i], Z: t.Z[i],
		UX: t.UX[i], UY: t.UY[i], UZ: t.UZ[i],
		W: t.W[i],
	}
}

func (t *Tile) add(p Particle, ginv float64) {
	t.X = append(t.X, p.X)
	t.Y = append(t.Y, p.Y)
	t.Z = append(t.Z, p.Z)
	t.UX = append(t.UX, p.UX)
	t.UY = append(t.UY, p.UY)
	t.UZ = append(t.UZ, p.UZ)
	t.W = append(t.W, p.W)
	t.GInv = append(t.GInv, ginv)
	t.ID = append(t.ID, p.ID)
}

// remove deletes slot i by moving the last particle into it.
func (t *Tile) remove(i int) {
	last := t.Len() - 1
	t.X[i], t.Y[i], t.Z[i] = t.X[last], t.Y[last], t.Z[last]
	t.UX[i], t.UY[i], t.UZ[i] = t.UX[last], t.UY[last], t.UZ[last]
	t.W[i], t.GInv[i], t.ID[i] = t.W[last], t.GInv[last], t.ID[last]

	t.X, t.Y, t.Z = t.X[:last], t.Y[:last], t.Z[:last]
	t.UX, t.UY, t.UZ = t.UX[:last], t.UY[:last], t.UZ[:last]
	t.W, t.GInv, t.ID = t.W[:last], t.GInv[:last], t.ID[:last]
}
