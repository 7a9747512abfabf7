package mesh

// Geometry maps the integer index space of a level onto physical
// coordinates. In 2D runs (Dim == 2) the simulation plane is XZ: the y axis
// is collapsed to a single cell of unit width with no ghosts and no nodal
// extension.
type Geometry struct {
	Domain   Box
	ProbLo   [3]float64
	ProbHi   [3]float64
	Periodic [3]bool
	Dim      int
}

// NewGeometry builds a geometry. For Dim == 2 the y extent is forced to a
// single cell spanning [0, 1).
func NewGeometry(domain Box, lo, hi [3]float64, periodic [3]bool, dim int) Geometry {
	g := Geometry{Domain: domain, ProbLo: lo, ProbHi: hi, Periodic: periodic, Dim: dim}
	if dim == 2 {
		g.Domain.Lo[1], g.Domain.Hi[1] = 0, 0
		g.ProbLo[1], g.ProbHi[1] = 0, 1
		g.Periodic[1] = false
	}
	return g
}

// Collapsed reports whether axis d carries no resolution (the y axis in 2D).
func (g Geometry) Collapsed(d int) bool {
	return g.Dim == 2 && d == 1
}

// CellSize returns the physical cell width along each axis.
func (g Geometry) CellSize() [3]float64 {
	var dx [3]float64
	for d := 0; d < 3; d++ {
		dx[d] = (g.ProbHi[d] - g.ProbLo[d]) / float64(g.Domain.Length(d))
	}
	return dx
}

// CellVolume returns the volume of one cell (an area per unit length in 2D).
func (g Geometry) CellVolume() float64 {
	dx := g.CellSize()
	return dx[0] * dx[1] * dx[2]
}

// BoxLo returns the physical position of the low node of box b.
func (g Geometry) BoxLo(b Box) [3]float64 {
	dx := g.CellSize()
	var lo [3]float64
	for d := 0; d < 3; d++ {
		lo[d] = g.ProbLo[d] + float64(b.Lo[d]-g.Domain.Lo[d])*dx[d]
	}
	return lo
}

// Coarsen returns the geometry of a level coarser by ratio r.
func (g Geometry) Coarsen(r int) Geometry {
	c := g
	c.Domain = g.Domain.Coarsen(r)
	if g.Dim == 2 {
		c.Domain.Lo[1], c.Domain.Hi[1] = 0, 0
	}
	return c
}

// Refine returns the geometry of a level finer by ratio r.
func (g Geometry) Refine(r int) Geometry {
	f := g
	f.Domain = g.Domain.Refine(r)
	if g.Dim == 2 {
		f.Domain.Lo[1], f.Domain.Hi[1] = 0, 0
	}
	return f
}

// IndexType drops nodality along collapsed axes.
func (g Geometry) IndexType(t IndexType) IndexType {
	if g.Dim == 2 {
		t[1] = false
	}
	return t
}

// Ghosts returns a uniform ghost width of n, zero along collapsed axes.
func (g Geometry) Ghosts(n int) IntVect {
	v := IntVect{n, n, n}
	if g.Dim == 2 {
		v[1] = 0
	}
	return v
}

// PeriodicShifts lists the index translations that map the domain onto its
// periodic images, including the zero shift first.
func (g Geometry) PeriodicShifts() []IntVect {
	var opts [3][]int
	for d := 0; d < 3; d++ {
		opts[d] = []int{0}
		if g.Periodic[d] && !g.Collapsed(d) {
			L := g.Domain.Length(d)
			opts[d] = append(opts[d], -L, L)
		}
	}
	var out []IntVect
	for _, sz := range opts[2] {
		for _, sy := range opts[1] {
			for _, sx := range opts[0] {
				out = append(out, IntVect{sx, sy, sz})
			}
		}
	}
	return out
}

// Wrap maps a physical position back into the domain along periodic axes.
// It reports false when the position lies outside a non-periodic axis.
func (g Geometry) Wrap(pos [3]float64) ([3]float64, bool) {
	for d := 0; d < 3; d++ {
		if g.Collapsed(d) {
			continue
		}
		L := g.ProbHi[d] - g.ProbLo[d]
		if pos[d] < g.ProbLo[d] || pos[d] >= g.ProbHi[d] {
			if !g.Periodic[d] {
				return pos, false
			}
			for pos[d] < g.ProbLo[d] {
				pos[d] += L
			}
			for pos[d] >= g.ProbHi[d] {
				pos[d] -= L
			}
		}
	}
	return pos, true
}
