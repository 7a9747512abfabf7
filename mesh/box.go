// Package mesh provides the structured-mesh data model shared by the field
// solver and the particle kernel: integer boxes, their decomposition into
// patches, the assignment of patches to workers, and multi-component field
// arrays with ghost-cell halos.
package mesh

import "fmt"

// IntVect is an integer index triple. In 2D runs the y entry is always 0.
type IntVect [3]int

// Add returns v + o.
func (v IntVect) Add(o IntVect) IntVect {
	return IntVect{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v IntVect) Sub(o IntVect) IntVect {
	return IntVect{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * s.
func (v IntVect) Scale(s int) IntVect {
	return IntVect{v[0] * s, v[1] * s, v[2] * s}
}

// IndexType records per axis whether a field lives on nodes (true) or on
// cell centers (false).
type IndexType [3]bool

// CellType is the fully cell-centered index type.
var CellType = IndexType{}

// NodalType is the fully node-centered index type.
var NodalType = IndexType{true, true, true}

// Box is an inclusive, axis-aligned integer region. Boxes in a BoxArray are
// cell-centered; Convert produces the index region of a staggered field.
type Box struct {
	Lo, Hi IntVect
}

// NewBox returns the box spanning lo..hi inclusive.
func NewBox(lo, hi IntVect) Box {
	return Box{Lo: lo, Hi: hi}
}

// Length returns the number of points along axis d.
func (b Box) Length(d int) int {
	return b.Hi[d] - b.Lo[d] + 1
}

// Size returns the number of points along each axis.
func (b Box) Size() IntVect {
	return IntVect{b.Length(0), b.Length(1), b.Length(2)}
}

// NumPts returns the total number of points, or 0 for an empty box.
func (b Box) NumPts() int {
	if !b.Ok() {
		return 0
	}
	return b.Length(0) * b.Length(1) * b.Length(2)
}

// Ok reports whether the box is non-empty.
func (b Box) Ok() bool {
	return b.Hi[0] >= b.Lo[0] && b.Hi[1] >= b.Lo[1] && b.Hi[2] >= b.Lo[2]
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p IntVect) bool {
	for d := 0; d < 3; d++ {
		if p[d] < b.Lo[d] || p[d] > b.Hi[d] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether o lies entirely inside b.
func (b Box) ContainsBox(o Box) bool {
	return b.Contains(o.Lo) && b.Contains(o.Hi)
}

// Intersect returns the overlap of b and o. The result may be empty.
func (b Box) Intersect(o Box) Box {
	var r Box
	for d := 0; d < 3; d++ {
		r.Lo[d] = max(b.Lo[d], o.Lo[d])
		r.Hi[d] = min(b.Hi[d], o.Hi[d])
	}
	return r
}

// Grow extends the box by n points on both sides of every axis.
func (b Box) Grow(n IntVect) Box {
	return Box{Lo: b.Lo.Sub(n), Hi: b.Hi.Add(n)}
}

// Shift translates the box by s.
func (b Box) Shift(s IntVect) Box {
	return Box{Lo: b.Lo.Add(s), Hi: b.Hi.Add(s)}
}

// Convert turns a cell-centered box into the index region of a field with
// index type t: nodal axes gain one point on the high side.
func (b Box) Convert(t IndexType) Box {
	r := b
	for d := 0; d < 3; d++ {
		if t[d] {
			r.Hi[d]++
		}
	}
	return r
}

// Coarsen maps a cell-centered box onto a grid coarser by ratio r.
func (b Box) Coarsen(r int) Box {
	var c Box
	for d := 0; d < 3; d++ {
		c.Lo[d] = floorDiv(b.Lo[d], r)
		c.Hi[d] = floorDiv(b.Hi[d], r)
	}
	return c
}

// Refine maps a cell-centered box onto a grid finer by ratio r.
func (b Box) Refine(r int) Box {
	var f Box
	for d := 0; d < 3; d++ {
		f.Lo[d] = b.Lo[d] * r
		f.Hi[d] = (b.Hi[d]+1)*r - 1
	}
	return f
}

func (b Box) String() string {
	return fmt.Sprintf("((%d,%d,%d) (%d,%d,%d))",
		b.Lo[0], b.Lo[1], b.Lo[2], b.Hi[0], b.Hi[1], b.Hi[2])
}

func floorDiv(a, r int) int {
	q := a / r
	if a%r != 0 && (a < 0) != (r < 0) {
		q--
	}
	return q
}
