package particles

import "math"

// maxStencil is the widest one-dimensional window any shape or deposition
// stencil touches.
const maxStencil = 8

// shape evaluates the one-dimensional B-spline shape factor of the given
// order at xi, a position in grid-index units. It returns the first grid
// index touched and the weights of the order+1 points starting there.
func shape(order int, xi float64, w *[maxStencil]float64) int {
	switch order {
	case 0:
		j := int(math.Floor(xi + 0.5))
		w[0] = 1
		return j
	case 1:
		j := int(math.Floor(xi))
		d := xi - float64(j)
		w[0] = 1 - d
		w[1] = d
		return j
	case 2:
		j := int(math.Floor(xi + 0.5))
		d := xi - float64(j)
		w[0] = 0.5 * (0.5 - d) * (0.5 - d)
		w[1] = 0.75 - d*d
		w[2] = 0.5 * (0.5 + d) * (0.5 + d)
		return j - 1
	case 3:
		j := int(math.Floor(xi))
		d := xi - float64(j)
		d2 := d * d
		d3 := d2 * d
		w[0] = (1 - d) * (1 - d) * (1 - d) / 6
		w[1] = (4 - 6*d2 + 3*d3) / 6
		w[2] = (1 + 3*d + 3*d2 - 3*d3) / 6
		w[3] = d3 / 6
		return j - 1
	}
	panic("particles: unsupported shape order")
}

// axisShape evaluates the shape factor for a field along one axis. Nodal
// fields sit at integer indices; cell-centered ones are offset by half a
// cell. Collapsed axes contribute a single unit weight at index 0.
func axisShape(order int, xi float64, nodal, collapsed bool, w *[maxStencil]float64) (start, n int) {
	if collapsed {
		w[0] = 1
		return 0, 1
	}
	if !nodal {
		xi -= 0.5
	}
	return shape(order, xi, w), order + 1
}
