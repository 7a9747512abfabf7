package mesh

import (
	"fmt"

	"github.com/dgravesa/go-parallel/parallel"
)

// BoxArray is an ordered list of disjoint cell-centered patches.
type BoxArray []Box

// Decompose chops the domain into patches no longer than maxSize along any
// axis. Patches are ordered x-fastest so the decomposition is deterministic.
func Decompose(domain Box, maxSize IntVect) BoxArray {
	var cuts [3][]int
	for d := 0; d < 3; d++ {
		m := maxSize[d]
		if m <= 0 {
			m = domain.Length(d)
		}
		for lo := domain.Lo[d]; lo <= domain.Hi[d]; lo += m {
			cuts[d] = append(cuts[d], lo)
		}
	}

	var ba BoxArray
	for _, kz := range cuts[2] {
		for _, ky := range cuts[1] {
			for _, kx := range cuts[0] {
				lo := IntVect{kx, ky, kz}
				hi := IntVect{
					min(kx+span(maxSize[0], domain, 0)-1, domain.Hi[0]),
					min(ky+span(maxSize[1], domain, 1)-1, domain.Hi[1]),
					min(kz+span(maxSize[2], domain, 2)-1, domain.Hi[2]),
				}
				ba = append(ba, NewBox(lo, hi))
			}
		}
	}
	return ba
}

func span(m int, domain Box, d int) int {
	if m <= 0 {
		return domain.Length(d)
	}
	return m
}

// Coarsen coarsens every patch by ratio r.
func (ba BoxArray) Coarsen(r int) BoxArray {
	out := make(BoxArray, len(ba))
	for i, b := range ba {
		out[i] = b.Coarsen(r)
	}
	return out
}

// Refine refines every patch by ratio r.
func (ba BoxArray) Refine(r int) BoxArray {
	out := make(BoxArray, len(ba))
	for i, b := range ba {
		out[i] = b.Refine(r)
	}
	return out
}

// Equal reports whether both arrays hold the same patches in the same order.
func (ba BoxArray) Equal(o BoxArray) bool {
	if len(ba) != len(o) {
		return false
	}
	for i := range ba {
		if ba[i] != o[i] {
			return false
		}
	}
	return true
}

// MinimalBox returns the smallest box containing every patch.
func (ba BoxArray) MinimalBox() Box {
	if len(ba) == 0 {
		return Box{Lo: IntVect{0, 0, 0}, Hi: IntVect{-1, -1, -1}}
	}
	r := ba[0]
	for _, b := range ba[1:] {
		for d := 0; d < 3; d++ {
			r.Lo[d] = min(r.Lo[d], b.Lo[d])
			r.Hi[d] = max(r.Hi[d], b.Hi[d])
		}
	}
	return r
}

// NumPts returns the total number of cells covered.
func (ba BoxArray) NumPts() int {
	n := 0
	for _, b := range ba {
		n += b.NumPts()
	}
	return n
}

// DistributionMap assigns each patch of a BoxArray to a worker.
type DistributionMap []int

// RoundRobin distributes n patches over nworkers workers.
func RoundRobin(n, nworkers int) DistributionMap {
	if nworkers < 1 {
		nworkers = 1
	}
	dm := make(DistributionMap, n)
	for i := range dm {
		dm[i] = i % nworkers
	}
	return dm
}

// NumWorkers returns one past the highest worker rank in the map.
func (dm DistributionMap) NumWorkers() int {
	n := 0
	for _, w := range dm {
		n = max(n, w+1)
	}
	return n
}

// Patches returns the patch indices owned by worker w, in ascending order.
func (dm DistributionMap) Patches(w int) []int {
	var out []int
	for i, owner := range dm {
		if owner == w {
			out = append(out, i)
		}
	}
	return out
}

// Check panics unless the map covers exactly the patches of ba.
func (dm DistributionMap) Check(ba BoxArray) {
	if len(dm) != len(ba) {
		panic(fmt.Sprintf("mesh: distribution map has %d entries for %d patches", len(dm), len(ba)))
	}
	for i, w := range dm {
		if w < 0 {
			panic(fmt.Sprintf("mesh: patch %d assigned to negative worker %d", i, w))
		}
	}
}

// ForEachPatch runs fn for every patch. Workers run concurrently, each one
// visiting its own patches in order, so fn may keep per-worker scratch keyed
// by the worker argument.
func (dm DistributionMap) ForEachPatch(fn func(worker, patch int)) {
	nw := dm.NumWorkers()
	if nw <= 1 {
		for i := range dm {
			fn(0, i)
		}
		return
	}
	owned := make([][]int, nw)
	for i, w := range dm {
		owned[w] = append(owned[w], i)
	}
	parallel.WithNumGoroutines(nw).For(nw, func(w, _ int) {
		for _, i := range owned[w] {
			fn(w, i)
		}
	})
}
