package mesh

// FillBoundary overwrites the ghost points of every patch with the owned
// values of the patch (or periodic image) that covers them. Ghosts lying
// outside a non-periodic domain edge are left untouched.
//
// Each patch writes only its own ghosts and reads only owned points of its
// neighbours, so patches are processed concurrently.
func (mf *MultiFab) FillBoundary(geom Geometry) {
	shifts := geom.PeriodicShifts()
	mf.dm.ForEachPatch(func(_, i int) {
		dst := mf.fabs[i]
		fabBox := mf.FabBox(i)
		for j := range mf.fabs {
			for _, s := range shifts {
				if i == j && s == (IntVect{}) {
					continue
				}
				region := fabBox.Intersect(mf.OwnedBox(j).Shift(s))
				if !region.Ok() {
					continue
				}
				dst.CopyShifted(mf.fabs[j], region.Shift(IntVect{}.Sub(s)), s, 0, 0, mf.ncomp)
			}
		}
	})
}

// SumBoundary adds ghost contributions (for example deposited current that
// spilled past a patch edge) into the owned points they overlap, then
// refreshes the ghosts so every copy of a point holds the total.
func (mf *MultiFab) SumBoundary(geom Geometry) {
	shifts := geom.PeriodicShifts()
	mf.dm.ForEachPatch(func(_, i int) {
		dst := mf.fabs[i]
		owned := mf.OwnedBox(i)
		for j := range mf.fabs {
			for _, s := range shifts {
				if i == j && s == (IntVect{}) {
					continue
				}
				// Source points of j whose image under s lands in i's owned
				// region. These are always ghosts of j.
				region := mf.FabBox(j).Intersect(owned.Shift(IntVect{}.Sub(s)))
				if !region.Ok() {
					continue
				}
				dst.AddShifted(mf.fabs[j], region, s, 0, 0, mf.ncomp)
			}
		}
	})
	mf.FillBoundary(geom)
}
