package particles

import (
	"math"

	"github.com/pthm-cable/picsim/phys"
)

const invC2 = 1 / (phys.C * phys.C)

// pushBoris advances u = gamma*v over dt with the Boris scheme: half an
// electric kick, a magnetic rotation, then the second half kick. It returns
// the new 1/gamma.
func pushBoris(ux, uy, uz *float64, ex, ey, ez, bx, by, bz, qm, dt float64) float64 {
	econst := 0.5 * qm * dt

	umx := *ux + econst*ex
	umy := *uy + econst*ey
	umz := *uz + econst*ez

	ginv := 1 / math.Sqrt(1+(umx*umx+umy*umy+umz*umz)*invC2)
	tx := econst * bx * ginv
	ty := econst * by * ginv
	tz := econst * bz * ginv
	sfac := 2 / (1 + tx*tx + ty*ty + tz*tz)
	sx, sy, sz := sfac*tx, sfac*ty, sfac*tz

	upx := umx + umy*tz - umz*ty
	upy := umy + umz*tx - umx*tz
	upz := umz + umx*ty - umy*tx

	*ux = umx + upy*sz - upz*sy + econst*ex
	*uy = umy + upz*sx - upx*sz + econst*ey
	*uz = umz + upx*sy - upy*sx + econst*ez

	return 1 / math.Sqrt(1+(*ux**ux+*uy**uy+*uz**uz)*invC2)
}

// pushVay advances u = gamma*v over dt with the Vay scheme, which keeps the
// E + v x B = 0 drift exact. It returns the new 1/gamma.
func pushVay(ux, uy, uz *float64, ex, ey, ez, bx, by, bz, qm, dt float64) float64 {
	econst := qm * dt
	bconst := 0.5 * qm * dt

	ginv := 1 / math.Sqrt(1+(*ux**ux+*uy**uy+*uz**uz)*invC2)
	vx, vy, vz := *ux*ginv, *uy*ginv, *uz*ginv

	// Full electric kick plus half the magnetic one at the old velocity.
	upx := *ux + econst*ex + bconst*(vy*bz-vz*by)
	upy := *uy + econst*ey + bconst*(vz*bx-vx*bz)
	upz := *uz + econst*ez + bconst*(vx*by-vy*bx)

	taux, tauy, tauz := bconst*bx, bconst*by, bconst*bz
	tau2 := taux*taux + tauy*tauy + tauz*tauz
	ustar := (upx*taux + upy*tauy + upz*tauz) / phys.C

	sigma := 1 + (upx*upx+upy*upy+upz*upz)*invC2 - tau2
	gamma := math.Sqrt(0.5 * (sigma + math.Sqrt(sigma*sigma+4*(tau2+ustar*ustar))))

	tx, ty, tz := taux/gamma, tauy/gamma, tauz/gamma
	s := 1 / (1 + tx*tx + ty*ty + tz*tz)
	ut := upx*tx + upy*ty + upz*tz

	*ux = s * (upx + ut*tx + upy*tz - upz*ty)
	*uy = s * (upy + ut*ty + upz*tx - upx*tz)
	*uz = s * (upz + ut*tz + upx*ty - upy*tx)

	return 1 / gamma
}
