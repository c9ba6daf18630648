package propagation

import (
	"fmt"
	"math"
	"time"

	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// WGS-84 gravitational and shape constants used by the Kepler model.
const (
	muEarth       = 398600.4418 // km³/s²
	earthRadiusKm = 6378.137
	j2Coeff       = 0.00108262998905
)

// Kepler solver bounds. Newton-Raphson converges in a handful of iterations
// for any eccentricity below 1; the cap guarantees termination regardless.
const (
	keplerTol     = 1e-12 // radians
	keplerMaxIter = 30
)

// Kepler is a two-body propagator with secular J2 corrections for node
// regression, perigee rotation, and mean motion. It carries no drag model,
// so accuracy degrades beyond a few hours from epoch; over the short
// horizons the sampler uses, it stays within tens of kilometers of SGP4.
type Kepler struct {
	el        tle.OrbitalElements
	a         float64 // semi-major axis, km
	semiLatus float64 // a(1-e²), km
	raanDot   float64 // rad/s
	argpDot   float64 // rad/s
	mDot      float64 // rad/s, J2-corrected mean motion
}

// NewKepler derives the constant orbit geometry and J2 secular rates from el.
func NewKepler(el *tle.OrbitalElements) *Kepler {
	n := el.MeanMotion
	e := el.Eccentricity
	a := math.Cbrt(muEarth / (n * n))
	p := a * (1 - e*e)

	sinI := math.Sin(el.Inclination)
	cosI := math.Cos(el.Inclination)
	factor := 1.5 * j2Coeff * n * (earthRadiusKm / p) * (earthRadiusKm / p)

	return &Kepler{
		el:        *el,
		a:         a,
		semiLatus: p,
		raanDot:   -factor * cosI,
		argpDot:   factor * (2 - 2.5*sinI*sinI),
		mDot:      n + factor*math.Sqrt(1-e*e)*(1-1.5*sinI*sinI),
	}
}

// StateAt returns the TEME state at t.
func (k *Kepler) StateAt(t time.Time) (transform.StateVector, error) {
	dt := t.Sub(k.el.Epoch).Seconds()
	e := k.el.Eccentricity

	m := math.Mod(k.el.MeanAnomaly+k.mDot*dt, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	raan := k.el.RAAN + k.raanDot*dt
	argp := k.el.ArgPerigee + k.argpDot*dt

	ea := solveKepler(m, e)
	sinE, cosE := math.Sincos(ea)

	// True anomaly and orbit radius from the eccentric anomaly.
	nu := math.Atan2(math.Sqrt(1-e*e)*sinE, cosE-e)
	r := k.a * (1 - e*cosE)

	// Position and velocity in the perifocal frame.
	sinNu, cosNu := math.Sincos(nu)
	xp := r * cosNu
	yp := r * sinNu
	vScale := math.Sqrt(muEarth / k.semiLatus)
	vxp := -vScale * sinNu
	vyp := vScale * (e + cosNu)

	// Rotate perifocal → inertial: R3(−Ω)·R1(−i)·R3(−ω).
	sinO, cosO := math.Sincos(raan)
	sinI, cosI := math.Sincos(k.el.Inclination)
	sinW, cosW := math.Sincos(argp)

	xxc := cosO*cosW - sinO*sinW*cosI
	xyc := -cosO*sinW - sinO*cosW*cosI
	yxc := sinO*cosW + cosO*sinW*cosI
	yyc := -sinO*sinW + cosO*cosW*cosI
	zxc := sinW * sinI
	zyc := cosW * sinI

	sv := transform.StateVector{
		X:  xxc*xp + xyc*yp,
		Y:  yxc*xp + yyc*yp,
		Z:  zxc*xp + zyc*yp,
		VX: xxc*vxp + xyc*vyp,
		VY: yxc*vxp + yyc*vyp,
		VZ: zxc*vxp + zyc*vyp,
	}

	if math.IsNaN(sv.X) || math.IsNaN(sv.Y) || math.IsNaN(sv.Z) {
		return transform.StateVector{}, fmt.Errorf("kepler propagation produced NaN for catalog %d", k.el.CatalogNumber)
	}
	return sv, nil
}

// solveKepler finds the eccentric anomaly E satisfying M = E − e·sin E by
// Newton-Raphson, starting from M (or π for high eccentricities, where M is
// a poor first guess).
func solveKepler(m, e float64) float64 {
	ea := m
	if e > 0.8 {
		ea = math.Pi
	}
	for i := 0; i < keplerMaxIter; i++ {
		delta := (ea - e*math.Sin(ea) - m) / (1 - e*math.Cos(ea))
		ea -= delta
		if math.Abs(delta) < keplerTol {
			break
		}
	}
	return ea
}
