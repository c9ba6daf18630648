// Package transform provides the coordinate frame transformations between
// propagator output and antenna pointing angles.
//
// Propagators emit state vectors in TEME (True Equator Mean Equinox); the
// tracking device wants azimuth/elevation at a ground site, which requires
// ECEF (Earth-Centered Earth-Fixed) positions. The TEME→ECEF rotation here
// uses GMST only, ignoring polar motion and the equation of equinoxes. That
// introduces at most ~50 m of error, far below the pointing resolution of a
// hobby antenna mount.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"
)

const mPerKm = 1000.0

// StateVector is a satellite position and velocity in the TEME frame.
type StateVector struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// PositionECEF is a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// TEMEToECEF rotates a TEME state vector into ECEF at the given UTC time.
// Input is km and km/s, output meters and m/s.
func TEMEToECEF(sv StateVector, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(sv, GMST(t))
}

// TEMEToECEFWithGMST rotates TEME to ECEF using a precomputed GMST angle in
// radians. Callers propagating many satellites to the same instant compute
// GMST once and reuse it.
//
// Position: r_ECEF = R3(θ) · r_TEME.
// Velocity: v_ECEF = R3(θ) · v_TEME − ω × r_ECEF, with ω = [0, 0, ω_earth].
func TEMEToECEFWithGMST(sv StateVector, gmst float64) PositionECEF {
	sinG, cosG := math.Sincos(gmst)

	x := sv.X*cosG + sv.Y*sinG
	y := sv.Y*cosG - sv.X*sinG

	// ω × r_ECEF = [-ω·y, ω·x, 0].
	vx := sv.VX*cosG + sv.VY*sinG + OmegaEarth*y
	vy := sv.VY*cosG - sv.VX*sinG - OmegaEarth*x

	return PositionECEF{
		X:  x * mPerKm,
		Y:  y * mPerKm,
		Z:  sv.Z * mPerKm,
		VX: vx * mPerKm,
		VY: vy * mPerKm,
		VZ: sv.VZ * mPerKm,
	}
}

// Geocentric distance band for a plausible Earth orbit: just under LEO up
// to well past GEO.
const (
	minOrbitRadiusM = 6200e3
	maxOrbitRadiusM = 50000e3
)

// ValidateECEF reports whether an ECEF position is physically plausible for
// an Earth-orbiting satellite: finite components and a geocentric distance
// inside the orbit band.
func ValidateECEF(pos PositionECEF) bool {
	for _, c := range [3]float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	return r >= minOrbitRadiusM && r <= maxOrbitRadiusM
}
