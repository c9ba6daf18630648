package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (2000 January 1, 12:00 TT).
const j2000 = 2451545.0

// secPerDay is the length of a civil day in seconds.
const secPerDay = 86400.0

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// JulianDate converts a UTC time to Julian Date using the standard
// astronomical algorithm (valid for the Gregorian calendar era).
func JulianDate(t time.Time) float64 {
	y, m, d := float64(t.Year()), float64(t.Month()), float64(t.Day())

	// January and February count as months 13 and 14 of the prior year.
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)
	day := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5

	clock := float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
	return day + clock/secPerDay
}

// GMST returns Greenwich Mean Sidereal Time in radians for a UTC time,
// using the IAU-82 model (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)·T + 0.093104·T² − 6.2e-6·T³
//
// where T is Julian centuries of UT1 from J2000.0 and the result is in
// seconds of time.
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t.UTC()) - j2000) / 36525.0

	// Horner form; 876600 hours is 3155760000 seconds.
	gmstSec := 67310.54841 + tUT1*(3155760000.0+8640184.812866+tUT1*(0.093104-6.2e-6*tUT1))

	gmstSec = math.Mod(gmstSec, secPerDay)
	if gmstSec < 0 {
		gmstSec += secPerDay
	}
	return gmstSec / secPerDay * 2.0 * math.Pi
}
