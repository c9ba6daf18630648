package transform

import (
	"fmt"
	"math"
)

// WGS-84 reference ellipsoid.
const (
	wgs84SemiMajorM = 6378137.0
	wgs84Flattening = 1 / 298.257223563
	wgs84Ecc2       = wgs84Flattening * (2 - wgs84Flattening)
)

const degPerRad = 180.0 / math.Pi

// MinAltitudeM is the lowest ground an observer can stand on, the Dead Sea
// shore.
const MinAltitudeM = -430.0

// primeVertical returns the ellipsoid's radius of curvature in the prime
// vertical at the given sine of latitude.
func primeVertical(sinLat float64) float64 {
	return wgs84SemiMajorM / math.Sqrt(1-wgs84Ecc2*sinLat*sinLat)
}

// ObserverPosition holds a ground site in both geodetic and ECEF form.
// The ECEF coordinates are computed once at construction and reused across
// every sample of a pass.
type ObserverPosition struct {
	LatRad, LonRad, AltM float64 // geodetic (radians, meters above ellipsoid)
	ECEFx, ECEFy, ECEFz  float64 // precomputed ECEF (meters)
}

// LookAngles holds the pointing solution from an observer to a satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise, in [0,360)
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// ValidateGeodetic checks that geodetic coordinates describe a real ground
// site: latitude within ±90°, longitude within ±180°, altitude at or above
// the lowest land surface.
func ValidateGeodetic(latDeg, lonDeg, altM float64) error {
	if math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90 {
		return fmt.Errorf("latitude %g out of range [-90, 90]", latDeg)
	}
	if math.IsNaN(lonDeg) || lonDeg < -180 || lonDeg > 180 {
		return fmt.Errorf("longitude %g out of range [-180, 180]", lonDeg)
	}
	if math.IsNaN(altM) || altM < MinAltitudeM {
		return fmt.Errorf("altitude %g m below minimum %g m", altM, MinAltitudeM)
	}
	return nil
}

// NewObserverPosition builds an ObserverPosition from latitude and longitude
// in degrees and altitude in meters above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altM float64) ObserverPosition {
	obs := ObserverPosition{
		LatRad: latDeg / degPerRad,
		LonRad: lonDeg / degPerRad,
		AltM:   altM,
	}

	sinLat, cosLat := math.Sincos(obs.LatRad)
	sinLon, cosLon := math.Sincos(obs.LonRad)
	n := primeVertical(sinLat)

	obs.ECEFx = (n + altM) * cosLat * cosLon
	obs.ECEFy = (n + altM) * cosLat * sinLon
	obs.ECEFz = (n*(1-wgs84Ecc2) + altM) * sinLat
	return obs
}

// GeodeticPoint holds a geodetic position (degrees, meters).
type GeodeticPoint struct {
	LatDeg, LonDeg, AltM float64
}

// ECEFToGeodetic converts ECEF meters to geodetic form with Bowring's
// iteration, run to convergence with a small cap. Any Earth orbit converges
// well before the cap.
func ECEFToGeodetic(x, y, z float64) GeodeticPoint {
	lon := math.Atan2(y, x)
	p := math.Hypot(x, y)

	lat := math.Atan2(z, p*(1-wgs84Ecc2))
	for i := 0; i < 8; i++ {
		sinLat := math.Sin(lat)
		next := math.Atan2(z+wgs84Ecc2*primeVertical(sinLat)*sinLat, p)
		done := math.Abs(next-lat) < 1e-12
		lat = next
		if done {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	n := primeVertical(sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		// Polar case: derive altitude from the z component instead.
		alt = math.Abs(z)/math.Abs(sinLat) - n*(1-wgs84Ecc2)
	}

	return GeodeticPoint{
		LatDeg: lat * degPerRad,
		LonDeg: lon * degPerRad,
		AltM:   alt,
	}
}

// horizEps is the horizontal-projection magnitude in meters under which the
// azimuth is treated as undefined and reported as 0 by convention.
const horizEps = 1e-9

// sez rotates an ECEF offset from the observer into the local
// South-East-Zenith frame (Vallado Section 4.4).
func (obs ObserverPosition) sez(dx, dy, dz float64) (south, east, up float64) {
	sinLat, cosLat := math.Sincos(obs.LatRad)
	sinLon, cosLon := math.Sincos(obs.LonRad)

	south = sinLat*cosLon*dx + sinLat*sinLon*dy - cosLat*dz
	east = -sinLon*dx + cosLon*dy
	up = cosLat*cosLon*dx + cosLat*sinLon*dy + sinLat*dz
	return south, east, up
}

// ECEFToLookAngles computes azimuth, elevation, and range from an observer
// to a satellite position given in ECEF meters.
//
// Degenerate geometry never produces NaN: a zero range vector reports the
// zenith (elevation 90, azimuth 0, range 0), and a satellite exactly on the
// observer's vertical axis reports azimuth 0.
func ECEFToLookAngles(obs ObserverPosition, satX, satY, satZ float64) LookAngles {
	south, east, up := obs.sez(satX-obs.ECEFx, satY-obs.ECEFy, satZ-obs.ECEFz)

	slant := math.Sqrt(south*south + east*east + up*up)
	if slant == 0 {
		return LookAngles{AzimuthDeg: 0, ElevationDeg: 90, RangeKm: 0}
	}

	// Clamp so rounding can never push the asin argument past ±1.
	sinEl := math.Max(-1, math.Min(1, up/slant))

	var az float64
	if math.Abs(south) >= horizEps || math.Abs(east) >= horizEps {
		// North is the -South direction, so azimuth = atan2(east, -south).
		az = math.Atan2(east, -south)
		if az < 0 {
			az += 2 * math.Pi
		}
		if az >= 2*math.Pi {
			az = 0
		}
	}

	return LookAngles{
		AzimuthDeg:   az * degPerRad,
		ElevationDeg: math.Asin(sinEl) * degPerRad,
		RangeKm:      slant / 1000.0,
	}
}
