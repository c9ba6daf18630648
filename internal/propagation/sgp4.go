package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/kilodelta8/StarTrack/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go (no CGO), widely used, explicit TEME output, and it ships
// GSTimeFromDate/ECIToECEF which the transform tests use as a reference.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes are not
// visible to the caller. Propagation failures are detected by checking the
// output for NaN/Inf and non-orbital position magnitudes.

// SGP4 wraps the go-satellite model for a single satellite.
type SGP4 struct {
	sat           satellite.Satellite
	catalogNumber int
}

// NewSGP4 initializes the SGP4 model from raw TLE lines.
//
// The lines are shape-checked first because go-satellite calls log.Fatal on
// malformed input, which would kill the process.
func NewSGP4(line1, line2 string, catalogNumber int) (*SGP4, error) {
	if err := validateLineShape(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for catalog %d: %w", catalogNumber, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for catalog %d: code=%d %s", catalogNumber, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, catalogNumber: catalogNumber}, nil
}

// validateLineShape performs the minimal format check that keeps garbage out
// of go-satellite's column parser.
func validateLineShape(line1, line2 string) error {
	for i, line := range [2]string{line1, line2} {
		line = strings.TrimSpace(line)
		if len(line) != 69 {
			return fmt.Errorf("line%d length %d, expected 69", i+1, len(line))
		}
		if want := byte('1' + i); line[0] != want {
			return fmt.Errorf("line%d must start with %q, got %q", i+1, want, line[0])
		}
	}
	return nil
}

// StateAt computes the TEME state at t, truncated to whole seconds (the
// library's time resolution).
func (p *SGP4) StateAt(t time.Time) (transform.StateVector, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if !finite(pos) {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for catalog %d: output is NaN/Inf", p.catalogNumber)
	}

	// Orbital positions live between ~6200 km (just under LEO) and
	// ~50000 km (above GEO); anything else is a model failure.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for catalog %d: unreasonable position magnitude %.1f km", p.catalogNumber, mag)
	}

	return transform.StateVector{
		X:  pos.X,
		Y:  pos.Y,
		Z:  pos.Z,
		VX: vel.X,
		VY: vel.Y,
		VZ: vel.Z,
	}, nil
}

func finite(v satellite.Vector3) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
