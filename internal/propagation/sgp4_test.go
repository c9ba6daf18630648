package propagation

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// Real ISS orbital elements (epoch 2024-04-09 12:00 UTC).
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"
)

// Typical LEO constellation satellite.
const (
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// TestSGP4StateAt verifies that a single satellite propagates to a
// physically reasonable state.
func TestSGP4StateAt(t *testing.T) {
	prop, err := NewSGP4(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatalf("NewSGP4 failed: %v", err)
	}

	// A time near the TLE epoch.
	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	sv, err := prop.StateAt(target)
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}

	// TEME position magnitude should fit an ISS-like orbit (~420 km up).
	mag := math.Sqrt(sv.X*sv.X + sv.Y*sv.Y + sv.Z*sv.Z)
	if mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6791 km (ISS orbit)", mag)
	}

	// Orbital velocity for LEO is ~7.5 km/s.
	speed := math.Sqrt(sv.VX*sv.VX + sv.VY*sv.VY + sv.VZ*sv.VZ)
	if speed < 6.5 || speed > 8.5 {
		t.Errorf("TEME speed = %.2f km/s, expected ~7.7 km/s", speed)
	}

	// The ECEF transform should preserve the magnitude (pure rotation).
	ecef := transform.TEMEToECEF(sv, target)
	if !transform.ValidateECEF(ecef) {
		t.Errorf("ECEF position failed validation: [%.1f, %.1f, %.1f] m", ecef.X, ecef.Y, ecef.Z)
	}
	ecefMag := math.Sqrt(ecef.X*ecef.X+ecef.Y*ecef.Y+ecef.Z*ecef.Z) / 1000.0
	if math.Abs(ecefMag-mag) > 0.01 {
		t.Errorf("ECEF magnitude = %.3f km, TEME magnitude = %.3f km (should match)", ecefMag, mag)
	}
}

// TestSGP4InvalidTLE verifies that malformed lines are rejected before they
// reach the library.
func TestSGP4InvalidTLE(t *testing.T) {
	_, err := NewSGP4("invalid line 1", "invalid line 2", 99999)
	if err == nil {
		t.Fatal("expected error for invalid TLE, got nil")
	}
}

func TestNewSelectsModel(t *testing.T) {
	el, err := tle.Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	for _, model := range []string{"", ModelSGP4, ModelKepler} {
		prop, err := New(model, el)
		if err != nil {
			t.Fatalf("New(%q): %v", model, err)
		}
		if prop == nil {
			t.Fatalf("New(%q): nil propagator", model)
		}
	}

	if _, err := New("ephemeris", el); err == nil {
		t.Error("expected error for unknown model name")
	}
}

func TestCacheRebuildsPerDataset(t *testing.T) {
	elISS, err := tle.Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	elStarlink, err := tle.Parse(starlinkLine1, starlinkLine2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cache := NewCache(ModelSGP4, testLogger)

	ds1 := tle.NewDataset("one", time.Date(2024, 4, 9, 13, 0, 0, 0, time.UTC), []tle.OrbitalElements{*elISS})
	props1 := cache.For(ds1)
	if len(props1) != 1 {
		t.Fatalf("expected 1 propagator, got %d", len(props1))
	}
	if _, ok := props1[25544]; !ok {
		t.Fatal("missing propagator for 25544")
	}

	// The same dataset must not rebuild: rebuilding would hand back a
	// different map.
	again := cache.For(ds1)
	if len(again) != 1 {
		t.Fatalf("expected 1 propagator on reuse, got %d", len(again))
	}

	// A new dataset swaps the generation.
	ds2 := tle.NewDataset("two", time.Date(2024, 4, 9, 14, 0, 0, 0, time.UTC), []tle.OrbitalElements{*elISS, *elStarlink})
	props2 := cache.For(ds2)
	if len(props2) != 2 {
		t.Fatalf("expected 2 propagators after swap, got %d", len(props2))
	}
}

func TestCacheSkipsUninitializableEntries(t *testing.T) {
	elISS, err := tle.Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	broken := tle.OrbitalElements{CatalogNumber: 11111, Line1: "garbage", Line2: "garbage"}

	cache := NewCache(ModelSGP4, testLogger)
	ds := tle.NewDataset("mixed", time.Now(), []tle.OrbitalElements{*elISS, broken})

	props := cache.For(ds)
	if len(props) != 1 {
		t.Fatalf("expected 1 propagator, got %d", len(props))
	}
	if _, ok := props[11111]; ok {
		t.Error("broken entry should have been skipped")
	}
}
