package tle

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// Element set for ISS (25544) with valid checksums on both lines.
const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

func TestParseISS(t *testing.T) {
	el, err := Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if el.CatalogNumber != 25544 {
		t.Errorf("catalog number: got %d, want 25544", el.CatalogNumber)
	}

	wantEpoch := time.Date(2008, 9, 20, 12, 25, 40, 104192000, time.UTC)
	if d := el.Epoch.Sub(wantEpoch); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("epoch: got %v, want %v", el.Epoch, wantEpoch)
	}

	deg := math.Pi / 180
	checks := []struct {
		name string
		got  float64
		want float64
		tol  float64
	}{
		{"inclination", el.Inclination, 51.6416 * deg, 1e-12},
		{"raan", el.RAAN, 247.4627 * deg, 1e-12},
		{"eccentricity", el.Eccentricity, 0.0006703, 1e-12},
		{"arg perigee", el.ArgPerigee, 130.5360 * deg, 1e-12},
		{"mean anomaly", el.MeanAnomaly, 325.0288 * deg, 1e-12},
		{"revs per day", el.RevsPerDay, 15.72125391, 1e-12},
		{"mean motion", el.MeanMotion, 15.72125391 * 2 * math.Pi / 86400, 1e-15},
		{"bstar", el.BStar, -0.11606e-4, 1e-15},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > c.tol {
			t.Errorf("%s: got %.12g, want %.12g", c.name, c.got, c.want)
		}
	}

	if el.Line1 != issLine1 || el.Line2 != issLine2 {
		t.Error("source lines not retained")
	}
	if el.Name != "" {
		t.Errorf("bare pair should have empty name, got %q", el.Name)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name  string
		line1 string
		line2 string
		line  int
		field string
	}{
		{
			name:  "short line 1",
			line1: issLine1[:60],
			line2: issLine2,
			line:  1,
			field: "length",
		},
		{
			name:  "short line 2",
			line1: issLine1,
			line2: issLine2[:68],
			line:  2,
			field: "length",
		},
		{
			name:  "swapped lines",
			line1: issLine2,
			line2: issLine1,
			line:  1,
			field: "prefix",
		},
		{
			name:  "bad checksum line 1",
			line1: issLine1[:68] + "8",
			line2: issLine2,
			line:  1,
			field: "checksum",
		},
		{
			name:  "bad checksum line 2",
			line1: issLine1,
			line2: issLine2[:68] + "0",
			line:  2,
			field: "checksum",
		},
		{
			name:  "catalog mismatch",
			line1: issLine1,
			line2: "2 25545  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563538",
			line:  0,
			field: "catalog number",
		},
		{
			name:  "zero mean motion",
			line1: issLine1,
			line2: "2 25544  51.6416 247.4627 0006703 130.5360 325.0288  0.00000000563531",
			line:  2,
			field: "mean motion",
		},
		{
			name:  "non-numeric eccentricity",
			line1: issLine1,
			line2: "2 25544  51.6416 247.4627 00x6703 130.5360 325.0288 15.72125391563537",
			line:  2,
			field: "eccentricity",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse(c.line1, c.line2)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if pe.Line != c.line {
				t.Errorf("error line: got %d, want %d", pe.Line, c.line)
			}
			if pe.Field != c.field {
				t.Errorf("error field: got %q, want %q", pe.Field, c.field)
			}
		})
	}
}

func TestParseTrimsLineEndings(t *testing.T) {
	el, err := Parse(issLine1+"\r\n", issLine2+"\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if el.CatalogNumber != 25544 {
		t.Errorf("catalog number: got %d, want 25544", el.CatalogNumber)
	}
}

func TestParseEpochCenturyPivot(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"57001.00000000", time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"99365.50000000", time.Date(1999, 12, 31, 12, 0, 0, 0, time.UTC)},
		{"00001.00000000", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"25305.50000000", time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)},
		{"56366.00000000", time.Date(2056, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := parseEpoch(c.in)
		if err != nil {
			t.Errorf("parseEpoch(%q): unexpected error: %v", c.in, err)
			continue
		}
		if d := got.Sub(c.want); d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("parseEpoch(%q): got %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := parseEpoch("25000.50000000"); err == nil {
		t.Error("expected error for day 0")
	}
}

func TestParsePointField(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{" 42173-4", 0.42173e-4},
		{"-11606-4", -0.11606e-4},
		{" 00000+0", 0},
		{" 00000-0", 0},
		{" 10270-3", 0.10270e-3},
	}
	for _, c := range cases {
		got, err := parsePointField(c.in)
		if err != nil {
			t.Errorf("parsePointField(%q): unexpected error: %v", c.in, err)
			continue
		}
		if math.Abs(got-c.want) > 1e-15 {
			t.Errorf("parsePointField(%q): got %g, want %g", c.in, got, c.want)
		}
	}

	if _, err := parsePointField("        "); err == nil {
		t.Error("expected error for blank field")
	}
}

func TestChecksum(t *testing.T) {
	if got := checksum(issLine1); got != 7 {
		t.Errorf("line 1 checksum: got %d, want 7", got)
	}
	if got := checksum(issLine2); got != 7 {
		t.Errorf("line 2 checksum: got %d, want 7", got)
	}
}

func TestParseCatalogNamedEntries(t *testing.T) {
	text := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n" +
		"STARLINK-1007\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07\n"

	entries, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "ISS (ZARYA)" || entries[0].CatalogNumber != 25544 {
		t.Errorf("entry 0: got %q/%d", entries[0].Name, entries[0].CatalogNumber)
	}
	if entries[1].Name != "STARLINK-1007" || entries[1].CatalogNumber != 44713 {
		t.Errorf("entry 1: got %q/%d", entries[1].Name, entries[1].CatalogNumber)
	}
}

func TestParseCatalogBarePairs(t *testing.T) {
	text := issLine1 + "\n" + issLine2 + "\n"
	entries, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Name != "" {
		t.Errorf("expected empty name, got %q", entries[0].Name)
	}
}

func TestParseCatalogSkipsMalformed(t *testing.T) {
	// Middle entry has a corrupted checksum; the surrounding entries must
	// still parse.
	text := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n" +
		"BROKEN\n" + issLine1[:68] + "9\n" + issLine2 + "\n" +
		"STARLINK-1007\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07\n"

	entries, err := ParseCatalog(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Name == "BROKEN" {
			t.Error("malformed entry was not skipped")
		}
	}
}

func TestNewDatasetEpochRange(t *testing.T) {
	early := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	late := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	ds := NewDataset("test", time.Now(), []OrbitalElements{
		{CatalogNumber: 1, Epoch: late},
		{CatalogNumber: 2, Epoch: early},
	})
	if !ds.EpochRange.Min.Equal(early) {
		t.Errorf("min epoch: got %v, want %v", ds.EpochRange.Min, early)
	}
	if !ds.EpochRange.Max.Equal(late) {
		t.Errorf("max epoch: got %v, want %v", ds.EpochRange.Max, late)
	}
}
