package tle

import "time"

// OrbitalElements is the validated, parsed form of a two-line element set.
// Angles are stored in radians and mean motion in radians per second so the
// propagators never re-convert; RevsPerDay keeps the as-listed value for
// display. The raw lines are retained because the SGP4 implementation
// initializes from the exact TLE text.
type OrbitalElements struct {
	CatalogNumber int
	Name          string // from the catalog name line, empty for bare pairs
	Epoch         time.Time

	Inclination  float64 // radians
	RAAN         float64 // radians, right ascension of ascending node
	Eccentricity float64
	ArgPerigee   float64 // radians
	MeanAnomaly  float64 // radians, at epoch
	MeanMotion   float64 // radians per second
	RevsPerDay   float64 // mean motion as listed in the TLE
	BStar        float64 // drag term, inverse earth radii

	Line1 string
	Line2 string
}

// EpochRange is the span of element epochs in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete set of orbital elements fetched from one source.
// Datasets are immutable once built; the Store swaps them whole.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []OrbitalElements
}

// NewDataset builds a Dataset and computes its epoch range.
func NewDataset(source string, fetchedAt time.Time, sats []OrbitalElements) *Dataset {
	ds := &Dataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: sats,
	}
	for i, s := range sats {
		if i == 0 || s.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = s.Epoch
		}
		if i == 0 || s.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = s.Epoch
		}
	}
	return ds
}
