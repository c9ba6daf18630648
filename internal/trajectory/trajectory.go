// Package trajectory defines the time-ordered pointing samples handed to
// the tracking device and their compact delimiter-separated wire encoding.
package trajectory

import "time"

// Sample is one pointing instruction: where the antenna must aim at one
// moment.
type Sample struct {
	Epoch     int64   `json:"epoch_time"` // Unix seconds, UTC
	Azimuth   float64 `json:"az"`         // degrees, 0 = North, clockwise, in [0,360)
	Elevation float64 `json:"el"`         // degrees above the horizon
}

// Time returns the sample instant.
func (s Sample) Time() time.Time {
	return time.Unix(s.Epoch, 0).UTC()
}

// Trajectory is a sequence of samples with strictly increasing epochs, all
// at or above the horizon. The sampler produces them in that form; the
// codec transports them without reordering.
type Trajectory []Sample

// Span returns the first and last sample instants. Zero times for an empty
// trajectory.
func (tr Trajectory) Span() (start, end time.Time) {
	if len(tr) == 0 {
		return time.Time{}, time.Time{}
	}
	return tr[0].Time(), tr[len(tr)-1].Time()
}
