// Package passes finds when a satellite is visible from a ground site: the
// fixed-step sampler produces the pointing trajectory handed to the tracking
// device, and the predictor scans a longer horizon for upcoming passes.
package passes

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilodelta8/StarTrack/internal/propagation"
	"github.com/kilodelta8/StarTrack/internal/trajectory"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// ErrNotVisible reports that the satellite never rises to the elevation
// cutoff during the sampled window. It is a distinct outcome, not a failure:
// the computation ran to completion.
var ErrNotVisible = errors.New("satellite not visible in the sampled window")

// Sampling defaults, matching the device's tick rate and queue depth.
const (
	DefaultStep     = 5 * time.Second
	DefaultDuration = 10 * time.Minute
)

// Window is a fixed-step sampling window: ticks at Start + k·Step for every
// k with k·Step ≤ Duration, so both endpoints are included when Duration is
// a multiple of Step.
type Window struct {
	Start    time.Time
	Step     time.Duration
	Duration time.Duration
}

// Ticks returns the number of instants the window contains.
func (w Window) Ticks() int {
	step := w.Step
	if step <= 0 {
		step = DefaultStep
	}
	return int(w.Duration/step) + 1
}

// Sample propagates prop across win and keeps the instants where the
// satellite sits at or above minElevation degrees. Sub-horizon instants are
// dropped, never clamped, so the result may contain gaps. Returns
// ErrNotVisible when no instant qualifies; a propagation failure aborts with
// the underlying error.
func Sample(prop propagation.Propagator, obs transform.ObserverPosition, win Window, minElevation float64) (trajectory.Trajectory, error) {
	if win.Step <= 0 {
		win.Step = DefaultStep
	}
	if win.Duration < 0 {
		return nil, fmt.Errorf("negative sampling duration %v", win.Duration)
	}

	ticks := win.Ticks()
	tr := make(trajectory.Trajectory, 0, ticks)
	for k := 0; k < ticks; k++ {
		at := win.Start.Add(time.Duration(k) * win.Step)
		sv, err := prop.StateAt(at)
		if err != nil {
			return nil, fmt.Errorf("propagating at %s: %w", at.UTC().Format(time.RFC3339), err)
		}
		ecef := transform.TEMEToECEF(sv, at)
		la := transform.ECEFToLookAngles(obs, ecef.X, ecef.Y, ecef.Z)
		if la.ElevationDeg >= minElevation {
			tr = append(tr, trajectory.Sample{
				Epoch:     at.Unix(),
				Azimuth:   la.AzimuthDeg,
				Elevation: la.ElevationDeg,
			})
		}
	}

	if len(tr) == 0 {
		return nil, ErrNotVisible
	}
	return tr, nil
}
