package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/kilodelta8/StarTrack/internal/propagation"
	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a
// pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Elevation float64   `json:"elevation"` // degrees above the observer's horizon
}

// PassEvent describes a single satellite pass over an observer location.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	CatalogNumber int         `json:"catalog_number"`
	Name          string      `json:"name,omitempty"`
	Passes        []PassEvent `json:"passes"`
	Error         string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction scan.
type Request struct {
	Observer     transform.ObserverPosition
	Satellites   []tle.OrbitalElements
	Model        string // propagation model name; empty selects the default
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int
}

const (
	coarseStepSec      = 30 // seconds between coarse scan steps
	fineStepSec        = 1  // seconds between fine scan steps
	groundTrackStepSec = 10 // seconds between ground track samples
	minPassDur         = 10 * time.Second
	defaultMaxPasses   = 10 // per-satellite cap when the request leaves it unset
)

// Predict scans the horizon for passes of every requested satellite. Each
// satellite runs in its own goroutine, bounded by a semaphore sized to the
// CPU count; per-satellite failures land in that satellite's result rather
// than aborting the scan.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	if req.MaxPasses <= 0 {
		req.MaxPasses = defaultMaxPasses
	}

	results := make([]SatellitePasses, len(req.Satellites))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i := range req.Satellites {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			el := req.Satellites[idx]
			res := SatellitePasses{CatalogNumber: el.CatalogNumber, Name: el.Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				res.Error = "cancelled"
				results[idx] = res
				return
			}

			passes, err := scanSatellite(ctx, req, el)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Passes = passes
			}
			results[idx] = res
		}(i)
	}

	wg.Wait()
	return results
}

// scanSatellite finds all passes for a single satellite within the horizon.
func scanSatellite(ctx context.Context, req Request, el tle.OrbitalElements) ([]PassEvent, error) {
	prop, err := propagation.New(req.Model, &el)
	if err != nil {
		return nil, fmt.Errorf("propagator init: %w", err)
	}

	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	var passes []PassEvent

	// Coarse scan for above-horizon regions; each hit is refined at
	// one-second resolution and the cursor jumps past the whole pass.
	for t := req.Start; t.Before(end) && len(passes) < req.MaxPasses; {
		if ctx.Err() != nil {
			return passes, nil
		}

		elev, _, _, err := elevationAt(prop, req.Observer, t)
		if err != nil || elev <= 0 {
			t = t.Add(coarseStepSec * time.Second)
			continue
		}

		pass, windowEnd := refinePass(ctx, prop, req.Observer, t, req.Start, end, req.MinElevation)
		if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDur {
			passes = append(passes, *pass)
		}
		t = windowEnd.Add(coarseStepSec * time.Second)
	}

	return passes, nil
}

// passBuilder accumulates one pass during the fine scan.
type passBuilder struct {
	started  bool
	rise     time.Time
	riseAz   float64
	peak     float64
	peakTime time.Time
	peakAz   float64
	track    []GroundTrackPoint
}

// open marks the rise sample. The same sample is also fed to observe, which
// records the first ground track point.
func (pb *passBuilder) open(t time.Time, la transform.LookAngles) {
	pb.started = true
	pb.rise = t
	pb.riseAz = la.AzimuthDeg
	pb.peak = la.ElevationDeg
	pb.peakTime = t
	pb.peakAz = la.AzimuthDeg
}

func (pb *passBuilder) observe(t time.Time, la transform.LookAngles, ecef transform.PositionECEF) {
	if la.ElevationDeg > pb.peak {
		pb.peak = la.ElevationDeg
		pb.peakTime = t
		pb.peakAz = la.AzimuthDeg
	}
	if int(t.Sub(pb.rise).Seconds())%groundTrackStepSec != 0 {
		return
	}
	geo := transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z)
	pb.track = append(pb.track, GroundTrackPoint{
		Time:      t,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Altitude:  geo.AltM,
		Elevation: la.ElevationDeg,
	})
}

func (pb *passBuilder) close(setTime time.Time, setAz float64) *PassEvent {
	return &PassEvent{
		StartTime:        pb.rise,
		MaxElevationTime: pb.peakTime,
		EndTime:          setTime,
		DurationSeconds:  setTime.Sub(pb.rise).Seconds(),
		MaxElevation:     pb.peak,
		AzimuthAtMax:     pb.peakAz,
		StartAzimuth:     pb.riseAz,
		EndAzimuth:       setAz,
		GroundTrack:      pb.track,
	}
}

// refinePass walks a coarse-detected above-horizon region at one-second
// resolution. It backs up one coarse step to catch the true rise, then
// follows the pass to its set. The second return value is where the scan
// cursor should resume.
func refinePass(ctx context.Context, prop propagation.Propagator, obs transform.ObserverPosition, coarseHit, windowStart, windowEnd time.Time, minElev float64) (*PassEvent, time.Time) {
	t := coarseHit.Add(-coarseStepSec * time.Second)
	if t.Before(windowStart) {
		t = windowStart
	}

	var (
		pb       passBuilder
		wasAbove bool
	)
	for ; t.Before(windowEnd); t = t.Add(fineStepSec * time.Second) {
		if ctx.Err() != nil {
			break
		}

		elev, la, ecef, err := elevationAt(prop, obs, t)
		if err != nil {
			continue
		}
		above := elev >= minElev

		if above && !wasAbove {
			pb.open(t, la)
		}
		if above && pb.started {
			pb.observe(t, la, ecef)
		}
		if !above && wasAbove && pb.started {
			// Set: the pass is complete.
			return pb.close(t, la.AzimuthDeg), t
		}
		wasAbove = above
	}

	if !pb.started || !wasAbove {
		return nil, t
	}

	// Still above the horizon at the window edge (or the context fired):
	// close the pass where the scan stopped.
	var setAz float64
	if elev, la, _, err := elevationAt(prop, obs, t); err == nil {
		setAz = la.AzimuthDeg
		if elev > pb.peak {
			pb.peak = elev
			pb.peakTime = t
			pb.peakAz = la.AzimuthDeg
		}
	}
	return pb.close(t, setAz), t
}

// elevationAt computes the look angles and satellite ECEF position from
// observer to satellite at time t.
func elevationAt(prop propagation.Propagator, obs transform.ObserverPosition, t time.Time) (float64, transform.LookAngles, transform.PositionECEF, error) {
	sv, err := prop.StateAt(t)
	if err != nil {
		return 0, transform.LookAngles{}, transform.PositionECEF{}, err
	}
	ecef := transform.TEMEToECEF(sv, t)
	la := transform.ECEFToLookAngles(obs, ecef.X, ecef.Y, ecef.Z)
	return la.ElevationDeg, la, ecef, nil
}
