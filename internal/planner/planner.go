// Package planner is the calculation boundary: it resolves a request
// against the loaded TLE dataset, runs the propagation and sampling
// pipeline, and produces either an encoded trajectory or an explicit
// not-visible outcome. Visibility is a result, not an error; errors mean
// the computation itself could not run.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kilodelta8/StarTrack/internal/passes"
	"github.com/kilodelta8/StarTrack/internal/propagation"
	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/trajectory"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// ErrNoElements reports that the TLE store has no dataset or no entry for
// the requested satellite.
var ErrNoElements = errors.New("no orbital elements loaded")

// ErrInvalidObserver reports observer coordinates outside the accepted
// geodetic ranges.
var ErrInvalidObserver = errors.New("invalid observer")

// Defaults are the configured fallbacks applied when a request leaves a
// field unset.
type Defaults struct {
	Latitude      float64
	Longitude     float64
	AltitudeM     float64
	CatalogNumber int
	Step          time.Duration
	Duration      time.Duration
	MinElevation  float64 // degrees; samples below it are dropped
	Precision     int     // wire format fractional digits
	Model         string  // propagation model name
}

// Request is one calculation. Pointer fields distinguish "absent, use the
// default" from a legitimate zero (the equator and the prime meridian are
// real places).
type Request struct {
	Latitude      *float64
	Longitude     *float64
	AltitudeM     *float64
	CatalogNumber int       // 0 selects the configured default
	Start         time.Time // zero selects the current time
}

// Outcome is the caller-facing result. Visible false with a message means
// the pipeline ran and the satellite stays below the cutoff for the whole
// window.
type Outcome struct {
	Visible  bool
	Wire     string
	Message  string
	Samples  int
	Start    time.Time
	Duration time.Duration
}

// Planner runs calculations against the current dataset.
type Planner struct {
	store    *tle.Store
	defaults Defaults
	codec    trajectory.Codec
	cache    *propagation.Cache
	logger   *slog.Logger
}

// New creates a Planner over store with the given defaults.
func New(store *tle.Store, defaults Defaults, logger *slog.Logger) *Planner {
	return &Planner{
		store:    store,
		defaults: defaults,
		codec:    trajectory.Codec{Precision: defaults.Precision},
		cache:    propagation.NewCache(defaults.Model, logger),
		logger:   logger,
	}
}

// Calculate resolves req, samples the pointing window, and encodes the
// result. Observer coordinates are validated before any propagation.
func (p *Planner) Calculate(ctx context.Context, req Request) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lat := p.defaults.Latitude
	if req.Latitude != nil {
		lat = *req.Latitude
	}
	lon := p.defaults.Longitude
	if req.Longitude != nil {
		lon = *req.Longitude
	}
	alt := p.defaults.AltitudeM
	if req.AltitudeM != nil {
		alt = *req.AltitudeM
	}
	if err := transform.ValidateGeodetic(lat, lon, alt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidObserver, err)
	}

	catalog := req.CatalogNumber
	if catalog == 0 {
		catalog = p.defaults.CatalogNumber
	}

	ds := p.store.Get()
	if ds == nil || len(ds.Satellites) == 0 {
		return nil, ErrNoElements
	}

	found := false
	for i := range ds.Satellites {
		if ds.Satellites[i].CatalogNumber == catalog {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: catalog number %d", ErrNoElements, catalog)
	}

	prop, ok := p.cache.For(ds)[catalog]
	if !ok {
		return nil, fmt.Errorf("propagator unavailable for catalog number %d", catalog)
	}

	start := req.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	win := passes.Window{Start: start, Step: p.defaults.Step, Duration: p.defaults.Duration}
	if win.Duration == 0 {
		win.Duration = passes.DefaultDuration
	}

	obs := transform.NewObserverPosition(lat, lon, alt)
	traj, err := passes.Sample(prop, obs, win, p.defaults.MinElevation)
	if errors.Is(err, passes.ErrNotVisible) {
		p.logger.Info("satellite not visible",
			"catalog_number", catalog,
			"start", start.UTC().Format(time.RFC3339),
			"window_minutes", win.Duration.Minutes(),
		)
		return &Outcome{
			Visible:  false,
			Message:  fmt.Sprintf("Satellite not visible in the selected %g minute window.", win.Duration.Minutes()),
			Start:    start,
			Duration: win.Duration,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sampling trajectory: %w", err)
	}

	wire := p.codec.Encode(traj)

	p.logger.Info("trajectory calculated",
		"catalog_number", catalog,
		"samples", len(traj),
		"start", start.UTC().Format(time.RFC3339),
		"window_minutes", win.Duration.Minutes(),
	)

	return &Outcome{
		Visible:  true,
		Wire:     wire,
		Message:  fmt.Sprintf("Calculated %d points over %g minutes.", len(traj), win.Duration.Minutes()),
		Samples:  len(traj),
		Start:    start,
		Duration: win.Duration,
	}, nil
}
