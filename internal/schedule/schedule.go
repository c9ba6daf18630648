// Package schedule maintains a rolling pass prediction for the configured
// ground station. A background loop rebuilds the schedule when the TLE
// dataset changes or the refresh interval elapses. Readers get the latest
// snapshot through an atomic pointer and never wait on a build.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kilodelta8/StarTrack/internal/metrics"
	"github.com/kilodelta8/StarTrack/internal/passes"
	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// Config holds schedule configuration. The observer coordinates must have
// been validated by the caller.
type Config struct {
	Latitude     float64       // observer geodetic latitude, degrees
	Longitude    float64       // observer geodetic longitude, degrees
	AltitudeM    float64       // observer altitude, meters
	Horizon      time.Duration // prediction window (default 24h)
	Refresh      time.Duration // rebuild interval for an unchanged dataset (default 30m)
	MinElevation float64       // pass elevation cutoff, degrees
	MaxPasses    int           // per-satellite cap (default 10)
	Model        string        // propagation model name; empty selects the default
}

const (
	defaultHorizon   = 24 * time.Hour
	defaultRefresh   = 30 * time.Minute
	defaultMaxPasses = 10

	// checkInterval is how often the loop looks for a dataset change or
	// an aged-out snapshot.
	checkInterval = 30 * time.Second
)

// Observer echoes the ground station a snapshot was built for.
type Observer struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AltitudeM float64 `json:"altitude_m"`
}

// Snapshot is one complete schedule build. Immutable once published.
type Snapshot struct {
	BuiltAt          time.Time                `json:"built_at"`
	DatasetFetchedAt time.Time                `json:"dataset_fetched_at"`
	HorizonHours     float64                  `json:"horizon_hours"`
	MinElevation     float64                  `json:"min_elevation"`
	Observer         Observer                 `json:"observer"`
	TotalPasses      int                      `json:"total_passes"`
	Satellites       []passes.SatellitePasses `json:"satellites"`
}

// Schedule owns the background build loop and the published snapshot.
type Schedule struct {
	store   *tle.Store
	config  Config
	obs     transform.ObserverPosition
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
}

// New creates a Schedule. Zero Horizon, Refresh and MaxPasses get defaults;
// MinElevation zero is a legitimate horizon cutoff and is kept.
func New(store *tle.Store, cfg Config, logger *slog.Logger) *Schedule {
	if cfg.Horizon <= 0 {
		cfg.Horizon = defaultHorizon
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = defaultRefresh
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = defaultMaxPasses
	}
	return &Schedule{
		store:  store,
		config: cfg,
		obs:    transform.NewObserverPosition(cfg.Latitude, cfg.Longitude, cfg.AltitudeM),
		logger: logger,
	}
}

// Snapshot returns the latest published build, or nil before the first
// build completes.
func (s *Schedule) Snapshot() *Snapshot {
	return s.current.Load()
}

// Rebuild predicts passes over the horizon and publishes the result. The
// loop calls it internally; it is exported for startup warmup and tests.
func (s *Schedule) Rebuild(ctx context.Context) error {
	ds := s.store.Get()
	if ds == nil || len(ds.Satellites) == 0 {
		return errors.New("no TLE dataset loaded")
	}

	start := time.Now()
	results := passes.Predict(ctx, passes.Request{
		Observer:     s.obs,
		Satellites:   ds.Satellites,
		Model:        s.config.Model,
		Start:        start.UTC(),
		HorizonHours: s.config.Horizon.Hours(),
		MinElevation: s.config.MinElevation,
		MaxPasses:    s.config.MaxPasses,
	})
	if err := ctx.Err(); err != nil {
		metrics.ObserveScheduleBuild("error", time.Since(start).Seconds())
		return fmt.Errorf("schedule build cancelled: %w", err)
	}

	total := 0
	for i := range results {
		total += len(results[i].Passes)
	}

	s.current.Store(&Snapshot{
		BuiltAt:          start.UTC(),
		DatasetFetchedAt: ds.FetchedAt,
		HorizonHours:     s.config.Horizon.Hours(),
		MinElevation:     s.config.MinElevation,
		Observer: Observer{
			Latitude:  s.config.Latitude,
			Longitude: s.config.Longitude,
			AltitudeM: s.config.AltitudeM,
		},
		TotalPasses: total,
		Satellites:  results,
	})

	duration := time.Since(start)
	metrics.ObserveScheduleBuild("ok", duration.Seconds())
	metrics.SetSchedulePasses(total)
	s.logger.Info("pass schedule rebuilt",
		"satellites", len(results),
		"passes", total,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}
