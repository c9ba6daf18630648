package schedule

import (
	"context"
	"time"
)

// Start runs the build loop: wait for a TLE dataset, build once, then
// rebuild whenever the dataset changes or the snapshot ages past the
// refresh interval. Blocks until ctx is cancelled.
func (s *Schedule) Start(ctx context.Context) {
	if !s.waitForTLEData(ctx) {
		return
	}

	if err := s.Rebuild(ctx); err != nil {
		s.logger.Warn("initial schedule build failed", "error", err)
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule loop stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// waitForTLEData blocks until a dataset is available in the store, checking
// every second. Returns false if ctx is cancelled first.
func (s *Schedule) waitForTLEData(ctx context.Context) bool {
	if s.store.Get() != nil {
		return true
	}

	s.logger.Info("schedule waiting for TLE data")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.store.Get() != nil {
				return true
			}
		}
	}
}

// tick rebuilds when the dataset was swapped since the last build or the
// snapshot has aged out.
func (s *Schedule) tick(ctx context.Context) {
	ds := s.store.Get()
	if ds == nil {
		return
	}

	snap := s.current.Load()
	if snap != nil && ds.FetchedAt.Equal(snap.DatasetFetchedAt) && time.Since(snap.BuiltAt) < s.config.Refresh {
		return
	}

	if snap != nil && !ds.FetchedAt.Equal(snap.DatasetFetchedAt) {
		s.logger.Info("TLE dataset changed, rebuilding schedule",
			"old_fetched_at", snap.DatasetFetchedAt.UTC().Format(time.RFC3339),
			"new_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		)
	}

	if err := s.Rebuild(ctx); err != nil {
		s.logger.Warn("schedule rebuild failed", "error", err)
	}
}
