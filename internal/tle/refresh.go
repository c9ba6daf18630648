package tle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Refresh fetches the catalog, parses it, and publishes the resulting
// dataset to the store. Concurrent refreshes are serialized through the
// store's writer lock so two overlapping calls cannot interleave their
// fetch and publish steps.
//
// The on-disk snapshot is written best-effort: a snapshot failure is
// logged but does not fail the refresh. Returns the number of satellites
// in the published dataset.
func Refresh(ctx context.Context, f *Fetcher, c *Cache, store *Store, logger *slog.Logger) (int, error) {
	store.Lock()
	defer store.Unlock()

	data, err := f.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching catalog: %w", err)
	}

	sats, err := ParseCatalog(bytes.NewReader(data), logger)
	if err != nil {
		return 0, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(sats) == 0 {
		return 0, fmt.Errorf("catalog from %s contained no usable elements", f.SourceURL())
	}

	fetchedAt := time.Now()
	store.Set(NewDataset(f.SourceURL(), fetchedAt, sats))

	if c != nil {
		if err := c.Store(data, fetchedAt); err != nil {
			logger.Warn("TLE snapshot write failed", "error", err)
		}
	}

	logger.Info("TLE dataset refreshed", "source", f.SourceURL(), "satellites", len(sats))
	return len(sats), nil
}
