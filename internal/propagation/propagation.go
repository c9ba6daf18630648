// Package propagation turns orbital elements into TEME state vectors.
//
// Two models are available: SGP4 (the standard model for TLE data, via the
// go-satellite library) and a self-contained Kepler two-body model with J2
// secular corrections. SGP4 is the default; the Kepler model exists for
// environments that want propagation with no external model state and as an
// independent cross-check in tests.
package propagation

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// Propagator produces the TEME state of one satellite at an instant.
// Implementations are safe for concurrent use after construction.
type Propagator interface {
	StateAt(t time.Time) (transform.StateVector, error)
}

// Model names accepted by New.
const (
	ModelSGP4   = "sgp4"
	ModelKepler = "kepler"
)

// New builds a propagator for el using the named model. An empty name
// selects SGP4.
func New(model string, el *tle.OrbitalElements) (Propagator, error) {
	switch model {
	case "", ModelSGP4:
		return NewSGP4(el.Line1, el.Line2, el.CatalogNumber)
	case ModelKepler:
		return NewKepler(el), nil
	default:
		return nil, fmt.Errorf("unknown propagation model %q", model)
	}
}

// generation holds initialized propagators for one dataset. Immutable after
// construction; safe for concurrent reads.
type generation struct {
	fetchedAt time.Time
	props     map[int]Propagator
}

// Cache keeps initialized propagators for the current dataset, keyed by
// catalog number, so repeated requests do not pay model initialization per
// satellite. The cache rebuilds itself when a new dataset is swapped in.
type Cache struct {
	model  string
	logger *slog.Logger
	cur    atomic.Pointer[generation]
	mu     sync.Mutex // serializes rebuilds
}

// NewCache creates a Cache building propagators with the named model.
func NewCache(model string, logger *slog.Logger) *Cache {
	if model == "" {
		model = ModelSGP4
	}
	return &Cache{model: model, logger: logger}
}

// For returns the propagators for every satellite in ds. The map is rebuilt
// only when ds differs from the cached generation (double-checked locking);
// satellites whose model fails to initialize are skipped with a warning.
func (c *Cache) For(ds *tle.Dataset) map[int]Propagator {
	if g := c.cur.Load(); g != nil && g.fetchedAt.Equal(ds.FetchedAt) {
		return g.props
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if g := c.cur.Load(); g != nil && g.fetchedAt.Equal(ds.FetchedAt) {
		return g.props
	}

	props := make(map[int]Propagator, len(ds.Satellites))
	var skipped int
	for i := range ds.Satellites {
		el := &ds.Satellites[i]
		if _, ok := props[el.CatalogNumber]; ok {
			continue
		}
		prop, err := New(c.model, el)
		if err != nil {
			c.logger.Warn("propagator init failed", "catalog_number", el.CatalogNumber, "error", err)
			skipped++
			continue
		}
		props[el.CatalogNumber] = prop
	}

	c.logger.Info("propagator cache rebuilt",
		"model", c.model,
		"cached", len(props),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	c.cur.Store(&generation{fetchedAt: ds.FetchedAt, props: props})
	return props
}
