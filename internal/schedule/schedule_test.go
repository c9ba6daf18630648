package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kilodelta8/StarTrack/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// Circular equatorial orbit at roughly ISS altitude. An observer on the
// equator sees it pass overhead once per revolution, so pass counts over a
// multi-hour horizon are predictable.
const (
	eqLine1 = "1 90001U 25001A   25305.50000000  .00000000  00000+0  00000+0 0  9996"
	eqLine2 = "2 90001   0.0000   0.0000 0000000   0.0000   0.0000 15.55740824    14"
)

func equatorialStore(t *testing.T) *tle.Store {
	t.Helper()
	el, err := tle.Parse(eqLine1, eqLine2)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	el.Name = "EQSAT"
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), []tle.OrbitalElements{*el}))
	return store
}

func equatorialConfig() Config {
	return Config{
		Latitude:     0,
		Longitude:    0,
		AltitudeM:    0,
		Horizon:      6 * time.Hour,
		Refresh:      30 * time.Minute,
		MinElevation: 10,
		MaxPasses:    10,
		Model:        "kepler",
	}
}

func TestSnapshotNilBeforeFirstBuild(t *testing.T) {
	s := New(equatorialStore(t), equatorialConfig(), testLogger)
	if s.Snapshot() != nil {
		t.Fatal("snapshot should be nil before the first build")
	}
}

func TestRebuildPublishesSnapshot(t *testing.T) {
	store := equatorialStore(t)
	s := New(store, equatorialConfig(), testLogger)

	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	snap := s.Snapshot()
	if snap == nil {
		t.Fatal("no snapshot after successful rebuild")
	}
	if len(snap.Satellites) != 1 {
		t.Fatalf("satellites: got %d, want 1", len(snap.Satellites))
	}
	sat := snap.Satellites[0]
	if sat.CatalogNumber != 90001 {
		t.Errorf("catalog: got %d, want 90001", sat.CatalogNumber)
	}
	if sat.Error != "" {
		t.Fatalf("unexpected per-satellite error: %s", sat.Error)
	}

	// One overhead pass per ~92.6 minute revolution; a 6 hour horizon
	// holds at least three.
	if len(sat.Passes) < 3 {
		t.Errorf("passes in 6h: got %d, want >= 3", len(sat.Passes))
	}
	if snap.TotalPasses != len(sat.Passes) {
		t.Errorf("total passes = %d, want %d", snap.TotalPasses, len(sat.Passes))
	}
	if snap.HorizonHours != 6 {
		t.Errorf("horizon hours = %g, want 6", snap.HorizonHours)
	}
	if snap.Observer.Latitude != 0 || snap.Observer.Longitude != 0 {
		t.Errorf("observer echo = %+v, want equator", snap.Observer)
	}

	ds := store.Get()
	if !snap.DatasetFetchedAt.Equal(ds.FetchedAt) {
		t.Error("snapshot does not record the dataset it was built from")
	}
}

func TestRebuildRespectsMaxPasses(t *testing.T) {
	cfg := equatorialConfig()
	cfg.Horizon = 24 * time.Hour
	cfg.MaxPasses = 2
	s := New(equatorialStore(t), cfg, testLogger)

	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got := len(s.Snapshot().Satellites[0].Passes); got != 2 {
		t.Errorf("passes: got %d, want MaxPasses cap of 2", got)
	}
}

func TestRebuildEmptyStore(t *testing.T) {
	s := New(tle.NewStore(), equatorialConfig(), testLogger)
	if err := s.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error for empty store")
	}
	if s.Snapshot() != nil {
		t.Error("snapshot published despite failed rebuild")
	}
}

func TestRebuildCancelled(t *testing.T) {
	s := New(equatorialStore(t), equatorialConfig(), testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Rebuild(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if s.Snapshot() != nil {
		t.Error("cancelled rebuild must not publish a snapshot")
	}
}

func TestTickSkipsFreshSnapshot(t *testing.T) {
	s := New(equatorialStore(t), equatorialConfig(), testLogger)
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	before := s.Snapshot()

	s.tick(context.Background())

	if s.Snapshot() != before {
		t.Error("tick rebuilt a fresh snapshot for an unchanged dataset")
	}
}

func TestTickRebuildsOnDatasetChange(t *testing.T) {
	store := equatorialStore(t)
	s := New(store, equatorialConfig(), testLogger)
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	before := s.Snapshot()

	// Swap in a dataset with a newer fetch time.
	el, err := tle.Parse(eqLine1, eqLine2)
	if err != nil {
		t.Fatal(err)
	}
	store.Set(tle.NewDataset("test", time.Now().Add(time.Minute), []tle.OrbitalElements{*el}))

	s.tick(context.Background())

	after := s.Snapshot()
	if after == before {
		t.Fatal("tick did not rebuild after a dataset swap")
	}
	if !after.DatasetFetchedAt.Equal(store.Get().FetchedAt) {
		t.Error("rebuilt snapshot does not track the new dataset")
	}
}

func TestTickRebuildsAgedSnapshot(t *testing.T) {
	store := equatorialStore(t)
	s := New(store, equatorialConfig(), testLogger)
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// Age the published snapshot past the refresh interval.
	old := *s.Snapshot()
	old.BuiltAt = time.Now().Add(-time.Hour).UTC()
	s.current.Store(&old)

	s.tick(context.Background())

	if age := time.Since(s.Snapshot().BuiltAt); age > time.Minute {
		t.Errorf("snapshot still %v old after tick, want rebuilt", age)
	}
}

func TestStartWaitsForDataAndStops(t *testing.T) {
	store := tle.NewStore()
	s := New(store, equatorialConfig(), testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// No dataset yet: nothing should be published.
	time.Sleep(200 * time.Millisecond)
	if s.Snapshot() != nil {
		t.Error("snapshot published before any TLE data existed")
	}

	el, err := tle.Parse(eqLine1, eqLine2)
	if err != nil {
		t.Fatal(err)
	}
	store.Set(tle.NewDataset("test", time.Now(), []tle.OrbitalElements{*el}))

	deadline := time.After(10 * time.Second)
	for s.Snapshot() == nil {
		select {
		case <-deadline:
			t.Fatal("no snapshot within 10s of data arriving")
		case <-time.After(100 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
