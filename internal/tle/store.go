package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// indexedDataset pairs a dataset with a catalog-number index so lookups stay
// O(1) no matter how many satellites a group file carries.
type indexedDataset struct {
	ds    *Dataset
	byCat map[int]int
}

// Store publishes the current element dataset to concurrent readers.
// Readers never block; a refresh builds a fresh index and swaps it whole.
type Store struct {
	cur atomic.Pointer[indexedDataset]
	mu  sync.Mutex // one refresh at a time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	if idx := s.cur.Load(); idx != nil {
		return idx.ds
	}
	return nil
}

// Set atomically replaces the current dataset and rebuilds the lookup index.
func (s *Store) Set(ds *Dataset) {
	idx := &indexedDataset{ds: ds}
	if ds != nil {
		idx.byCat = make(map[int]int, len(ds.Satellites))
		for i, sat := range ds.Satellites {
			idx.byCat[sat.CatalogNumber] = i
		}
	}
	s.cur.Store(idx)
}

// FindByCatalog returns a copy of the elements for the given catalog number,
// or nil when no dataset is loaded or the satellite is not in it.
func (s *Store) FindByCatalog(num int) *OrbitalElements {
	idx := s.cur.Load()
	if idx == nil || idx.ds == nil {
		return nil
	}
	i, ok := idx.byCat[num]
	if !ok {
		return nil
	}
	el := idx.ds.Satellites[i]
	return &el
}

// Count reports how many satellites the current dataset holds.
func (s *Store) Count() int {
	if ds := s.Get(); ds != nil {
		return len(ds.Satellites)
	}
	return 0
}

// AgeSeconds reports the dataset age in seconds, or -1 before the first load.
func (s *Store) AgeSeconds() float64 {
	ds := s.Get()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock serializes refreshes so concurrent fetch triggers do not interleave.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the refresh lock.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
