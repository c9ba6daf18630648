package tle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Snapshot filenames embed the fetch time so the newest catalog can be
// identified without reading file contents.
const (
	snapshotPrefix = "catalog-"
	snapshotSuffix = ".tle"
	snapshotStamp  = "20060102T150405Z"
)

// Cache keeps recent raw catalog snapshots on disk so the service can start
// with usable elements when the network source is down.
type Cache struct {
	dir  string
	keep int
}

// NewCache creates a Cache rooted at dir that retains the newest keep
// snapshots. keep values below 1 fall back to 3.
func NewCache(dir string, keep int) *Cache {
	if keep < 1 {
		keep = 3
	}
	return &Cache{dir: dir, keep: keep}
}

// Store writes data as a snapshot stamped with fetchedAt and removes
// snapshots beyond the retention count, oldest first.
func (c *Cache) Store(data []byte, fetchedAt time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	name := snapshotPrefix + fetchedAt.UTC().Format(snapshotStamp) + snapshotSuffix
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	names, err := c.snapshots()
	if err != nil {
		return err
	}
	for len(names) > c.keep {
		old := names[0]
		if err := os.Remove(filepath.Join(c.dir, old)); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", old, err)
		}
		names = names[1:]
	}
	return nil
}

// Latest returns the newest snapshot's contents and fetch time.
// A missing or empty cache directory reports os.ErrNotExist.
func (c *Cache) Latest() ([]byte, time.Time, error) {
	names, err := c.snapshots()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(names) == 0 {
		return nil, time.Time{}, fmt.Errorf("no catalog snapshots in %s: %w", c.dir, os.ErrNotExist)
	}

	newest := names[len(names)-1]
	stamp := strings.TrimSuffix(strings.TrimPrefix(newest, snapshotPrefix), snapshotSuffix)
	fetchedAt, err := time.Parse(snapshotStamp, stamp)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot %s has malformed timestamp: %w", newest, err)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, newest))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, fetchedAt, nil
}

// snapshots lists snapshot filenames sorted oldest first. The timestamp
// format sorts lexically, so plain string order is chronological order.
func (c *Cache) snapshots() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, snapshotSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
