// Package cache stores finished OCR outputs on disk, keyed by content
// fingerprint, so resubmitted files skip the engine entirely.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
)

const dirPerm = 0o755

// Store is a flat directory of cache entries. Admissions are atomic
// (temp file in the same directory, then rename), so concurrent readers
// observe either the previous entry or the new one, never a partial file.
type Store struct {
	root          string
	maxAge        time.Duration
	maxTotalBytes int64
	log           *logrus.Logger
}

// New creates the cache directory if needed and returns a store enforcing
// the given budgets.
func New(root string, maxAge time.Duration, maxTotalBytes int64, log *logrus.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is empty")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create cache root %s: %w", root, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		root:          root,
		maxAge:        maxAge,
		maxTotalBytes: maxTotalBytes,
		log:           log,
	}, nil
}

// Root returns the cache directory.
func (s *Store) Root() string { return s.root }

// Key derives the on-disk entry name. The original basename participates in
// the key, so identical content submitted under two names occupies two
// entries; that keeps the entry self-describing at the cost of a duplicate.
func Key(fp, name string) string {
	return fp + "_" + filepath.Base(name)
}

// Lookup returns the path of a previously admitted entry, or false when the
// fingerprint/name pair has never been admitted (or has been evicted). A
// lookup racing an eviction reports a miss rather than a dangling path.
func (s *Store) Lookup(fp, name string) (string, bool) {
	path := filepath.Join(s.root, Key(fp, name))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Admit copies src into the cache under the derived key. Concurrent admits
// of the same key are allowed; the last rename wins.
func (s *Store) Admit(fp, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cache admit open %s: %w", src, err)
	}
	defer f.Close()

	dst := filepath.Join(s.root, Key(fp, name))
	if err := atomic.WriteFile(dst, f); err != nil {
		return fmt.Errorf("cache admit %s: %w", filepath.Base(dst), err)
	}
	return nil
}

type entryInfo struct {
	path    string
	size    int64
	modTime time.Time
}

func (s *Store) list() ([]entryInfo, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read cache root %s: %w", s.root, err)
	}

	entries := make([]entryInfo, 0, len(dirents))
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Entry evicted or admitted-over while listing; skip.
			continue
		}
		entries = append(entries, entryInfo{
			path:    filepath.Join(s.root, d.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return entries, nil
}

// Evict enforces the age budget and then the total-size budget. Entries
// older than maxAge are removed first; if the remainder still exceeds
// maxTotalBytes, the largest entries go until the store fits. Individual
// removal failures are logged and skipped, never fatal.
func (s *Store) Evict(now time.Time) (removed int, freed int64, err error) {
	entries, err := s.list()
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, e := range entries {
		total += e.size
	}

	cutoff := now.Add(-s.maxAge)
	kept := entries[:0]
	for _, e := range entries {
		if e.modTime.Before(cutoff) {
			if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.log.WithError(rmErr).Warnf("Failed to remove expired cache entry %s", filepath.Base(e.path))
				kept = append(kept, e)
				continue
			}
			removed++
			freed += e.size
			total -= e.size
			continue
		}
		kept = append(kept, e)
	}

	if total > s.maxTotalBytes {
		// Largest first until the store fits the budget.
		sort.Slice(kept, func(i, j int) bool { return kept[i].size > kept[j].size })
		for _, e := range kept {
			if total <= s.maxTotalBytes {
				break
			}
			if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.log.WithError(rmErr).Warnf("Failed to remove oversized cache entry %s", filepath.Base(e.path))
				continue
			}
			removed++
			freed += e.size
			total -= e.size
		}
	}

	return removed, freed, nil
}

// Clear deletes every entry, best effort. It returns how many entries were
// removed and never aborts on an individual failure.
func (s *Store) Clear() (int, error) {
	entries, err := s.list()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.WithError(rmErr).Errorf("Failed to delete cache entry %s", filepath.Base(e.path))
			continue
		}
		removed++
	}
	return removed, nil
}

// Stats reports the current entry count and aggregate size.
func (s *Store) Stats() (count int, totalBytes int64, err error) {
	entries, err := s.list()
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		totalBytes += e.size
	}
	return len(entries), totalBytes, nil
}
