// Package tempcache provides a byte-budget bound local file cache used to
// materialize remote (S3) objects. Files are stored under the cache
// directory with their storage-key structure preserved, so a key
// "obs/file.fits" lives at "<dir>/obs/file.fits".
//
// Eviction is least-recently-accessed first. The index lock is held only
// for bookkeeping; file I/O happens outside it, so concurrent populates of
// the same key are tolerated and resolve to a single entry.
package tempcache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
)

// Metrics is implemented by the metrics package. A nil Metrics disables
// instrumentation with zero overhead.
type Metrics interface {
	// Hit records a cache hit
	Hit()
	// Miss records a cache miss
	Miss()
	// Evicted records evicted files and their total bytes
	Evicted(files int, bytes int64)
	// SetSize records the current cache size in bytes
	SetSize(bytes int64)
}

// entry tracks one cached file.
type entry struct {
	size  int64
	atime time.Time
}

// Cache is a local file cache bounded by a byte budget.
type Cache struct {
	dir      string
	maxBytes int64
	now      func() time.Time
	metrics  Metrics

	mu         sync.Mutex
	entries    map[string]*entry
	totalBytes int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics attaches cache metrics.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache rooted at dir with the given byte budget. Files
// already present under dir (from a previous run) are indexed with their
// modification time as the initial access time, then the budget is
// enforced.
func New(dir string, maxBytes int64, opts ...Option) (*Cache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache byte budget must be positive, got %d", maxBytes)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.rebuild(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	victims := c.evictLocked(0)
	c.mu.Unlock()
	c.removeFiles(victims)

	return c, nil
}

// rebuild scans the cache directory and indexes surviving files.
func (c *Cache) rebuild() error {
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // raced with deletion
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		c.entries[key] = &entry{size: info.Size(), atime: info.ModTime()}
		c.totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}
	return nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns the local path for key if cached, marking it recently used.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		e.atime = c.now()
	}
	c.mu.Unlock()

	if !ok {
		if c.metrics != nil {
			c.metrics.Miss()
		}
		return "", false
	}
	if c.metrics != nil {
		c.metrics.Hit()
	}
	return c.path(key), true
}

// Put moves the file at srcPath into the cache under key and returns the
// cached path. If another goroutine populated the key first, srcPath is
// discarded and the existing entry wins.
func (c *Cache) Put(key string, srcPath string) (string, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat source file: %w", err)
	}
	size := info.Size()

	if size > c.maxBytes {
		os.Remove(srcPath)
		return "", fmt.Errorf("file of %d bytes exceeds cache budget of %d", size, c.maxBytes)
	}

	dst := c.path(key)

	c.mu.Lock()
	if _, exists := c.entries[key]; exists {
		c.mu.Unlock()
		// Racing populate: keep the established entry
		os.Remove(srcPath)
		return dst, nil
	}
	victims := c.evictLocked(size)
	c.entries[key] = &entry{size: size, atime: c.now()}
	c.totalBytes += size
	total := c.totalBytes
	c.mu.Unlock()

	c.removeFiles(victims)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		c.forget(key)
		return "", fmt.Errorf("failed to create cache subdirectory: %w", err)
	}
	if err := os.Rename(srcPath, dst); err != nil {
		c.forget(key)
		return "", fmt.Errorf("failed to move file into cache: %w", err)
	}

	if c.metrics != nil {
		c.metrics.SetSize(total)
	}
	return dst, nil
}

// Remove drops key from the cache, deleting its file.
func (c *Cache) Remove(key string) {
	c.forget(key)
	c.removeFiles([]string{key})
}

// Size returns the current cache size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// path maps a storage key to its cache file path.
func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, filepath.FromSlash(key))
}

// forget removes key from the index without touching the file.
func (c *Cache) forget(key string) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.totalBytes -= e.size
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// evictLocked selects least-recently-accessed entries until incoming more
// bytes fit within the budget, removes them from the index, and returns
// their keys. Caller holds c.mu and deletes the files afterwards.
func (c *Cache) evictLocked(incoming int64) []string {
	if c.totalBytes+incoming <= c.maxBytes {
		return nil
	}

	type cand struct {
		key   string
		size  int64
		atime time.Time
	}
	cands := make([]cand, 0, len(c.entries))
	for k, e := range c.entries {
		cands = append(cands, cand{k, e.size, e.atime})
	}
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].atime.Before(cands[j].atime)
	})

	var victims []string
	var freed int64
	for _, v := range cands {
		if c.totalBytes+incoming <= c.maxBytes {
			break
		}
		delete(c.entries, v.key)
		c.totalBytes -= v.size
		freed += v.size
		victims = append(victims, v.key)
	}

	if len(victims) > 0 {
		logger.Debug("evicting cache entries",
			logger.KeyEvicted, len(victims),
			logger.KeyBytes, freed,
			logger.KeyCacheSize, c.totalBytes)
		if c.metrics != nil {
			c.metrics.Evicted(len(victims), freed)
		}
	}
	return victims
}

// removeFiles deletes the files for evicted keys and prunes empty
// directories left behind.
func (c *Cache) removeFiles(keys []string) {
	for _, key := range keys {
		path := c.path(key)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove evicted cache file",
				logger.KeyKey, key,
				logger.KeyError, err.Error())
			continue
		}

		dir := filepath.Dir(path)
		for dir != c.dir {
			if err := os.Remove(dir); err != nil {
				break // not empty or gone
			}
			dir = filepath.Dir(dir)
		}
	}
}
