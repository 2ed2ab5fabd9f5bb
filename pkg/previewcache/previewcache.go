// Package previewcache memoizes the expensive load/downscale/reproject
// stage of the interactive preview path. Entries are keyed by a SHA-256
// fingerprint of the input channel keys plus the pixel budget, so
// stretch-only parameter changes hit the cache. Bounded by TTL, byte
// budget, and entry count; purely in-memory.
package previewcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
)

// ErrEntryTooLarge indicates a single entry exceeding the whole cache's
// byte budget.
var ErrEntryTooLarge = errors.New("previewcache: entry exceeds cache byte budget")

// ChannelPlane is one reprojected channel: a dense float32 pixel array
// with its grid dimensions. Callers must treat returned planes as
// read-only.
type ChannelPlane struct {
	Label  string
	Width  int
	Height int
	Pixels []float32
}

// footprint is the plane's in-memory size in bytes.
func (p *ChannelPlane) footprint() int64 {
	return int64(len(p.Pixels)) * 4
}

// Entry is one memoized reprojection result.
type Entry struct {
	Planes []ChannelPlane
}

// bytes sums the entry's plane footprints.
func (e *Entry) bytes() int64 {
	var total int64
	for i := range e.Planes {
		total += e.Planes[i].footprint()
	}
	return total
}

// rgbKeyDoc and channelKeyDoc are the canonical fingerprint documents.
// The domain prefix keeps an RGB request and an N-channel request with
// identical paths from ever colliding.
type rgbKeyDoc struct {
	Domain   string   `json:"domain"`
	Channels []string `json:"channels"`
	Budget   int64    `json:"input_budget"`
}

type channelKeyDoc struct {
	Domain   string   `json:"domain"`
	Channels []string `json:"channels"`
	Budget   int64    `json:"input_budget"`
}

// RGBKey fingerprints an ordered R/G/B request.
func RGBKey(r, g, b string, inputBudget int64) string {
	return fingerprint(rgbKeyDoc{
		Domain:   "rgb",
		Channels: []string{r, g, b},
		Budget:   inputBudget,
	})
}

// ChannelKey fingerprints an N-channel request. Channel keys are sorted
// so label order never changes the fingerprint.
func ChannelKey(channels []string, inputBudget int64) string {
	sorted := make([]string, len(channels))
	copy(sorted, channels)
	sort.Strings(sorted)
	return fingerprint(channelKeyDoc{
		Domain:   "chan",
		Channels: sorted,
		Budget:   inputBudget,
	})
}

// fingerprint hashes the canonical JSON form of the key document.
func fingerprint(doc any) string {
	data, err := json.Marshal(doc)
	if err != nil {
		// Key documents are plain structs; marshalling cannot fail
		panic(fmt.Sprintf("previewcache: failed to marshal key document: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metrics is the cache instrumentation hook. A nil Metrics disables
// instrumentation.
type Metrics interface {
	Hit()
	Miss()
	Evicted(entries int, bytes int64)
	SetSize(entries int, bytes int64)
}

// cacheEntry is the internal record with bookkeeping.
type cacheEntry struct {
	entry      *Entry
	bytes      int64
	insertedAt time.Time
	lastAccess time.Time
}

// Cache is the bounded reprojection-result cache. One lock guards all
// state; get and put each hold it briefly.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	maxBytes   int64
	metrics    Metrics
	now        func() time.Time

	mu         sync.Mutex
	entries    map[string]*cacheEntry
	totalBytes int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics attaches cache instrumentation.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache bounded by ttl, entry count, and total bytes.
func New(ttl time.Duration, maxEntries int, maxBytes int64, opts ...Option) *Cache {
	c := &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		now:        time.Now,
		entries:    make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key, or nil on miss. Expired entries are
// evicted lazily here.
func (c *Cache) Get(key string) *Entry {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ce, ok := c.entries[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.Miss()
		}
		return nil
	}
	if c.ttl > 0 && now.Sub(ce.insertedAt) > c.ttl {
		c.removeLocked(key, ce)
		if c.metrics != nil {
			c.metrics.Miss()
			c.metrics.Evicted(1, ce.bytes)
		}
		return nil
	}

	ce.lastAccess = now
	if c.metrics != nil {
		c.metrics.Hit()
	}
	return ce.entry
}

// Put inserts an entry, evicting expired then least-recently-used
// entries until the byte budget and entry cap hold. An entry larger than
// the whole budget is rejected with ErrEntryTooLarge. Put is idempotent:
// re-inserting a key replaces the old entry.
func (c *Cache) Put(key string, entry *Entry) error {
	size := entry.bytes()
	if c.maxBytes > 0 && size > c.maxBytes {
		return fmt.Errorf("%w: %d > %d", ErrEntryTooLarge, size, c.maxBytes)
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}

	evictedEntries, evictedBytes := c.expireLocked(now)

	// LRU-evict until the new entry fits both caps
	for (c.maxBytes > 0 && c.totalBytes+size > c.maxBytes) ||
		(c.maxEntries > 0 && len(c.entries) >= c.maxEntries) {
		victim, ce := c.oldestLocked()
		if victim == "" {
			break
		}
		c.removeLocked(victim, ce)
		evictedEntries++
		evictedBytes += ce.bytes
	}

	c.entries[key] = &cacheEntry{
		entry:      entry,
		bytes:      size,
		insertedAt: now,
		lastAccess: now,
	}
	c.totalBytes += size

	if evictedEntries > 0 {
		logger.Debug("preview cache evicted entries",
			logger.KeyEvicted, evictedEntries,
			logger.KeyBytes, evictedBytes)
		if c.metrics != nil {
			c.metrics.Evicted(evictedEntries, evictedBytes)
		}
	}
	if c.metrics != nil {
		c.metrics.SetSize(len(c.entries), c.totalBytes)
	}
	return nil
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the current total footprint.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// expireLocked removes entries past their TTL. Caller holds c.mu.
func (c *Cache) expireLocked(now time.Time) (int, int64) {
	if c.ttl <= 0 {
		return 0, 0
	}
	entries, bytes := 0, int64(0)
	for key, ce := range c.entries {
		if now.Sub(ce.insertedAt) > c.ttl {
			c.removeLocked(key, ce)
			entries++
			bytes += ce.bytes
		}
	}
	return entries, bytes
}

// oldestLocked finds the least-recently-accessed entry. Caller holds
// c.mu.
func (c *Cache) oldestLocked() (string, *cacheEntry) {
	var (
		oldestKey string
		oldest    *cacheEntry
	)
	for key, ce := range c.entries {
		if oldest == nil || ce.lastAccess.Before(oldest.lastAccess) {
			oldestKey = key
			oldest = ce
		}
	}
	return oldestKey, oldest
}

// removeLocked deletes one entry and adjusts the byte total. Caller
// holds c.mu.
func (c *Cache) removeLocked(key string, ce *cacheEntry) {
	delete(c.entries, key)
	c.totalBytes -= ce.bytes
}
