package previewcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plane builds a ChannelPlane of n pixels (4n bytes).
func plane(label string, n int) ChannelPlane {
	return ChannelPlane{Label: label, Width: n, Height: 1, Pixels: make([]float32, n)}
}

func entryOfBytes(n int64) *Entry {
	return &Entry{Planes: []ChannelPlane{plane("L", int(n/4))}}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(ttl time.Duration, maxEntries int, maxBytes int64) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)}
	return New(ttl, maxEntries, maxBytes, WithClock(clock.now)), clock
}

func TestKeyDomainsNeverCollide(t *testing.T) {
	paths := []string{"r.fits", "g.fits", "b.fits"}

	rgb := RGBKey(paths[0], paths[1], paths[2], 1_000_000)
	chn := ChannelKey(paths, 1_000_000)
	assert.NotEqual(t, rgb, chn, "rgb and n-channel keys with identical paths must differ")

	assert.Len(t, rgb, 64)
	assert.Len(t, chn, 64)
}

func TestRGBKeyIsOrderSensitive(t *testing.T) {
	a := RGBKey("r.fits", "g.fits", "b.fits", 1_000_000)
	b := RGBKey("b.fits", "g.fits", "r.fits", 1_000_000)
	assert.NotEqual(t, a, b, "rgb channel assignment is positional")
}

func TestChannelKeyIsOrderInsensitive(t *testing.T) {
	a := ChannelKey([]string{"f090w.fits", "f200w.fits"}, 1_000_000)
	b := ChannelKey([]string{"f200w.fits", "f090w.fits"}, 1_000_000)
	assert.Equal(t, a, b, "n-channel keys sort their inputs")
}

func TestKeyDependsOnBudgetNotStretch(t *testing.T) {
	paths := []string{"r.fits", "g.fits", "b.fits"}

	a := ChannelKey(paths, 1_000_000)
	b := ChannelKey(paths, 1_000_000)
	c := ChannelKey(paths, 2_000_000)

	// Same paths + same budget: hit. Different budget: miss.
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCachePutGet(t *testing.T) {
	cache, _ := newTestCache(10*time.Minute, 3, 1<<20)

	key := RGBKey("r.fits", "g.fits", "b.fits", 1_000_000)
	entry := &Entry{Planes: []ChannelPlane{plane("R", 100), plane("G", 100), plane("B", 100)}}
	require.NoError(t, cache.Put(key, entry))

	got := cache.Get(key)
	require.NotNil(t, got)
	assert.Same(t, entry, got, "the cache returns the stored entry, not a copy")
	assert.Equal(t, int64(1200), cache.Bytes())

	assert.Nil(t, cache.Get("unknown"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, clock := newTestCache(10*time.Minute, 3, 1<<20)

	key := ChannelKey([]string{"a.fits"}, 1_000_000)
	require.NoError(t, cache.Put(key, entryOfBytes(400)))

	clock.advance(9 * time.Minute)
	assert.NotNil(t, cache.Get(key))

	clock.advance(2 * time.Minute)
	assert.Nil(t, cache.Get(key), "expired entries are evicted lazily on read")
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(0), cache.Bytes())
}

func TestCacheLRUByteEviction(t *testing.T) {
	cache, clock := newTestCache(time.Hour, 10, 1000)

	require.NoError(t, cache.Put("a", entryOfBytes(400)))
	clock.advance(time.Second)
	require.NoError(t, cache.Put("b", entryOfBytes(400)))
	clock.advance(time.Second)

	// Touch a so b becomes the LRU victim
	require.NotNil(t, cache.Get("a"))
	clock.advance(time.Second)

	require.NoError(t, cache.Put("c", entryOfBytes(400)))

	assert.NotNil(t, cache.Get("a"))
	assert.Nil(t, cache.Get("b"), "least-recently-used entry is evicted")
	assert.NotNil(t, cache.Get("c"))
	assert.LessOrEqual(t, cache.Bytes(), int64(1000))
}

func TestCacheEntryCountCap(t *testing.T) {
	cache, clock := newTestCache(time.Hour, 3, 1<<20)

	for i := 0; i < 3; i++ {
		require.NoError(t, cache.Put(fmt.Sprintf("k%d", i), entryOfBytes(100)))
		clock.advance(time.Second)
	}
	require.Equal(t, 3, cache.Len())

	require.NoError(t, cache.Put("k3", entryOfBytes(100)))
	assert.Equal(t, 3, cache.Len(), "entry count never exceeds the cap")
	assert.Nil(t, cache.Get("k0"), "oldest entry evicted at the cap")
	assert.NotNil(t, cache.Get("k3"))
}

func TestCacheOversizedEntryRejected(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 3, 1000)

	err := cache.Put("huge", entryOfBytes(4000))
	assert.ErrorIs(t, err, ErrEntryTooLarge)
	assert.Equal(t, 0, cache.Len())
}

func TestCachePutReplacesExistingKey(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 3, 1<<20)

	key := ChannelKey([]string{"a.fits"}, 1_000_000)
	require.NoError(t, cache.Put(key, entryOfBytes(400)))
	replacement := entryOfBytes(800)
	require.NoError(t, cache.Put(key, replacement))

	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, int64(800), cache.Bytes())
	assert.Same(t, replacement, cache.Get(key))
}

func TestCacheMissPopulateHitSequence(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 10, 1<<20)
	paths := []string{"r.fits", "g.fits", "b.fits"}

	// (A) miss + populate
	keyA := ChannelKey(paths, 1_000_000)
	require.Nil(t, cache.Get(keyA))
	require.NoError(t, cache.Put(keyA, entryOfBytes(400)))

	// (B) same paths, different stretch: stretch is not part of the key
	keyB := ChannelKey(paths, 1_000_000)
	assert.NotNil(t, cache.Get(keyB))

	// (C) same paths, different budget: a distinct entry
	keyC := ChannelKey(paths, 2_000_000)
	require.Nil(t, cache.Get(keyC))
	require.NoError(t, cache.Put(keyC, entryOfBytes(400)))

	assert.Equal(t, 2, cache.Len())
}
