package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webaudit/webaudit/utils"
)

func testCacheConfig(t *testing.T, backends ...string) *utils.Config {
	t.Helper()
	cfg := utils.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Backends = backends
	cfg.Cache.Dir = t.TempDir()
	return &cfg
}

func TestCacheKeyIgnoresHeaderOrder(t *testing.T) {
	a := CacheKey("GET", "https://example.com/", map[string]string{"A": "1", "B": "2"})
	b := CacheKey("GET", "https://example.com/", map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, a, b)
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	base := CacheKey("GET", "https://example.com/", nil)
	assert.NotEqual(t, base, CacheKey("POST", "https://example.com/", nil))
	assert.NotEqual(t, base, CacheKey("GET", "https://example.com/other", nil))
	assert.NotEqual(t, base, CacheKey("GET", "https://example.com/", map[string]string{"Accept": "json"}))
}

func TestTieredCacheRoundTrip(t *testing.T) {
	cache := NewTieredCache(testCacheConfig(t, "memory", "disk"), utils.NewLogger(false))

	cache.Set("k1", []byte("hello"), time.Minute)

	got, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)
	assert.True(t, cache.Exists("k1"))

	cache.Delete("k1")
	_, ok = cache.Get("k1")
	assert.False(t, ok)
}

func TestTieredCacheTTLExpiry(t *testing.T) {
	cache := NewTieredCache(testCacheConfig(t, "memory"), utils.NewLogger(false))

	cache.Set("k1", []byte("v"), 30*time.Millisecond)

	_, ok := cache.Get("k1")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = cache.Get("k1")
	assert.False(t, ok, "entry must never be served past its TTL")
}

func TestTieredCachePromotion(t *testing.T) {
	cache := NewTieredCache(testCacheConfig(t, "memory", "disk"), utils.NewLogger(false))
	require.Len(t, cache.tiers, 2)

	// Seed the disk tier only, simulating a restart that emptied memory.
	entry := CacheEntry{Value: []byte("persisted"), ExpiresAt: time.Now().Add(time.Minute)}
	cache.tiers[1].set("k1", entry)

	_, ok := cache.tiers[0].get("k1")
	require.False(t, ok)

	got, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)

	// The hit is promoted into the memory tier.
	promoted, ok := cache.tiers[0].get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), promoted.Value)
}

func TestDiskTierSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	tier, err := newDiskTier(dir)
	require.NoError(t, err)

	tier.set("k1", CacheEntry{Value: []byte("v"), ExpiresAt: time.Now().Add(time.Minute)})

	reopened, err := newDiskTier(dir)
	require.NoError(t, err)
	entry, ok := reopened.get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), entry.Value)
}

func TestMemoryTierLRUEviction(t *testing.T) {
	tier := newMemoryTier(3)
	expires := time.Now().Add(time.Minute)

	for i := 0; i < 3; i++ {
		tier.set(fmt.Sprintf("k%d", i), CacheEntry{Value: []byte{byte(i)}, ExpiresAt: expires})
	}

	// Touch k0 so k1 becomes the least recently used.
	_, ok := tier.get("k0")
	require.True(t, ok)

	tier.set("k3", CacheEntry{Value: []byte{3}, ExpiresAt: expires})

	_, ok = tier.get("k1")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, key := range []string{"k0", "k2", "k3"} {
		_, ok := tier.get(key)
		assert.True(t, ok, "entry %s should survive", key)
	}
}

func TestTieredCacheUnknownBackendFallsBack(t *testing.T) {
	cache := NewTieredCache(testCacheConfig(t, "bogus"), utils.NewLogger(false))
	require.Len(t, cache.tiers, 1)

	cache.Set("k", []byte("v"), time.Minute)
	_, ok := cache.Get("k")
	assert.True(t, ok)
}
