package core

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webaudit/webaudit/utils"
)

// CacheStore is the contract the fetcher depends on. All operations are
// safe for concurrent callers.
type CacheStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Exists(key string) bool
}

// CacheEntry is the value-plus-deadline record moved between tiers.
type CacheEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e CacheEntry) expired() bool {
	return time.Now().After(e.ExpiresAt)
}

type cacheTier interface {
	get(key string) (CacheEntry, bool)
	set(key string, entry CacheEntry)
	delete(key string)
}

// CacheKey fingerprints a request identity from its method, normalized URL
// and the headers that affect the response.
func CacheKey(method, normalizedURL string, headers map[string]string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(normalizedURL))
	for _, k := range utils.SortedKeys(headers) {
		h.Write([]byte{'\n'})
		h.Write([]byte(k))
		h.Write([]byte{':'})
		h.Write([]byte(headers[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TieredCache looks entries up memory -> disk -> remote and promotes hits
// from lower tiers upward. Expiry is lazy: an expired entry is treated as a
// miss and dropped, it is never served past its TTL.
type TieredCache struct {
	tiers  []cacheTier
	logger *utils.Logger
}

// NewTieredCache builds the tier chain from configuration. Backend names:
// "memory", "disk", "redis". An unreachable redis backend degrades to the
// remaining tiers rather than failing.
func NewTieredCache(cfg *utils.Config, logger *utils.Logger) *TieredCache {
	tc := &TieredCache{logger: logger}

	for _, backend := range cfg.Cache.Backends {
		switch strings.ToLower(backend) {
		case "memory":
			tc.tiers = append(tc.tiers, newMemoryTier(cfg.Cache.MaxEntries))
		case "disk":
			dir := cfg.Cache.Dir
			if dir == "" {
				dir = filepath.Join(os.TempDir(), "webaudit-cache")
			}
			if tier, err := newDiskTier(dir); err == nil {
				tc.tiers = append(tc.tiers, tier)
			} else {
				logger.Warning("Disk cache disabled: %v", err)
			}
		case "redis":
			if tier := newRedisTier(cfg.Cache.RedisURL, logger); tier != nil {
				tc.tiers = append(tc.tiers, tier)
			}
		default:
			logger.Warning("Unknown cache backend %q ignored", backend)
		}
	}

	if len(tc.tiers) == 0 {
		tc.tiers = append(tc.tiers, newMemoryTier(cfg.Cache.MaxEntries))
	}

	return tc
}

func (tc *TieredCache) Get(key string) ([]byte, bool) {
	for i, tier := range tc.tiers {
		entry, ok := tier.get(key)
		if !ok {
			continue
		}
		if entry.expired() {
			tier.delete(key)
			continue
		}
		// Write-through on read: promote the hit into the faster tiers.
		for j := 0; j < i; j++ {
			tc.tiers[j].set(key, entry)
		}
		return entry.Value, true
	}
	return nil, false
}

func (tc *TieredCache) Set(key string, value []byte, ttl time.Duration) {
	entry := CacheEntry{Value: value, ExpiresAt: time.Now().Add(ttl)}
	for _, tier := range tc.tiers {
		tier.set(key, entry)
	}
}

func (tc *TieredCache) Delete(key string) {
	for _, tier := range tc.tiers {
		tier.delete(key)
	}
}

func (tc *TieredCache) Exists(key string) bool {
	_, ok := tc.Get(key)
	return ok
}

// memoryTier is a bounded LRU guarded by a single mutex.
type memoryTier struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
}

type memoryItem struct {
	key   string
	entry CacheEntry
}

func newMemoryTier(maxEntries int) *memoryTier {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &memoryTier{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (m *memoryTier) get(key string) (CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return CacheEntry{}, false
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*memoryItem).entry, true
}

func (m *memoryTier) set(key string, entry CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		elem.Value.(*memoryItem).entry = entry
		m.order.MoveToFront(elem)
		return
	}

	m.items[key] = m.order.PushFront(&memoryItem{key: key, entry: entry})

	for m.order.Len() > m.maxEntries {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryItem).key)
	}
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.order.Remove(elem)
		delete(m.items, key)
	}
}

// diskTier keeps one JSON file per entry under a private directory. Layout
// is opaque to callers; expiry is TTL-only (the tiered lookup discards
// expired entries on read).
type diskTier struct {
	dir string
	mu  sync.Mutex
}

func newDiskTier(dir string) (*diskTier, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &diskTier{dir: dir}, nil
}

func (d *diskTier) path(key string) string {
	return filepath.Join(d.dir, key+".cache")
}

func (d *diskTier) get(key string) (CacheEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		os.Remove(d.path(key))
		return CacheEntry{}, false
	}
	return entry, true
}

func (d *diskTier) set(key string, entry CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp := d.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return
	}
	os.Rename(tmp, d.path(key))
}

func (d *diskTier) delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	os.Remove(d.path(key))
}

// redisTier stores entries in a shared Redis instance so parallel scanners
// can reuse each other's fetches. Backend errors degrade to cache misses.
type redisTier struct {
	client *redis.Client
	logger *utils.Logger
}

const redisOpTimeout = 3 * time.Second

func newRedisTier(redisURL string, logger *utils.Logger) *redisTier {
	if redisURL == "" {
		logger.Warning("Redis cache backend requested but no redis_url configured")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warning("Failed to parse Redis URL: %v", err)
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Warning("Redis cache unreachable, tier disabled: %v", err)
		return nil
	}

	return &redisTier{client: client, logger: logger}
}

func redisKey(key string) string {
	return "webaudit:cache:" + key
}

func (r *redisTier) get(key string) (CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("Redis get failed for %s: %v", key, err)
		}
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false
	}
	return entry, true
}

func (r *redisTier) set(key string, entry CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		r.logger.Debug("Redis set failed for %s: %v", key, err)
	}
}

func (r *redisTier) delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	r.client.Del(ctx, redisKey(key))
}
