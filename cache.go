package portalgate

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// cacheEntry is a tier-1 entry. An entry is valid iff now-createdAt < ttl;
// expired entries are treated as absent and purged on read.
type cacheEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
	seq       uint64
}

func (e *cacheEntry) validAt(now time.Time) bool {
	return now.Sub(e.createdAt) < e.ttl
}

// storedEntry is the msgpack envelope written to the durable tier. Carrying
// createdAt and ttl keeps the expiry law intact across process restarts even
// when the backend's own TTL drifts.
type storedEntry struct {
	Value     []byte        `msgpack:"v"`
	CreatedAt time.Time     `msgpack:"c"`
	TTL       time.Duration `msgpack:"t"`
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	VolatileSize int
}

// orderRef records insertion order for eviction. A ref is stale when its seq
// no longer matches the live entry (the key was overwritten or deleted).
type orderRef struct {
	key string
	seq uint64
}

// CacheStore is the two-tier result cache: a capacity-bounded volatile tier
// plus an optional durable tier. When the volatile tier overflows, the oldest
// 20% of entries by insertion order are evicted; recency of access is
// deliberately not tracked. Safe for concurrent use.
type CacheStore struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []orderRef
	seq     uint64

	capacity int
	durable  DurableStore
	logger   Logger
	metrics  *MetricsCollector

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewCacheStore creates a cache with the given volatile capacity. durable may
// be nil, in which case durable strategies degrade to volatile-only behavior.
func NewCacheStore(capacity int, durable DurableStore) *CacheStore {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &CacheStore{
		entries:  make(map[string]*cacheEntry, capacity),
		capacity: capacity,
		durable:  durable,
	}
}

// Get returns the cached value for key, or absent. A stale entry counts as a
// miss and is deleted from both tiers.
func (c *CacheStore) Get(ctx context.Context, key string, strategy CacheStrategy) ([]byte, bool) {
	if strategy == CacheNone {
		return nil, false
	}
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.validAt(now) {
			c.hits++
			c.mu.Unlock()
			return e.value, true
		}
		delete(c.entries, key)
		c.misses++
		c.mu.Unlock()
		c.durableDelete(ctx, key)
		return nil, false
	}
	c.mu.Unlock()

	if strategy.durable() && c.durable != nil {
		if value, ok := c.durableGet(ctx, key, now); ok {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return value, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Set stores value under key. Durable strategies write through to tier 2;
// durable write failures are logged and swallowed so the volatile tier keeps
// serving.
func (c *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, strategy CacheStrategy) {
	if strategy == CacheNone {
		return
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	now := time.Now()

	c.mu.Lock()
	c.insertLocked(key, value, now, ttl)
	c.mu.Unlock()

	if strategy.durable() && c.durable != nil {
		data, err := msgpack.Marshal(storedEntry{Value: value, CreatedAt: now, TTL: ttl})
		if err == nil {
			err = c.durable.Set(ctx, key, data, ttl)
		}
		if err != nil && c.logger != nil {
			c.logger.Warn("durable cache write failed", "key", key, "error", err)
		}
	}
	c.metrics.RecordCacheSize("volatile", c.volatileSize())
}

// Discard removes an entry the caller could not decode. The lookup already
// counted a hit, so the counters are reclassified: that hit becomes a miss.
func (c *CacheStore) Discard(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	if c.hits > 0 {
		c.hits--
	}
	c.misses++
	c.mu.Unlock()
	c.durableDelete(ctx, key)
}

// Delete removes key from both tiers.
func (c *CacheStore) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.durableDelete(ctx, key)
}

// Clear removes every entry from both tiers.
func (c *CacheStore) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry, c.capacity)
	c.order = c.order[:0]
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.Clear(ctx); err != nil && c.logger != nil {
			c.logger.Warn("durable cache clear failed", "error", err)
		}
	}
	c.metrics.RecordCacheSize("volatile", 0)
}

// Stats returns cumulative counters and the current volatile size.
func (c *CacheStore) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		VolatileSize: len(c.entries),
	}
}

func (c *CacheStore) volatileSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insertLocked stores the entry and evicts the oldest 20% of entries when the
// tier exceeds capacity.
func (c *CacheStore) insertLocked(key string, value []byte, createdAt time.Time, ttl time.Duration) {
	c.seq++
	c.entries[key] = &cacheEntry{value: value, createdAt: createdAt, ttl: ttl, seq: c.seq}
	c.order = append(c.order, orderRef{key: key, seq: c.seq})

	if len(c.entries) <= c.capacity {
		return
	}

	evict := (c.capacity + 4) / 5
	if evict < 1 {
		evict = 1
	}
	evicted := 0
	i := 0
	for ; i < len(c.order) && evicted < evict; i++ {
		ref := c.order[i]
		e, ok := c.entries[ref.key]
		if !ok || e.seq != ref.seq {
			continue // stale ref: overwritten or deleted
		}
		delete(c.entries, ref.key)
		evicted++
	}
	c.order = c.order[i:]
	c.evictions += uint64(evicted)
	c.metrics.RecordCacheEvictions(evicted)
}

func (c *CacheStore) durableDelete(ctx context.Context, key string) {
	if c.durable == nil {
		return
	}
	if err := c.durable.Delete(ctx, key); err != nil && c.logger != nil {
		c.logger.Warn("durable cache delete failed", "key", key, "error", err)
	}
}

// durableGet reads tier 2 and promotes valid hits into tier 1 so subsequent
// reads stay in-process.
func (c *CacheStore) durableGet(ctx context.Context, key string, now time.Time) ([]byte, bool) {
	data, found, err := c.durable.Get(ctx, key)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("durable cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if !found {
		return nil, false
	}

	var stored storedEntry
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		if c.logger != nil {
			c.logger.Warn("durable cache entry corrupt", "key", key, "error", err)
		}
		c.durableDelete(ctx, key)
		return nil, false
	}
	if now.Sub(stored.CreatedAt) >= stored.TTL {
		c.durableDelete(ctx, key)
		return nil, false
	}

	c.mu.Lock()
	c.insertLocked(key, stored.Value, stored.CreatedAt, stored.TTL)
	c.mu.Unlock()
	return stored.Value, true
}
