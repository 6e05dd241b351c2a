package cache

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxSize          = 50
	DefaultTTL              = 5 * time.Minute
	DefaultSweepInterval    = time.Minute
	DefaultPressureInterval = 30 * time.Second
	DefaultHighWaterMark    = 0.8
)

// entry stores a cached value with its insertion time and lifetime.
type entry[V any] struct {
	value      V
	insertedAt time.Time
	seq        uint64        // insertion order, breaks insertedAt ties
	ttl        time.Duration // <= 0 means no expiration
}

// expired reports whether the entry outlived its TTL at t. An entry exactly
// at its TTL boundary is still valid.
func (e entry[V]) expired(t time.Time) bool {
	return e.ttl > 0 && t.Sub(e.insertedAt) > e.ttl
}

// Options controls construction of a TTLCache. Zero values take defaults.
type Options struct {
	MaxSize          int
	DefaultTTL       time.Duration
	SweepInterval    time.Duration
	PressureInterval time.Duration
	// HighWaterMark is the used/total memory ratio above which Run evicts
	// half the cache. Only consulted when Probe is set.
	HighWaterMark float64
	Probe         MemoryProbe
	Logger        zerolog.Logger
}

func (o *Options) withDefaults() {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.PressureInterval <= 0 {
		o.PressureInterval = DefaultPressureInterval
	}
	if o.HighWaterMark <= 0 || o.HighWaterMark >= 1 {
		o.HighWaterMark = DefaultHighWaterMark
	}
}

// Stats is a point-in-time view of the cache for monitoring.
type Stats struct {
	Size         int    `json:"size"`
	MaxSize      int    `json:"maxSize"`
	UsagePercent int    `json:"usagePercentage"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Evictions    uint64 `json:"evictions"`
	Expirations  uint64 `json:"expirations"`
}

// TTLCache is a bounded map-backed cache. When full, inserting a new key
// evicts the entry with the oldest insertion time. Expired entries are
// removed lazily on access and by the sweep that Run performs.
type TTLCache[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	seq   uint64
	opts  Options
	log   zerolog.Logger

	hits, misses, evictions, expirations uint64
}

// now is a small indirection to allow test stubbing.
var now = time.Now

// New constructs a TTLCache with the given options.
func New[V any](opts Options) *TTLCache[V] {
	opts.withDefaults()
	return &TTLCache[V]{
		items: make(map[string]entry[V], opts.MaxSize),
		opts:  opts,
		log:   opts.Logger.With().Str("component", "cache").Logger(),
	}
}

// Get implements Cache.Get.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lookupLocked(key)
	if !ok {
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Has implements Cache.Has.
func (c *TTLCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(key)
	return ok
}

// lookupLocked returns a live entry, deleting it if it has expired.
func (c *TTLCache[V]) lookupLocked(key string) (entry[V], bool) {
	e, ok := c.items[key]
	if !ok {
		return e, false
	}
	if e.expired(now()) {
		delete(c.items, key)
		c.expirations++
		return e, false
	}
	return e, true
}

// Set implements Cache.Set.
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.opts.DefaultTTL)
}

// SetWithTTL implements Cache.SetWithTTL.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.opts.MaxSize {
		c.evictOldestLocked()
	}
	c.seq++
	c.items[key] = entry[V]{
		value:      value,
		insertedAt: now(),
		seq:        c.seq,
		ttl:        ttl,
	}
}

func (c *TTLCache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    entry[V]
		found     bool
	)
	for k, e := range c.items {
		if !found || e.insertedAt.Before(oldest.insertedAt) ||
			(e.insertedAt.Equal(oldest.insertedAt) && e.seq < oldest.seq) {
			oldestKey, oldest, found = k, e, true
		}
	}
	if found {
		delete(c.items, oldestKey)
		c.evictions++
		c.log.Debug().Str("key", oldestKey).Msg("evicted oldest entry")
	}
}

// Delete implements Cache.Delete.
func (c *TTLCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Len implements Cache.Len.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear implements Cache.Clear.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V], c.opts.MaxSize)
}

// PurgeExpired implements Cache.PurgeExpired.
func (c *TTLCache[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return 0
	}
	t := now()
	var stale []string
	for k, e := range c.items {
		if e.expired(t) {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		delete(c.items, k)
	}
	c.expirations += uint64(len(stale))
	return len(stale)
}

// RelievePressure evicts the older half of the entries when the memory
// probe reports usage above the high-water mark. It is a no-op without a probe.
func (c *TTLCache[V]) RelievePressure() int {
	if c.opts.Probe == nil {
		return 0
	}
	used, total, ok := c.opts.Probe.MemoryUsage()
	if !ok || total == 0 || float64(used)/float64(total) <= c.opts.HighWaterMark {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items) / 2
	victims := make([]string, 0, len(c.items))
	for k := range c.items {
		victims = append(victims, k)
	}
	sort.Slice(victims, func(i, j int) bool {
		a, b := c.items[victims[i]], c.items[victims[j]]
		if !a.insertedAt.Equal(b.insertedAt) {
			return a.insertedAt.Before(b.insertedAt)
		}
		return a.seq < b.seq
	})
	victims = victims[:n]
	for _, k := range victims {
		delete(c.items, k)
	}
	c.evictions += uint64(len(victims))
	return len(victims)
}

// Run sweeps expired entries every SweepInterval and, when a probe is
// configured, checks memory pressure every PressureInterval. It returns
// when ctx is cancelled.
func (c *TTLCache[V]) Run(ctx context.Context) {
	sweep := time.NewTicker(c.opts.SweepInterval)
	defer sweep.Stop()

	var pressure <-chan time.Time
	if c.opts.Probe != nil {
		t := time.NewTicker(c.opts.PressureInterval)
		defer t.Stop()
		pressure = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if n := c.PurgeExpired(); n > 0 {
				c.log.Debug().Int("removed", n).Msg("cache cleanup removed expired entries")
			}
		case <-pressure:
			if n := c.RelievePressure(); n > 0 {
				c.log.Warn().Int("removed", n).Msg("memory pressure detected; evicted cache entries")
			}
		}
	}
}

// Stats returns size, capacity, utilization and counters.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := len(c.items)
	return Stats{
		Size:         size,
		MaxSize:      c.opts.MaxSize,
		UsagePercent: int(math.Round(float64(size) * 100 / float64(c.opts.MaxSize))),
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		Expirations:  c.expirations,
	}
}

// Keys returns the stored keys, sorted, including entries not yet swept.
func (c *TTLCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ensure TTLCache implements Cache at compile time.
var _ Cache[any] = (*TTLCache[any])(nil)
