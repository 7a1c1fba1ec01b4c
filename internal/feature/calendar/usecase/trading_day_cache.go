package usecase

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheTTL is how long a resolved trading day is reused before it is looked up again.
	DefaultCacheTTL = 2 * time.Hour
	// DefaultCacheCapacity bounds the number of distinct dates kept in memory.
	DefaultCacheCapacity = 256
	// CurrentKey is the cache key used when no reference date is given.
	CurrentKey = "current"
)

type cacheEntry struct {
	key         string
	day         time.Time
	found       bool
	refreshedAt time.Time
}

// TradingDayCache memoizes trading-day lookups per key. Each key carries its own refresh
// timestamp; the least recently used key is evicted once capacity is reached.
// Concurrent misses on the same key share a single lookup.
type TradingDayCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front: most recently used

	group singleflight.Group
	now   func() time.Time
}

// NewTradingDayCache creates a cache. Non-positive arguments fall back to the defaults.
func NewTradingDayCache(ttl time.Duration, capacity int) *TradingDayCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &TradingDayCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached value for key, calling load when the key is absent or stale.
// A "not found" result is cached like any other and reported as ErrNoTradingDay.
// Other load errors are returned without touching the cache.
func (c *TradingDayCache) Get(ctx context.Context, key string, load func(ctx context.Context) (time.Time, error)) (time.Time, error) {
	if e, ok := c.lookup(key); ok {
		return e.result()
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		day, err := load(ctx)
		if err != nil && !errors.Is(err, ErrNoTradingDay) {
			return nil, err
		}
		return c.store(key, day, err == nil), nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if shared {
		zap.L().Debug("trading day lookup coalesced", zap.String("key", key))
	}
	return v.(cacheEntry).result()
}

// Len reports the number of cached keys.
func (c *TradingDayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *TradingDayCache) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.refreshedAt) >= c.ttl {
		return cacheEntry{}, false
	}
	c.order.MoveToFront(el)
	return *e, true
}

func (c *TradingDayCache) store(key string, day time.Time, found bool) cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := cacheEntry{key: key, day: day, found: found, refreshedAt: c.now()}
	if el, ok := c.entries[key]; ok {
		*el.Value.(*cacheEntry) = e
		c.order.MoveToFront(el)
		return e
	}
	c.entries[key] = c.order.PushFront(&e)
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return e
}

func (e cacheEntry) result() (time.Time, error) {
	if !e.found {
		return time.Time{}, ErrNoTradingDay
	}
	return e.day, nil
}
