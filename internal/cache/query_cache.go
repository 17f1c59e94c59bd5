package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// TTL classes used by the dashboard.
const (
	TTLShort  = 5 * time.Minute
	TTLMedium = 30 * time.Minute
	TTLLong   = 2 * time.Hour
)

// DefaultCapacity bounds the in-memory cache when no size is configured.
const DefaultCapacity = 1000

// Observer receives cache events, e.g. for Prometheus counters.
type Observer interface {
	CacheHit(tier string)
	CacheMiss(tier string)
	CacheEviction(tier string)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	Entries     int    `json:"entries"`
}

type entry struct {
	key        string
	value      any
	insertedAt time.Time
	expiresAt  time.Time
}

// QueryCache is a bounded LRU with per-entry TTL. Expired entries are dropped
// lazily on access or by the optional janitor. There is no single-flight:
// concurrent misses on one key may compute and set the value twice.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
	observer Observer
	stats    Stats
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *QueryCache) { c.now = now }
}

// WithObserver reports hits, misses and evictions.
func WithObserver(o Observer) Option {
	return func(c *QueryCache) { c.observer = o }
}

func New(capacity int, opts ...Option) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &QueryCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key; expired entries count as a miss and are removed.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.miss()
		return nil, false
	}
	ent := el.Value.(*entry)
	if !c.now().Before(ent.expiresAt) {
		c.removeElement(el)
		c.stats.Expirations++
		c.miss()
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.stats.Hits++
	if c.observer != nil {
		c.observer.CacheHit(TierMemory)
	}
	return ent.value, true
}

// Set stores value under key, overwriting and resetting expiry if present.
// A non-positive ttl falls back to TTLMedium.
func (c *QueryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTLMedium
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.insertedAt = now
		ent.expiresAt = now.Add(ttl)
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
			if c.observer != nil {
				c.observer.CacheEviction(TierMemory)
			}
		}
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, value: value, insertedAt: now, expiresAt: now.Add(ttl)})
}

// Delete removes a single key.
func (c *QueryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *QueryCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, including expired ones not yet swept.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	return s
}

// Sweep drops all expired entries and returns how many were removed.
func (c *QueryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
			c.stats.Expirations++
			removed++
		}
		el = prev
	}
	return removed
}

// StartJanitor sweeps expired entries every interval until ctx is done.
func (c *QueryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

func (c *QueryCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

func (c *QueryCache) miss() {
	c.stats.Misses++
	if c.observer != nil {
		c.observer.CacheMiss(TierMemory)
	}
}
