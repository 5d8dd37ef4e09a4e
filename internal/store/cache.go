package store

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"resellboost/internal/model"
)

type cacheEntry struct {
	key       string
	value     any
	createdAt time.Time
	hits      int
}

type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
	Size          int   `json:"size"`
}

// Cache is a TTL cache with LRU eviction.
type Cache struct {
	mu       sync.Mutex
	maxSize  int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
	stats    CacheStats
	now      func() time.Time
	observer Observer
}

func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		maxSize:  maxSize,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
		observer: nopObserver{},
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.miss()
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.createdAt) > c.ttl {
		c.removeLocked(el)
		c.miss()
		return nil, false
	}
	e.hits++
	c.order.MoveToFront(el)
	c.stats.Hits++
	c.observer.ObserveCache(true)
	return e.value, true
}

func (c *Cache) miss() {
	c.stats.Misses++
	c.observer.ObserveCache(false)
}

func (c *Cache) Set(key string, value any) {
	if value == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value, createdAt: c.now()})

	for c.order.Len() > c.maxSize {
		c.removeLocked(c.order.Back())
		c.stats.Evictions++
	}
}

// Invalidate drops every key with the given prefix; an empty prefix clears
// the cache.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
			n++
		}
	}
	c.stats.Invalidations += int64(n)
	return n
}

// Purge removes expired entries.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*cacheEntry).createdAt) > c.ttl {
			c.removeLocked(el)
			n++
		}
		el = prev
	}
	return n
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.order.Len()
	return s
}

func (c *Cache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// Run purges expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

const snapshotKey = "users:snapshot"

// CachedStore serves snapshots and derived reads from a cache that every
// update invalidates.
type CachedStore struct {
	UserStore
	cache  *Cache
	logger *zap.Logger
}

func NewCachedStore(inner UserStore, cache *Cache, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{UserStore: inner, cache: cache, logger: logger.Named("cache")}
}

// SetObserver routes cache results and the inner store's timings to o.
func (s *CachedStore) SetObserver(o Observer) {
	s.cache.mu.Lock()
	s.cache.observer = o
	s.cache.mu.Unlock()
	if inner, ok := s.UserStore.(interface{ SetObserver(Observer) }); ok {
		inner.SetObserver(o)
	}
}

func (s *CachedStore) Cache() *Cache { return s.cache }

func (s *CachedStore) Update(ctx context.Context, fn func(model.Users) error) error {
	err := s.UserStore.Update(ctx, fn)
	if err == nil {
		s.cache.Invalidate("users:")
	}
	return err
}

func (s *CachedStore) Snapshot(ctx context.Context) (model.Users, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(model.Users).Clone(), nil
	}
	users, err := s.UserStore.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(snapshotKey, users.Clone())
	return users, nil
}

// Remember caches compute's result under key until the next update. compute
// must treat users as read-only.
func (s *CachedStore) Remember(ctx context.Context, key string, compute func(model.Users) (any, error)) (any, error) {
	key = "users:" + key
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	users, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	v, err := compute(users)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, v)
	return v, nil
}
