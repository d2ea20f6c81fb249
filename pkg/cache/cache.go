package cache

import (
	"sync"
	"time"

	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
)

// Item represents a cached item with expiration
type Item struct {
	Value      interface{}
	Expiration int64
}

// Expired checks if the cache item has expired
func (item Item) Expired() bool {
	if item.Expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > item.Expiration
}

// Cache is a thread-safe in-memory cache with expiration
type Cache struct {
	items             map[string]Item
	mu                sync.RWMutex
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	maxItems          int
}

// NewCache creates a new cache using application cache settings
func NewCache() *Cache {
	cfg := config.Get()
	return NewCacheWithOptions(cfg.Cache.TTL, cfg.Cache.PurgeWindow, cfg.Cache.MaxSize)
}

// NewCacheWithOptions creates a new cache with explicit settings
func NewCacheWithOptions(defaultExpiration, cleanupInterval time.Duration, maxItems int) *Cache {
	c := &Cache{
		items:             make(map[string]Item),
		defaultExpiration: defaultExpiration,
		cleanupInterval:   cleanupInterval,
		maxItems:          maxItems,
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// Set adds an item to the cache with the default expiration
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithExpiration(key, value, c.defaultExpiration)
}

// SetWithExpiration adds an item to the cache with a specific expiration
func (c *Cache) SetWithExpiration(key string, value interface{}, d time.Duration) {
	var exp int64
	if d > 0 {
		exp = time.Now().Add(d).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxItems > 0 && len(c.items) >= c.maxItems {
		if _, exists := c.items[key]; !exists {
			c.evictOldest()
		}
	}

	c.items[key] = Item{Value: value, Expiration: exp}
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.Expired() {
		return nil, false
	}
	return item.Value, true
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Flush removes all items from the cache
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]Item)
}

// evictOldest removes the entry closest to expiry. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestExp int64 = -1

	for k, item := range c.items {
		if oldestExp == -1 || (item.Expiration > 0 && item.Expiration < oldestExp) {
			oldestKey = k
			oldestExp = item.Expiration
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		for k, item := range c.items {
			if item.Expired() {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}
