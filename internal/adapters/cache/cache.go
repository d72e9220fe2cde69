// Package cache holds computed aggregates keyed by milestone, category and
// index snapshot so reads avoid recomputation until invalidated.
package cache

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/pkg/metrics"
)

// Key prefixes.
const (
	MilestonePrefix = "milestone:"
	CategoryPrefix  = "category:"
	IndexPrefix     = "index:"
)

// DefaultTTL bounds how long an entry lives without invalidation.
const DefaultTTL = time.Hour

// MilestoneKey is the cache key for a milestone detail view.
func MilestoneKey(code string) string { return MilestonePrefix + code }

// CategoryKey is the cache key for a category view.
func CategoryKey(c model.Category) string { return CategoryPrefix + string(c) }

// IndexKey is the cache key for an index snapshot.
func IndexKey(preset, date string) string { return IndexPrefix + preset + ":" + date }

// Cache is a TTL cache with explicit and prefix invalidation. Every
// invalidation bumps a generation so a value computed from data read before
// it can be refused with SetIfCurrent.
type Cache struct {
	c *gocache.Cache

	mu  sync.Mutex
	gen uint64
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{c: gocache.New(ttl, 2*ttl)}
}

// Get returns the value for key.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.c.Get(key)
	metrics.RecordCacheLookup(ok)
	return v, ok
}

// Set stores v under key with the default TTL.
func (c *Cache) Set(key string, v any) {
	c.c.SetDefault(key, v)
}

// Generation returns the current invalidation generation. Read it before
// loading the data a cached value is computed from.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent stores v under key unless an invalidation happened since gen
// was read. It reports whether v was stored.
func (c *Cache) SetIfCurrent(key string, v any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.c.SetDefault(key, v)
	return true
}

func (c *Cache) bump() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
}

// Invalidate removes keys and returns how many were present.
func (c *Cache) Invalidate(keys ...string) int {
	c.bump()
	n := 0
	for _, k := range keys {
		if _, ok := c.c.Get(k); ok {
			n++
		}
		c.c.Delete(k)
	}
	metrics.RecordCacheInvalidations(n)
	return n
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.bump()
	n := 0
	for k := range c.c.Items() {
		if strings.HasPrefix(k, prefix) {
			c.c.Delete(k)
			n++
		}
	}
	metrics.RecordCacheInvalidations(n)
	return n
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.c.ItemCount() }

// Clear drops everything.
func (c *Cache) Clear() {
	c.bump()
	c.c.Flush()
}

// InvalidateAggregates drops the views for the given milestones and
// categories plus every index snapshot, since any milestone feeds the
// overall score.
func (c *Cache) InvalidateAggregates(codes []string, categories []model.Category) int {
	keys := make([]string, 0, len(codes)+len(categories))
	for _, code := range codes {
		keys = append(keys, MilestoneKey(code))
	}
	for _, cat := range categories {
		keys = append(keys, CategoryKey(cat))
	}
	return c.Invalidate(keys...) + c.InvalidatePrefix(IndexPrefix)
}
