// Package cache is a semantic response cache: exact normalized-prompt hits
// first, then a cheap word-overlap similarity match against entries of the
// same field type. Hits bypass the breaker, retry policy, and backend call
// entirely.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/storyloom/orchestrator/internal/domain"
)

const (
	DefaultCapacity      = 1000
	DefaultThreshold     = 0.85
	DefaultEvictFraction = 0.20
)

// Cache stores successful responses keyed by field type and normalized
// prompt. Entries are sharded by field type; each shard holds its own lock,
// so lookups for unrelated fields never contend.
type Cache struct {
	mu     sync.RWMutex
	shards map[domain.FieldType]*shard

	capacity      int
	threshold     float64
	evictFraction float64
	now           func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *entry]
}

type entry struct {
	normalized string
	response   string
	words      map[string]struct{}
	createdAt  time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity bounds the entry count per field-type shard.
func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

// WithThreshold sets the minimum word-overlap score for a similarity hit.
func WithThreshold(t float64) Option {
	return func(c *Cache) { c.threshold = t }
}

// WithEvictFraction sets the share of entries dropped in one eviction pass.
func WithEvictFraction(f float64) Option {
	return func(c *Cache) { c.evictFraction = f }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		shards:        make(map[domain.FieldType]*shard),
		capacity:      DefaultCapacity,
		threshold:     DefaultThreshold,
		evictFraction: DefaultEvictFraction,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) shardFor(ft domain.FieldType, create bool) *shard {
	c.mu.RLock()
	s, ok := c.shards[ft]
	c.mu.RUnlock()
	if ok || !create {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.shards[ft]; ok {
		return s
	}
	lru, err := simplelru.NewLRU[string, *entry](c.capacity, nil)
	if err != nil {
		// Only reachable with capacity <= 0; fall back to the default.
		lru, _ = simplelru.NewLRU[string, *entry](DefaultCapacity, nil)
	}
	s = &shard{lru: lru}
	c.shards[ft] = s
	return s
}

// Lookup returns the cached response for fieldType/prompt, trying an exact
// normalized match first, then the best similarity match at or above the
// threshold.
func (c *Cache) Lookup(fieldType domain.FieldType, prompt string) (string, bool) {
	s := c.shardFor(fieldType, false)
	if s == nil {
		c.misses.Add(1)
		return "", false
	}

	normalized := normalize(prompt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.lru.Get(normalized); ok {
		c.hits.Add(1)
		return e.response, true
	}

	words := wordSet(normalized)
	bestKey := ""
	bestScore := 0.0
	for _, key := range s.lru.Keys() {
		e, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		score := overlap(words, e.words)
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	if bestScore >= c.threshold {
		// Get bumps recency for the matched entry.
		if e, ok := s.lru.Get(bestKey); ok {
			c.hits.Add(1)
			return e.response, true
		}
	}

	c.misses.Add(1)
	return "", false
}

// Insert stores a successful response. Failed calls must never be inserted.
// When the shard is full, the least-recently-used fraction is evicted in one
// pass rather than one entry at a time.
func (c *Cache) Insert(fieldType domain.FieldType, prompt, response string) {
	s := c.shardFor(fieldType, true)
	normalized := normalize(prompt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lru.Contains(normalized) && s.lru.Len() >= c.capacity {
		drop := int(float64(c.capacity) * c.evictFraction)
		if drop < 1 {
			drop = 1
		}
		for i := 0; i < drop; i++ {
			if _, _, ok := s.lru.RemoveOldest(); !ok {
				break
			}
		}
	}

	s.lru.Add(normalized, &entry{
		normalized: normalized,
		response:   response,
		words:      wordSet(normalized),
		createdAt:  c.now(),
	})
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the total entry count across shards.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += s.lru.Len()
		s.mu.Unlock()
	}
	return total
}

// normalize lowercases and collapses whitespace so formatting differences
// do not defeat exact matching.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func wordSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// overlap scores two word sets as |intersection| / max(|a|, |b|), so a
// near-duplicate with a few extra words still scores high while a subset of
// a much longer prompt does not.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(large))
}
