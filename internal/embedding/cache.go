package embedding

import (
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const VectorDim = 1536

// fifoCache is the MD5(text)-keyed embedding cache, capacity-bounded with FIFO
// eviction per spec.md §4.1. Built on hashicorp/golang-lru/v2's simplelru.LRU
// but used in FIFO mode: reads always go through Peek (never promotes
// recency), so eviction order tracks insertion order, not access order,
// matching the spec's "ordered dict protected by a lock" resource policy (§5).
type fifoCache struct {
	mu  sync.RWMutex
	lru *simplelru.LRU[string, []float32]
}

func newFIFOCache(capacity int) *fifoCache {
	if capacity <= 0 {
		capacity = 1000
	}
	lru, _ := simplelru.NewLRU[string, []float32](capacity, nil)
	return &fifoCache{lru: lru}
}

func cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get never promotes the entry — Peek leaves LRU order untouched so eviction
// stays strictly FIFO regardless of read pattern.
func (c *fifoCache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Peek(cacheKey(text))
}

func (c *fifoCache) Put(text string, vec []float32) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(key) {
		return
	}
	c.lru.Add(key, vec)
}

func (c *fifoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
