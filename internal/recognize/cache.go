package recognize

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"songbird/internal/core"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores recognition results by clip fingerprint. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(key string) (*core.RecognitionResult, bool)
	Add(key string, result *core.RecognitionResult)
	Len() int
}

// LRUCache is a size and TTL bounded Cache.
type LRUCache struct {
	lru *expirable.LRU[string, *core.RecognitionResult]
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[string, *core.RecognitionResult](size, nil, ttl)}
}

func (c *LRUCache) Get(key string) (*core.RecognitionResult, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache) Add(key string, result *core.RecognitionResult) {
	c.lru.Add(key, result)
}

func (c *LRUCache) Len() int {
	return c.lru.Len()
}

// CacheKey derives the cache key from the clip bytes and the mode.
func CacheKey(audio []byte, mode core.RecognitionMode) string {
	sum := sha256.Sum256(audio)
	return hex.EncodeToString(sum[:]) + ":" + string(mode)
}
