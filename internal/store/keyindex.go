// Package store persists canonical songs and the request log.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// DefaultIndexCapacity sizes the key index filter.
	DefaultIndexCapacity = 100000
	// DefaultFalsePositiveRate is the key index false positive target.
	DefaultFalsePositiveRate = 0.001
)

// KeyIndex answers "definitely not stored" for (platform, native ID) keys
// without a database round trip. Songs are never deleted, so the filter never
// needs removal.
type KeyIndex struct {
	bloom *bloom.BloomFilter
	count int
	mutex sync.RWMutex
}

func NewKeyIndex(capacity int, falsePositiveRate float64) *KeyIndex {
	if capacity <= 0 {
		capacity = DefaultIndexCapacity
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = DefaultFalsePositiveRate
	}

	return &KeyIndex{
		bloom: bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
	}
}

// MightContain is false only when key was never added.
func (ki *KeyIndex) MightContain(key string) bool {
	ki.mutex.RLock()
	defer ki.mutex.RUnlock()
	return ki.bloom.TestString(key)
}

func (ki *KeyIndex) Add(key string) {
	ki.mutex.Lock()
	defer ki.mutex.Unlock()

	if !ki.bloom.TestAndAddString(key) {
		ki.count++
	}
}

// Load adds keys in bulk, skipping empty ones.
func (ki *KeyIndex) Load(keys []string) {
	ki.mutex.Lock()
	defer ki.mutex.Unlock()

	for _, key := range keys {
		if key != "" && !ki.bloom.TestAndAddString(key) {
			ki.count++
		}
	}
}

// Size is the approximate number of distinct keys added.
func (ki *KeyIndex) Size() int {
	ki.mutex.RLock()
	defer ki.mutex.RUnlock()
	return ki.count
}
