package extract

import (
	"fmt"
	"sync"

	"songbird/internal/core"
)

// Registry dispatches a classified platform to its backend.
type Registry struct {
	mu       sync.RWMutex
	backends map[core.Platform]core.Extractor
}

func NewRegistry(backends ...core.Extractor) *Registry {
	r := &Registry{backends: make(map[core.Platform]core.Extractor)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces the backend for its platform.
func (r *Registry) Register(b core.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Platform()] = b
}

func (r *Registry) Get(platform core.Platform) (core.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return b, nil
}
