package cache

import (
	"context"
	"log/slog"
	"sync"
)

// Invalidator is the cache-invalidation collaborator used by administrative
// actions, e.g. dropping a derived-configuration key after a config change.
// The engine never touches it on the job path.
type Invalidator interface {
	RemoveFromCache(ctx context.Context, key string) error
}

// Memory is an in-process Invalidator for deployments without a shared
// cache tier.
type Memory struct {
	mu     sync.Mutex
	keys   map[string]struct{}
	logger *slog.Logger
}

// NewMemory creates an in-process cache invalidator
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		keys:   make(map[string]struct{}),
		logger: logger,
	}
}

// Put records a key as cached
func (m *Memory) Put(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
}

// RemoveFromCache drops a key. Removing an absent key is a no-op.
func (m *Memory) RemoveFromCache(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	m.logger.Info("Cache key invalidated",
		slog.String("key", key),
	)
	return nil
}
