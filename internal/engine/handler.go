package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/khanhnd/jobengine/internal/engine/domain"
)

// Registry maps job types to their business handlers. Handlers are
// registered explicitly at startup; registration after Start is not
// supported.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]domain.Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]domain.Handler),
	}
}

// Register binds a handler to a job type. Registering the same type twice
// is a programming error.
func (r *Registry) Register(jobType string, handler domain.Handler) error {
	if jobType == "" {
		return fmt.Errorf("job type is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required for job type %q", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}

	r.handlers[jobType] = handler
	return nil
}

// Resolve returns the handler for a job type
func (r *Registry) Resolve(jobType string) (domain.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}

	return handler, nil
}

// Types returns the registered job types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
