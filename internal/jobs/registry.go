// Package jobs implements the execution side of the durable job queue:
// a string-keyed handler registry, an executor that drives the
// pending → processing → {done, pending, failed} state machine, and a
// runner that drains the queue.
//
// Handlers are registered per job type before processing starts. Every
// coordination concern (claim exclusivity, idempotent enqueue) lives in the
// store; this package only interprets handler outcomes.
package jobs

import (
	"context"
	"sync"
)

// Handler is the function executed for each claimed job. A non-nil return
// triggers retry logic (exponential backoff up to max_attempts, then a
// terminal failed status). A nil return marks the job done.
type Handler func(ctx context.Context, payload map[string]any) error

// Registry maps job type tags to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates h with the job type tag. Later registrations for the
// same tag replace earlier ones.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Get returns the handler for the given job type.
// Returns false if no handler is registered.
func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
