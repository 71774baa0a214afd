// Package lock guarantees at most one reconciliation run per trade date.
package lock

import (
	"context"
	"sync"

	"trade-reconciliation/internal/domain"
)

// Release gives a lock back.
type Release = func(ctx context.Context) error

// Local is an in-process lock set, enough for a single reconciler instance.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates an empty lock set.
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

// Acquire takes key or returns domain.ErrRunInProgress when it is held.
func (l *Local) Acquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrRunInProgress
	}
	l.held[key] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
