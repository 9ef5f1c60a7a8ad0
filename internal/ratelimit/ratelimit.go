package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/odilabs/odi-auth/internal/kv"
)

// Limiter is a generic fixed-window request counter on the shared store.
// Because the window lives in the store, every service instance sees the
// same budget.
type Limiter struct {
	store kv.Store
}

// NewLimiter wires a limiter onto the shared store.
func NewLimiter(store kv.Store) *Limiter {
	return &Limiter{store: store}
}

// Allow counts a request for key and reports whether it fits the window
// budget. The window starts at the first request and is applied atomically
// with the count. Store failures propagate so callers fail closed.
func (l *Limiter) Allow(ctx context.Context, key string, window time.Duration, max int64) (bool, error) {
	count, err := l.store.IncrementWithTTL(ctx, "rate:"+key, window)
	if err != nil {
		return false, fmt.Errorf("count request: %w", err)
	}
	return count <= max, nil
}
