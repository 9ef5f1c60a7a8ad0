package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/odilabs/odi-auth/internal/kv"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 600 * time.Second
)

// Login tracks failed login attempts per identity and blocks once the budget
// for the window is spent. The identity key is the login identifier (email or
// account handle), independent of any IP-scoped limiting on the same endpoint.
type Login struct {
	store       kv.Store
	maxAttempts int64
	window      time.Duration
}

// NewLogin builds a throttle; non-positive arguments fall back to the
// defaults of 5 attempts per 10 minutes.
func NewLogin(store kv.Store, maxAttempts int64, window time.Duration) *Login {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Login{store: store, maxAttempts: maxAttempts, window: window}
}

func attemptKey(identity string) string {
	return "login:fail:" + identity
}

// CheckAndIncrement counts this attempt and reports whether it may proceed.
// The increment is atomic against concurrent attempts for the same identity;
// the window starts with the first attempt. Store failures propagate so the
// caller fails closed.
func (t *Login) CheckAndIncrement(ctx context.Context, identity string) (bool, error) {
	count, err := t.store.IncrementWithTTL(ctx, attemptKey(identity), t.window)
	if err != nil {
		return false, fmt.Errorf("count login attempt: %w", err)
	}
	return count <= t.maxAttempts, nil
}

// Reset clears the attempt counter. Called only after fully successful
// authentication.
func (t *Login) Reset(ctx context.Context, identity string) error {
	if err := t.store.Delete(ctx, attemptKey(identity)); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

// Window exposes the configured window length for user-facing messages.
func (t *Login) Window() time.Duration {
	return t.window
}
