package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odilabs/odi-auth/internal/kv"
	"github.com/odilabs/odi-auth/internal/ratelimit"
)

func TestAllowWithinBudget(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewLimiter(kv.NewMemoryStore())

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 10)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 10)
	require.NoError(t, err)
	require.False(t, allowed)

	// Another key has its own budget.
	allowed, err = limiter.Allow(ctx, "5.6.7.8", time.Minute, 10)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestBudgetResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	limiter := ratelimit.NewLimiter(store)
	for i := 0; i < 11; i++ {
		_, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 10)
		require.NoError(t, err)
	}

	now = now.Add(61 * time.Second)
	allowed, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 10)
	require.NoError(t, err)
	require.True(t, allowed)
}
