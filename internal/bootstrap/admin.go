package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"github.com/odilabs/odi-auth/internal/service"
)

// EnsureAdmin creates the configured admin account at startup when missing.
func EnsureAdmin(lc fx.Lifecycle, auth *service.AuthService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return auth.EnsureAdmin(ctx)
		},
	})
}
