package repository

import (
	"context"

	"github.com/odilabs/odi-auth/internal/domain"
)

// UserRepository exposes persistence for user accounts. The auth core only
// needs identity lookups and inserts; everything else about user records is
// the host application's business.
type UserRepository interface {
	// FindByIdentifier resolves a user by email or ODACC handle.
	FindByIdentifier(ctx context.Context, identifier string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	// CountByEmail reports how many accounts share an email address.
	CountByEmail(ctx context.Context, email string) (int, error)
	OdaccExists(ctx context.Context, odacc string) (bool, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}
