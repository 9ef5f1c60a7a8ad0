package token

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/kv"
)

// Claims is the identity payload embedded in access tokens.
type Claims struct {
	ID    int64       `json:"id"`
	Email string      `json:"email"`
	Odacc string      `json:"odacc"`
	Role  domain.Role `json:"role"`
}

func refreshKey(token string) string {
	return "refresh:" + token
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

// Issuer mints signed access and refresh tokens. Access tokens are
// self-contained; refresh tokens are additionally persisted in the store so
// membership can be checked (and revoked) independently of the signature.
// Every token carries an expiry claim; nothing of infinite lifetime is ever
// issued.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         kv.Store
}

// NewIssuer wires an issuer. Non-positive TTLs fall back to 2h for access and
// 7d for refresh tokens.
func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration, store kv.Store) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 2 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		store:         store,
	}
}

// AccessTTL exposes the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccessToken produces a signed JWT embedding the user's identity claims.
func (i *Issuer) IssueAccessToken(user domain.User) (string, error) {
	custom := Claims{ID: user.ID, Email: user.Email, Odacc: user.Odacc, Role: user.Role}
	return sign(i.accessSecret, custom, user.ID, i.accessTTL)
}

// IssueRefreshToken produces a signed opaque token carrying only the user id
// and persists the token-to-user mapping with a TTL matching the token's own
// lifetime. A user may hold several concurrently valid refresh tokens, one
// per session; issuing a new one never invalidates the others.
func (i *Issuer) IssueRefreshToken(ctx context.Context, userID int64) (string, error) {
	value, err := sign(i.refreshSecret, Claims{ID: userID}, userID, i.refreshTTL)
	if err != nil {
		return "", err
	}
	if err := i.store.Set(ctx, refreshKey(value), strconv.FormatInt(userID, 10), i.refreshTTL); err != nil {
		return "", fmt.Errorf("persist refresh token: %w", err)
	}
	return value, nil
}

func sign(secret []byte, custom Claims, subject int64, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	// The jti keeps two tokens for the same subject distinct even when they
	// are minted within the same second; without it, concurrent sessions
	// would collapse onto one refresh mapping.
	now := time.Now().UTC()
	std := gojwt.Claims{
		ID:       uuid.NewString(),
		Subject:  strconv.FormatInt(subject, 10),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}

	value, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return value, nil
}
