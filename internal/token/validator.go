package token

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/kv"
)

const defaultRevokeTTL = time.Hour

var allowedAlgorithms = []gojose.SignatureAlgorithm{gojose.HS256}

// Validator verifies access tokens against signature, expiry, and the
// store-backed revocation list, and consumes refresh tokens. Store lookups
// fail closed: if the blacklist or refresh mapping cannot be read, the token
// is not accepted.
type Validator struct {
	accessSecret []byte
	store        kv.Store
}

// NewValidator wires a validator sharing the issuer's access secret and store.
func NewValidator(accessSecret []byte, store kv.Store) *Validator {
	return &Validator{accessSecret: accessSecret, store: store}
}

// Validate checks the presented access token. The revocation list is
// consulted before the signature so a revoked-but-otherwise-valid token is
// reported as revoked, not merely invalid.
func (v *Validator) Validate(ctx context.Context, value string) (*Claims, error) {
	if strings.TrimSpace(value) == "" {
		return nil, domain.ErrUnauthenticated
	}

	revoked, err := v.store.Exists(ctx, blacklistKey(value))
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}

	parsed, err := gojwt.ParseSigned(value, allowedAlgorithms)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	var std gojwt.Claims
	var custom Claims
	if err := parsed.Claims(v.accessSecret, &std, &custom); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Time: time.Now()}, 0); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	return &custom, nil
}

// Authorize compares the claims' role against the required one. Role is an
// ordered scalar, so this is a numeric comparison.
func Authorize(claims *Claims, required domain.Role) error {
	if claims == nil {
		return domain.ErrUnauthenticated
	}
	if claims.Role < required {
		return domain.ErrForbidden
	}
	return nil
}

// Revoke blacklists an access token for its remaining lifetime. The expiry
// claim is read without signature verification; a missing or already-passed
// expiry clamps the entry to a default hour, so the blacklist entry never
// outlives the token it blocks by more than that.
func (v *Validator) Revoke(ctx context.Context, value string) error {
	ttl := defaultRevokeTTL
	if parsed, err := gojwt.ParseSigned(value, allowedAlgorithms); err == nil {
		var std gojwt.Claims
		if err := parsed.UnsafeClaimsWithoutVerification(&std); err == nil && std.Expiry != nil {
			if remaining := time.Until(std.Expiry.Time()); remaining > 0 {
				ttl = remaining
			}
		}
	}
	if err := v.store.Set(ctx, blacklistKey(value), "1", ttl); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// ConsumeRefresh resolves a refresh token to its user id via the persisted
// mapping. A token absent from the store is invalid even if its signature
// would verify, which is what makes early revocation work. The mapping is
// not deleted: refresh tokens stay reusable until their TTL expires.
func (v *Validator) ConsumeRefresh(ctx context.Context, value string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, domain.ErrTokenInvalid
	}
	stored, ok, err := v.store.Get(ctx, refreshKey(value))
	if err != nil {
		return 0, fmt.Errorf("load refresh token: %w", err)
	}
	if !ok {
		return 0, domain.ErrTokenInvalid
	}
	userID, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return 0, domain.ErrTokenInvalid
	}
	return userID, nil
}

// RevokeRefresh deletes the refresh mapping. Idempotent; deleting an unknown
// token is not an error.
func (v *Validator) RevokeRefresh(ctx context.Context, value string) error {
	if err := v.store.Delete(ctx, refreshKey(value)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
