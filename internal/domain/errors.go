package domain

import "errors"

var (
	// ErrInvalidInput indicates missing or malformed caller input.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrCooldown indicates a verification code was requested before the
	// previous one's cooldown elapsed.
	ErrCooldown = errors.New("auth: code requested too soon")
	// ErrThrottled indicates the failed-attempt budget for an identity is spent.
	ErrThrottled = errors.New("auth: too many attempts")
	// ErrCodeInvalidOrExpired indicates a wrong, consumed, or expired verification code.
	ErrCodeInvalidOrExpired = errors.New("auth: verification code invalid or expired")
	// ErrUnauthenticated indicates a missing or rejected credential.
	ErrUnauthenticated = errors.New("auth: credentials missing")
	// ErrTokenInvalid indicates a token that fails signature or expiry checks,
	// or a refresh token unknown to the store.
	ErrTokenInvalid = errors.New("auth: token invalid or expired")
	// ErrTokenRevoked indicates an access token on the revocation list.
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrForbidden indicates the caller's role is below the required one.
	ErrForbidden = errors.New("auth: insufficient role")
	// ErrUserNotFound indicates the account record does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUnavailable indicates the backing store or mail transport is
	// unreachable. Callers should retry with backoff; it is never treated
	// as success.
	ErrUnavailable = errors.New("auth: backing service unavailable")
)
