package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/odilabs/odi-auth/internal/config"
	"github.com/odilabs/odi-auth/internal/domain"
	pw "github.com/odilabs/odi-auth/internal/password"
	"github.com/odilabs/odi-auth/internal/repository"
	"github.com/odilabs/odi-auth/internal/throttle"
	"github.com/odilabs/odi-auth/internal/token"
	"github.com/odilabs/odi-auth/internal/verification"
)

const maxAccountsPerEmail = 3

// AuthService orchestrates the credential lifecycle: verification codes,
// registration, throttled login, token pairs, refresh, and logout.
type AuthService struct {
	users     repository.UserRepository
	codes     *verification.Manager
	attempts  *throttle.Login
	issuer    *token.Issuer
	validator *token.Validator
	node      *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies. A nil tracer falls back to the global
// provider.
func NewAuthService(users repository.UserRepository, codes *verification.Manager, attempts *throttle.Login, issuer *token.Issuer, validator *token.Validator, node *snowflake.Node, tracer trace.Tracer, cfg config.Config, logger *zap.Logger) *AuthService {
	if tracer == nil {
		tracer = otel.Tracer("github.com/odilabs/odi-auth/internal/service")
	}
	return &AuthService{
		users:     users,
		codes:     codes,
		attempts:  attempts,
		issuer:    issuer,
		validator: validator,
		node:      node,
		cfg:       cfg,
		logger:    logger,
		tracer:    tracer,
	}
}

// SendCode issues a verification code for the given purpose and emails it.
func (s *AuthService) SendCode(ctx context.Context, email, purpose string) error {
	ctx, span := s.startSpan(ctx, "AuthService.SendCode")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" {
		return invalidInput("Email is required.")
	}
	if strings.TrimSpace(purpose) == "" {
		return invalidInput("Code type is required.")
	}

	_, err := s.codes.Issue(ctx, verification.Purpose(purpose), email)
	if err != nil {
		span.RecordError(err)
		var cooldown *verification.CooldownError
		if errors.As(err, &cooldown) {
			authErr := newAuthError("cooldown",
				fmt.Sprintf("Code already sent. Retry in %d seconds.", int(cooldown.RetryAfter.Seconds())),
				http.StatusTooManyRequests, domain.ErrCooldown)
			authErr.RetryAfter = cooldown.RetryAfter
			return authErr
		}
		return fmt.Errorf("issue code: %w", err)
	}

	s.audit("code.sent", "purpose", purpose, "target", email)
	return nil
}

// Register creates an account after verifying the signup code. At most three
// accounts may share an email address.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(input.Email)
	if email == "" || input.Code == "" || input.Password == "" || input.ConfirmPassword == "" {
		return nil, invalidInput("Email, code, and password are required.")
	}
	if input.Password != input.ConfirmPassword {
		return nil, invalidInput("Passwords do not match.")
	}
	if !pw.Acceptable(input.Password) {
		return nil, invalidInput("Password must be at least 8 characters with letters and digits.")
	}

	var birthday *time.Time
	if strings.TrimSpace(input.Birthday) != "" {
		parsed, err := time.Parse("2006-01-02", input.Birthday)
		if err != nil {
			return nil, invalidInput("Birthday must use YYYY-MM-DD.")
		}
		birthday = &parsed
	}

	// The cap is checked before the code is consumed so a capped user keeps
	// their code instead of burning it and sitting out the cooldown.
	count, err := s.users.CountByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	if count >= maxAccountsPerEmail {
		return nil, newAuthError("account_limit", "This email already has the maximum number of accounts.", http.StatusBadRequest, domain.ErrInvalidInput)
	}

	if err := s.codes.Verify(ctx, verification.PurposeRegister, email, input.Code); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrCodeInvalidOrExpired) {
			return nil, newAuthError("invalid_code", "Verification code is wrong or expired.", http.StatusBadRequest, domain.ErrCodeInvalidOrExpired)
		}
		return nil, fmt.Errorf("verify signup code: %w", err)
	}

	odacc, err := s.generateOdacc(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate odacc: %w", err)
	}

	hash, err := pw.Hash(input.Password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	nickname := strings.TrimSpace(input.Nickname)
	if nickname == "" {
		nickname = "user" + odacc[:4]
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:           s.node.Generate().Int64(),
		Odacc:        odacc,
		Nickname:     nickname,
		Email:        email,
		PasswordHash: hash,
		Birthday:     birthday,
		Address:      strings.TrimSpace(input.Address),
		Gender:       strings.TrimSpace(input.Gender),
		Role:         domain.RoleUser,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit("register.success", "user_id", created.ID, "odacc", created.Odacc)
	return &RegisterResult{UserID: created.ID, Odacc: created.Odacc}, nil
}

// Login authenticates by password or login code, enforcing the per-identity
// attempt throttle before the credential is even examined. A fully successful
// login resets the counter and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || (input.Password == "" && input.Code == "") {
		return nil, invalidInput("Identifier and a password or code are required.")
	}

	allowed, err := s.attempts.CheckAndIncrement(ctx, identifier)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("login throttle: %w", err)
	}
	if !allowed {
		authErr := newAuthError("too_many_attempts",
			fmt.Sprintf("Too many attempts. Try again in %d minutes.", int(s.attempts.Window().Minutes())),
			http.StatusTooManyRequests, domain.ErrThrottled)
		authErr.RetryAfter = s.attempts.Window()
		return nil, authErr
	}

	var user domain.User
	switch {
	case input.Password != "":
		user, err = s.users.FindByIdentifier(ctx, identifier)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil, newAuthError("invalid_credentials", "Account does not exist.", http.StatusBadRequest, domain.ErrUserNotFound)
			}
			return nil, fmt.Errorf("load user: %w", err)
		}
		if !pw.Verify(input.Password, user.PasswordHash) {
			return nil, newAuthError("invalid_credentials", "Wrong password.", http.StatusUnauthorized, domain.ErrUnauthenticated)
		}
	default:
		if err := s.codes.Verify(ctx, verification.PurposeLogin, identifier, input.Code); err != nil {
			span.RecordError(err)
			if errors.Is(err, domain.ErrCodeInvalidOrExpired) {
				return nil, newAuthError("invalid_code", "Verification code is wrong or expired.", http.StatusBadRequest, domain.ErrCodeInvalidOrExpired)
			}
			return nil, fmt.Errorf("verify login code: %w", err)
		}
		user, err = s.users.GetByEmail(ctx, identifier)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil, newAuthError("invalid_credentials", "Email is not registered.", http.StatusBadRequest, domain.ErrUserNotFound)
			}
			return nil, fmt.Errorf("load user: %w", err)
		}
	}

	if err := s.attempts.Reset(ctx, identifier); err != nil {
		span.RecordError(err)
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("login.success", "user_id", user.ID)
	return pair, nil
}

// Refresh consumes a refresh token and mints a new access token. The refresh
// mapping stays valid until its own TTL expires; there is no rotation.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, invalidInput("Refresh token is required.")
	}

	userID, err := s.validator.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrTokenInvalid) {
			return nil, newAuthError("invalid_refresh_token", "Refresh token is no longer valid.", http.StatusForbidden, domain.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, newAuthError("invalid_refresh_token", "Account no longer exists.", http.StatusUnauthorized, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	access, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.audit("refresh.success", "user_id", user.ID)
	return &RefreshResult{AccessToken: access, ExpiresIn: int(s.issuer.AccessTTL().Seconds())}, nil
}

// Logout blacklists the presented access token for its remaining lifetime and
// deletes the refresh mapping when one is supplied.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	if strings.TrimSpace(accessToken) == "" {
		return invalidInput("Access token is required.")
	}
	if err := s.validator.Revoke(ctx, accessToken); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke access token: %w", err)
	}
	if strings.TrimSpace(refreshToken) != "" {
		if err := s.validator.RevokeRefresh(ctx, refreshToken); err != nil {
			span.RecordError(err)
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	s.audit("logout.success")
	return nil
}

// ValidateAccess verifies a bearer token and returns its identity claims.
func (s *AuthService) ValidateAccess(ctx context.Context, value string) (*token.Claims, error) {
	return s.validator.Validate(ctx, value)
}

// GetUser loads the profile view for an authenticated user id.
func (s *AuthService) GetUser(ctx context.Context, id int64) (UserViewModel, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return UserViewModel{}, newAuthError("not_found", "Account no longer exists.", http.StatusUnauthorized, domain.ErrUserNotFound)
		}
		return UserViewModel{}, fmt.Errorf("load user: %w", err)
	}
	return viewOf(user), nil
}

// EnsureAdmin creates the configured admin account when it is missing. A
// blank admin config skips the bootstrap.
func (s *AuthService) EnsureAdmin(ctx context.Context) error {
	email := normalizeEmail(s.cfg.AdminEmail)
	if email == "" || strings.TrimSpace(s.cfg.AdminPassword) == "" {
		s.log().Info("admin bootstrap skipped, no admin configured")
		return nil
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	odacc, err := s.generateOdacc(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap odacc: %w", err)
	}
	hash, err := pw.Hash(s.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:           s.node.Generate().Int64(),
		Odacc:        odacc,
		Nickname:     "Admin",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	s.log().Info("bootstrap admin user created",
		zap.String("email", created.Email), zap.Int64("user_id", created.ID))
	return nil
}

// generateOdacc draws a random 6-8 digit account handle and retries until it
// does not collide with an existing account.
func (s *AuthService) generateOdacc(ctx context.Context) (string, error) {
	for {
		length, err := rand.Int(rand.Reader, big.NewInt(3))
		if err != nil {
			return "", err
		}
		digits := make([]byte, 6+length.Int64())
		for i := range digits {
			limit := int64(10)
			if i == 0 {
				limit = 9
			}
			n, err := rand.Int(rand.Reader, big.NewInt(limit))
			if err != nil {
				return "", err
			}
			if i == 0 {
				digits[i] = byte('1' + n.Int64())
			} else {
				digits[i] = byte('0' + n.Int64())
			}
		}
		candidate := string(digits)

		exists, err := s.users.OdaccExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (s *AuthService) issueTokens(ctx context.Context, user domain.User) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.issuer.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.issuer.AccessTTL().Seconds()),
		User:         viewOf(user),
	}, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
