package service_test

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odilabs/odi-auth/internal/config"
	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/kv"
	"github.com/odilabs/odi-auth/internal/service"
	"github.com/odilabs/odi-auth/internal/throttle"
	"github.com/odilabs/odi-auth/internal/token"
	"github.com/odilabs/odi-auth/internal/verification"
)

type memoryUsers struct {
	mu   sync.Mutex
	byID map[int64]domain.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[int64]domain.User{}}
}

func (m *memoryUsers) FindByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == identifier || u.Odacc == identifier {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *memoryUsers) GetByID(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *memoryUsers) CountByEmail(ctx context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, u := range m.byID {
		if u.Email == email {
			count++
		}
	}
	return count, nil
}

func (m *memoryUsers) OdaccExists(ctx context.Context, odacc string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Odacc == odacc {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = time.Now()
	m.byID[user.ID] = user
	return user, nil
}

type captureNotifier struct {
	mu    sync.Mutex
	codes []string
}

func (n *captureNotifier) Deliver(ctx context.Context, target, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.codes)
	return n.codes[len(n.codes)-1]
}

type fixture struct {
	svc    *service.AuthService
	users  *memoryUsers
	store  *kv.MemoryStore
	sender *captureNotifier
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	store := kv.NewMemoryStore()
	sender := &captureNotifier{}
	users := newMemoryUsers()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	access := []byte("access-secret-access-secret-1234")
	refresh := []byte("refresh-secret-refresh-secret-12")
	svc := service.NewAuthService(
		users,
		verification.NewManager(store, sender, zap.NewNop()),
		throttle.NewLogin(store, 5, 600*time.Second),
		token.NewIssuer(access, refresh, 2*time.Hour, 7*24*time.Hour, store),
		token.NewValidator(access, store),
		node,
		nil,
		cfg,
		zap.NewNop(),
	)
	return &fixture{svc: svc, users: users, store: store, sender: sender}
}

func (f *fixture) register(t *testing.T, email, password string) *service.RegisterResult {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.SendCode(ctx, email, "register"))
	result, err := f.svc.Register(ctx, service.RegisterInput{
		Email:           email,
		Code:            f.sender.lastCode(t),
		Password:        password,
		ConfirmPassword: password,
	})
	require.NoError(t, err)
	return result
}

func requireAuthError(t *testing.T, err error, code string, status int) *service.AuthError {
	t.Helper()
	require.Error(t, err)
	authErr, ok := err.(*service.AuthError)
	require.True(t, ok, "expected *service.AuthError, got %T: %v", err, err)
	require.Equal(t, code, authErr.Code)
	require.Equal(t, status, authErr.Status)
	return authErr
}

func TestSendCodeCooldown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	now := time.Now()
	f.store.SetClock(func() time.Time { return now })

	require.NoError(t, f.svc.SendCode(ctx, "a@x.com", "register"))

	err := f.svc.SendCode(ctx, "a@x.com", "register")
	authErr := requireAuthError(t, err, "cooldown", http.StatusTooManyRequests)
	require.Equal(t, 60*time.Second, authErr.RetryAfter)
	require.ErrorIs(t, err, domain.ErrCooldown)
}

func TestSendCodeRequiresEmailAndPurpose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	err := f.svc.SendCode(ctx, "", "register")
	requireAuthError(t, err, "invalid_request", http.StatusBadRequest)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	err = f.svc.SendCode(ctx, "a@x.com", "")
	requireAuthError(t, err, "invalid_request", http.StatusBadRequest)
}

func TestRegisterCreatesAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	result := f.register(t, "a@x.com", "passw0rd")
	require.NotZero(t, result.UserID)
	require.Regexp(t, regexp.MustCompile(`^[1-9]\d{5,7}$`), result.Odacc)

	user, err := f.users.GetByID(ctx, result.UserID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", user.Email)
	require.Equal(t, domain.RoleUser, user.Role)
	require.Equal(t, "user"+result.Odacc[:4], user.Nickname)
	require.NotEqual(t, "passw0rd", user.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	require.NoError(t, f.svc.SendCode(ctx, "a@x.com", "register"))
	code := f.sender.lastCode(t)

	cases := []struct {
		name  string
		input service.RegisterInput
	}{
		{"missing email", service.RegisterInput{Code: code, Password: "passw0rd", ConfirmPassword: "passw0rd"}},
		{"missing code", service.RegisterInput{Email: "a@x.com", Password: "passw0rd", ConfirmPassword: "passw0rd"}},
		{"password mismatch", service.RegisterInput{Email: "a@x.com", Code: code, Password: "passw0rd", ConfirmPassword: "other0ne"}},
		{"too short", service.RegisterInput{Email: "a@x.com", Code: code, Password: "pass1", ConfirmPassword: "pass1"}},
		{"no digits", service.RegisterInput{Email: "a@x.com", Code: code, Password: "password", ConfirmPassword: "password"}},
		{"no letters", service.RegisterInput{Email: "a@x.com", Code: code, Password: "12345678", ConfirmPassword: "12345678"}},
		{"bad birthday", service.RegisterInput{Email: "a@x.com", Code: code, Password: "passw0rd", ConfirmPassword: "passw0rd", Birthday: "01/02/1990"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.input)
			requireAuthError(t, err, "invalid_request", http.StatusBadRequest)
		})
	}

	// The code survived all the rejected attempts above.
	_, err := f.svc.Register(ctx, service.RegisterInput{
		Email: "a@x.com", Code: code, Password: "passw0rd", ConfirmPassword: "passw0rd",
	})
	require.NoError(t, err)
}

func TestRegisterRejectsWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	require.NoError(t, f.svc.SendCode(ctx, "a@x.com", "register"))
	code := f.sender.lastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	_, err := f.svc.Register(ctx, service.RegisterInput{
		Email: "a@x.com", Code: wrong, Password: "passw0rd", ConfirmPassword: "passw0rd",
	})
	requireAuthError(t, err, "invalid_code", http.StatusBadRequest)
}

func TestRegisterCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	require.NoError(t, f.svc.SendCode(ctx, "a@x.com", "register"))
	code := f.sender.lastCode(t)

	input := service.RegisterInput{
		Email: "a@x.com", Code: code, Password: "passw0rd", ConfirmPassword: "passw0rd",
	}
	_, err := f.svc.Register(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, input)
	requireAuthError(t, err, "invalid_code", http.StatusBadRequest)
}

func TestRegisterEnforcesAccountLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	store := f.store
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		f.register(t, "a@x.com", "passw0rd")
		now = now.Add(61 * time.Second)
	}

	require.NoError(t, f.svc.SendCode(ctx, "a@x.com", "register"))
	_, err := f.svc.Register(ctx, service.RegisterInput{
		Email: "a@x.com", Code: f.sender.lastCode(t), Password: "passw0rd", ConfirmPassword: "passw0rd",
	})
	requireAuthError(t, err, "account_limit", http.StatusBadRequest)

	// The cap rejection must not burn the code.
	exists, err := store.Exists(ctx, "verify:register:a@x.com")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLoginWithPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	result := f.register(t, "a@x.com", "passw0rd")

	pair, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "passw0rd"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int((2 * time.Hour).Seconds()), pair.ExpiresIn)
	require.Equal(t, result.UserID, pair.User.ID)

	claims, err := f.svc.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, result.UserID, claims.ID)

	// The ODACC handle works as identifier too.
	_, err = f.svc.Login(ctx, service.LoginInput{Identifier: result.Odacc, Password: "passw0rd"})
	require.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	f.register(t, "a@x.com", "passw0rd")

	_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "nobody@x.com", Password: "passw0rd"})
	requireAuthError(t, err, "invalid_credentials", http.StatusBadRequest)

	_, err = f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "wrongpw99"})
	requireAuthError(t, err, "invalid_credentials", http.StatusUnauthorized)

	_, err = f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com"})
	requireAuthError(t, err, "invalid_request", http.StatusBadRequest)
}

func TestLoginWithCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	f.register(t, "a@x.com", "passw0rd")

	require.NoError(t, f.svc.SendCode(ctx, "a@x.com", "login"))
	pair, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Code: f.sender.lastCode(t)})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestLoginCodeForUnregisteredEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	require.NoError(t, f.svc.SendCode(ctx, "nobody@x.com", "login"))
	_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "nobody@x.com", Code: f.sender.lastCode(t)})
	requireAuthError(t, err, "invalid_credentials", http.StatusBadRequest)
}

func TestLoginThrottleBlocksSixthAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	f.register(t, "a@x.com", "passw0rd")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "wrongpw99"})
		requireAuthError(t, err, "invalid_credentials", http.StatusUnauthorized)
	}

	// Even the right password is rejected once the window is saturated.
	_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "passw0rd"})
	authErr := requireAuthError(t, err, "too_many_attempts", http.StatusTooManyRequests)
	require.Equal(t, 600*time.Second, authErr.RetryAfter)
	require.ErrorIs(t, err, domain.ErrThrottled)
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	f.register(t, "a@x.com", "passw0rd")

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "wrongpw99"})
		requireAuthError(t, err, "invalid_credentials", http.StatusUnauthorized)
	}

	_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "passw0rd"})
	require.NoError(t, err)

	// The counter restarted, so a full set of fresh attempts is available.
	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "wrongpw99"})
		requireAuthError(t, err, "invalid_credentials", http.StatusUnauthorized)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	result := f.register(t, "a@x.com", "passw0rd")

	pair, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "passw0rd"})
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)

	claims, err := f.svc.ValidateAccess(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, result.UserID, claims.ID)

	// Refresh tokens are reusable until they expire.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	_, err := f.svc.Refresh(ctx, "bogus")
	requireAuthError(t, err, "invalid_refresh_token", http.StatusForbidden)

	_, err = f.svc.Refresh(ctx, "")
	requireAuthError(t, err, "invalid_request", http.StatusBadRequest)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	f.register(t, "a@x.com", "passw0rd")

	pair, err := f.svc.Login(ctx, service.LoginInput{Identifier: "a@x.com", Password: "passw0rd"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	_, err = f.svc.ValidateAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireAuthError(t, err, "invalid_refresh_token", http.StatusForbidden)
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})
	result := f.register(t, "a@x.com", "passw0rd")

	view, err := f.svc.GetUser(ctx, result.UserID)
	require.NoError(t, err)
	require.Equal(t, result.UserID, view.ID)
	require.Equal(t, "a@x.com", view.Email)

	_, err = f.svc.GetUser(ctx, 999)
	requireAuthError(t, err, "not_found", http.StatusUnauthorized)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{AdminEmail: "admin@x.com", AdminPassword: "adminpw99"})

	require.NoError(t, f.svc.EnsureAdmin(ctx))
	admin, err := f.users.GetByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)

	// Second run is a no-op.
	require.NoError(t, f.svc.EnsureAdmin(ctx))
	count, err := f.users.CountByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Admin can log in with the configured password.
	_, err = f.svc.Login(ctx, service.LoginInput{Identifier: "admin@x.com", Password: "adminpw99"})
	require.NoError(t, err)
}

func TestEnsureAdminSkippedWhenUnconfigured(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	require.NoError(t, f.svc.EnsureAdmin(ctx))
	count, err := f.users.CountByEmail(ctx, "")
	require.NoError(t, err)
	require.Zero(t, count)
}
