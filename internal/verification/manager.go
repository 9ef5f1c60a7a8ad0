package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/kv"
	"github.com/odilabs/odi-auth/internal/notifier"
)

// Purpose is the functional category a verification code is issued for.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeLogin    Purpose = "login"
	PurposeResetPwd Purpose = "resetPwd"
)

// Policy controls issuance for a purpose: how long a code stays valid, the
// minimum interval between two sends, and the code length in digits.
type Policy struct {
	Expire   time.Duration
	Cooldown time.Duration
	Length   int
}

var defaultPolicies = map[Purpose]Policy{
	PurposeRegister: {Expire: 300 * time.Second, Cooldown: 60 * time.Second, Length: 6},
	PurposeLogin:    {Expire: 180 * time.Second, Cooldown: 30 * time.Second, Length: 6},
	PurposeResetPwd: {Expire: 120 * time.Second, Cooldown: 30 * time.Second, Length: 6},
}

var fallbackPolicy = Policy{Expire: 300 * time.Second, Cooldown: 60 * time.Second, Length: 6}

// CooldownError reports how long the caller must wait before requesting
// another code for the same (purpose, target).
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("code requested too soon, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *CooldownError) Is(target error) bool {
	return target == domain.ErrCooldown
}

// Manager issues and validates one-time verification codes per
// (purpose, target) pair, backed by the shared store.
type Manager struct {
	store    kv.Store
	notifier notifier.Notifier
	policies map[Purpose]Policy
	logger   *zap.Logger
}

// NewManager wires a code manager with the default per-purpose policies.
func NewManager(store kv.Store, sender notifier.Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.L()
	}
	return &Manager{
		store:    store,
		notifier: sender,
		policies: defaultPolicies,
		logger:   logger,
	}
}

func codeKey(purpose Purpose, target string) string {
	return fmt.Sprintf("verify:%s:%s", purpose, target)
}

func lockKey(purpose Purpose, target string) string {
	return fmt.Sprintf("verify:%s:lock:%s", purpose, target)
}

// Issue generates a random code for (purpose, target), stores it with the
// policy expiry, arms the cooldown lock, and hands the code to the notifier.
// When delivery fails the already-written records stay in place: the user is
// locked out for at most one cooldown window, which bounds the damage.
// The generated code is returned for logging and tests.
func (m *Manager) Issue(ctx context.Context, purpose Purpose, target string) (string, error) {
	policy := m.policy(purpose)

	locked, err := m.store.Exists(ctx, lockKey(purpose, target))
	if err != nil {
		return "", fmt.Errorf("check cooldown: %w", err)
	}
	if locked {
		remaining, err := m.store.TTL(ctx, lockKey(purpose, target))
		if err != nil || remaining <= 0 {
			remaining = policy.Cooldown
		}
		return "", &CooldownError{RetryAfter: remaining}
	}

	code, err := randomCode(policy.Length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	if err := m.store.Set(ctx, codeKey(purpose, target), code, policy.Expire); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	if err := m.store.Set(ctx, lockKey(purpose, target), "1", policy.Cooldown); err != nil {
		return "", fmt.Errorf("store cooldown lock: %w", err)
	}

	if err := m.notifier.Deliver(ctx, target, code); err != nil {
		m.logger.Warn("code delivery failed after records were written",
			zap.String("purpose", string(purpose)), zap.String("target", target), zap.Error(err))
		return "", fmt.Errorf("deliver code: %w: %v", domain.ErrUnavailable, err)
	}

	m.logger.Info("verification code issued",
		zap.String("purpose", string(purpose)), zap.String("target", target))
	return code, nil
}

// Verify checks the submitted code against the stored one and consumes it on
// match. The cooldown lock is left to expire on its own. A second Verify with
// the same code fails: codes are single-use.
func (m *Manager) Verify(ctx context.Context, purpose Purpose, target, submitted string) error {
	stored, ok, err := m.store.Get(ctx, codeKey(purpose, target))
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if !ok || submitted == "" || stored != submitted {
		return domain.ErrCodeInvalidOrExpired
	}
	if err := m.store.Delete(ctx, codeKey(purpose, target)); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

func (m *Manager) policy(purpose Purpose) Policy {
	if p, ok := m.policies[purpose]; ok {
		return p
	}
	return fallbackPolicy
}

// randomCode draws each digit independently from crypto/rand, so leading
// zeros are as likely as any other digit.
func randomCode(length int) (string, error) {
	if length <= 0 {
		length = fallbackPolicy.Length
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
