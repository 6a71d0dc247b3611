package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

// ResetNotifier delivers a raw reset token out of band.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, email, rawToken string, expiresAt time.Time) error
}

// ResetTicket is the outcome of ForgotPassword. RawToken is never persisted.
type ResetTicket struct {
	RawToken  string
	ExpiresAt time.Time
}

// ResetTokenManager drives the forgot/verify/reset handshake.
type ResetTokenManager struct {
	dir      users.Directory
	hasher   PasswordHasher
	notifier ResetNotifier
	audit    AuditRecorder
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewResetTokenManager constructs a ResetTokenManager. notifier and audit may be nil.
func NewResetTokenManager(dir users.Directory, hasher PasswordHasher, notifier ResetNotifier, audit AuditRecorder, cfg Config, logger *slog.Logger) *ResetTokenManager {
	ttl := cfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = DefaultConfig().ResetTokenTTL
	}
	return &ResetTokenManager{
		dir:      dir,
		hasher:   hasher,
		notifier: notifier,
		audit:    audit,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// ForgotPassword stores a fresh token hash on the user, replacing any pending one,
// and returns the raw token. Unknown emails yield ErrUserNotFound.
func (m *ResetTokenManager) ForgotPassword(ctx context.Context, email string) (ResetTicket, error) {
	user, err := m.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			// Unknown emails pay the same token hash as known ones.
			if raw, rerr := randomSecret(); rerr == nil {
				_, _ = m.hasher.Hash(raw)
			}
			return ResetTicket{}, err
		}
		return ResetTicket{}, shared.Internal("find user by email", err)
	}
	raw, err := randomSecret()
	if err != nil {
		return ResetTicket{}, shared.Internal("generate reset token", err)
	}
	hash, err := m.hasher.Hash(raw)
	if err != nil {
		return ResetTicket{}, err
	}
	expiresAt := m.now().Add(m.ttl)
	if err := m.dir.UpdateResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return ResetTicket{}, shared.Internal("store reset token", err)
	}
	if m.notifier != nil {
		if err := m.notifier.NotifyReset(ctx, user.Email, raw, expiresAt); err != nil {
			shared.LogError(m.logger, "notify reset", err)
		}
	}
	m.record(ctx, user.ID, "auth.password_reset_request")
	return ResetTicket{RawToken: raw, ExpiresAt: expiresAt}, nil
}

// VerifyResetToken checks rawToken without changing state.
func (m *ResetTokenManager) VerifyResetToken(ctx context.Context, email, rawToken string) error {
	_, err := m.check(ctx, email, rawToken)
	return err
}

// ResetPassword replaces the secret and clears the token in one conditional write.
// A token that lost a concurrent race is reported as ErrTokenInvalid.
func (m *ResetTokenManager) ResetPassword(ctx context.Context, email, rawToken, newSecret string) error {
	if len(newSecret) < 6 || len(newSecret) > MaxSecretBytes {
		return shared.Validation("newSecret must be between 6 and 72 characters long")
	}
	user, err := m.check(ctx, email, rawToken)
	if err != nil {
		return err
	}
	hash, err := m.hasher.Hash(newSecret)
	if err != nil {
		return err
	}
	ok, err := m.dir.ConsumeResetToken(ctx, user.ID, *user.ResetTokenHash, m.now(), hash)
	if err != nil {
		return shared.Internal("consume reset token", err)
	}
	if !ok {
		return tokenInvalid("consumed")
	}
	m.record(ctx, user.ID, "auth.password_reset")
	return nil
}

func (m *ResetTokenManager) check(ctx context.Context, email, rawToken string) (*users.User, error) {
	user, err := m.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil, tokenInvalid("unknown email")
		}
		return nil, shared.Internal("find user by email", err)
	}
	if !user.HasPendingReset() {
		return nil, tokenInvalid("no pending reset")
	}
	if m.now().After(*user.ResetTokenExpiry) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").With("user_id", user.ID).Wrap(shared.ErrTokenExpired)
	}
	ok, err := m.hasher.Compare(rawToken, *user.ResetTokenHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tokenInvalid("mismatch")
	}
	return user, nil
}

func (m *ResetTokenManager) record(ctx context.Context, id, action string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, shared.AuditLog{ActorID: id, Action: action, Entity: "user", EntityID: id}); err != nil {
		shared.LogError(m.logger, "record audit", err)
	}
}

func tokenInvalid(reason string) error {
	return oops.Code("RESET_TOKEN_INVALID").With("reason", reason).Wrap(shared.ErrTokenInvalid)
}
