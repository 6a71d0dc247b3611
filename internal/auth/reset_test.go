package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

type notification struct {
	email     string
	rawToken  string
	expiresAt time.Time
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *captureNotifier) NotifyReset(ctx context.Context, email, rawToken string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{email: email, rawToken: rawToken, expiresAt: expiresAt})
	return n.err
}

func TestForgotPasswordStoresOnlyHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")

	ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Len(t, ticket.RawToken, 64)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), ticket.ExpiresAt)

	stored, err := f.dir.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	require.True(t, stored.HasPendingReset())
	assert.NotEqual(t, ticket.RawToken, *stored.ResetTokenHash)
	assert.Equal(t, ticket.ExpiresAt, *stored.ResetTokenExpiry)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.resets.ForgotPassword(context.Background(), "ghost@x.io")
	require.ErrorIs(t, err, shared.ErrUserNotFound)
}

type countingHasher struct {
	PasswordHasher
	mu     sync.Mutex
	hashes int
}

func (h *countingHasher) Hash(secret string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return h.PasswordHasher.Hash(secret)
}

func TestForgotPasswordHashesForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.io", "pw123456")
	hasher := &countingHasher{PasswordHasher: f.hasher}
	resets := NewResetTokenManager(f.dir, hasher, nil, f.audit, f.cfg, nil)

	_, err := resets.ForgotPassword(context.Background(), "a@x.io")
	require.NoError(t, err)
	known := hasher.hashes

	_, err = resets.ForgotPassword(context.Background(), "ghost@x.io")
	require.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Equal(t, 2*known, hasher.hashes)
}

func TestResetTokenExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted just before expiry", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "a@x.io", "pw123456")
		ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
		require.NoError(t, err)

		f.clock.Advance(14*time.Minute + 59*time.Second)
		require.NoError(t, f.resets.VerifyResetToken(ctx, "a@x.io", ticket.RawToken))
		require.NoError(t, f.resets.ResetPassword(ctx, "a@x.io", ticket.RawToken, "new-secret"))
	})

	t.Run("rejected just after expiry", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "a@x.io", "pw123456")
		ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
		require.NoError(t, err)

		f.clock.Advance(15*time.Minute + time.Second)
		require.ErrorIs(t, f.resets.VerifyResetToken(ctx, "a@x.io", ticket.RawToken), shared.ErrTokenExpired)
		require.ErrorIs(t, f.resets.ResetPassword(ctx, "a@x.io", ticket.RawToken, "new-secret"), shared.ErrTokenExpired)

		_, err = f.credentials.SignIn(ctx, "a@x.io", "pw123456")
		require.NoError(t, err)
	})
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")
	ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)

	require.NoError(t, f.resets.ResetPassword(ctx, "a@x.io", ticket.RawToken, "new-secret"))

	stored, err := f.dir.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiry)

	err = f.resets.ResetPassword(ctx, "a@x.io", ticket.RawToken, "another-secret")
	require.ErrorIs(t, err, shared.ErrTokenInvalid)

	_, err = f.credentials.SignIn(ctx, "a@x.io", "new-secret")
	require.NoError(t, err)
	assert.Contains(t, f.audit.actions(), "auth.password_reset")
}

func TestSecondForgotInvalidatesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")

	first, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)

	require.ErrorIs(t, f.resets.VerifyResetToken(ctx, "a@x.io", first.RawToken), shared.ErrTokenInvalid)
	require.ErrorIs(t, f.resets.ResetPassword(ctx, "a@x.io", first.RawToken, "new-secret"), shared.ErrTokenInvalid)
	require.NoError(t, f.resets.VerifyResetToken(ctx, "a@x.io", second.RawToken))
}

func TestVerifyResetTokenFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")

	require.ErrorIs(t, f.resets.VerifyResetToken(ctx, "a@x.io", "anything"), shared.ErrTokenInvalid)
	require.ErrorIs(t, f.resets.VerifyResetToken(ctx, "ghost@x.io", "anything"), shared.ErrTokenInvalid)

	_, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)
	require.ErrorIs(t, f.resets.VerifyResetToken(ctx, "a@x.io", "wrong-token"), shared.ErrTokenInvalid)
}

func TestVerifyResetTokenIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")
	ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)
	writes := f.dir.Writes()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.resets.VerifyResetToken(ctx, "a@x.io", ticket.RawToken))
	}
	assert.Equal(t, writes, f.dir.Writes())
}

func TestConcurrentResetOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")
	ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.resets.ResetPassword(ctx, "a@x.io", ticket.RawToken, "new-secret")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrTokenInvalid)
	}
	assert.Equal(t, 1, ok)
}

func TestForgotPasswordNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")
	notifier := &captureNotifier{err: errors.New("queue down")}
	mgr := NewResetTokenManager(f.dir, f.hasher, notifier, nil, f.cfg, nil)

	ticket, err := mgr.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "a@x.io", notifier.sent[0].email)
	assert.Equal(t, ticket.RawToken, notifier.sent[0].rawToken)
}

func TestResetPasswordValidatesSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw123456")
	ticket, err := f.resets.ForgotPassword(ctx, "a@x.io")
	require.NoError(t, err)

	require.ErrorIs(t, f.resets.ResetPassword(ctx, "a@x.io", ticket.RawToken, "abc"), shared.ErrValidation)
	require.NoError(t, f.resets.VerifyResetToken(ctx, "a@x.io", ticket.RawToken))
}
