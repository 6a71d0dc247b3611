package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

func TestMemoryDirectoryCreateAndFind(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	u, err := d.Create(ctx, NewUser{Email: "a@x.io", PasswordHash: "h", Role: RoleUser, AccountType: AccountLocal, IsActive: true})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	byID, err := d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	byEmail, err := d.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, byID, byEmail)

	_, err = d.Create(ctx, NewUser{Email: "a@x.io", PasswordHash: "h2"})
	require.ErrorIs(t, err, shared.ErrDuplicateEmail)

	_, err = d.FindByID(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrUserNotFound)
	require.ErrorIs(t, d.SetActive(ctx, "missing", false), shared.ErrUserNotFound)
}

func TestMemoryDirectoryReturnsCopies(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	u, err := d.Create(ctx, NewUser{Email: "a@x.io", Role: RoleUser})
	require.NoError(t, err)
	require.NoError(t, d.UpdateResetToken(ctx, u.ID, "hash", time.Now().Add(time.Minute)))

	got, err := d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	got.Role = RoleAdmin
	*got.ResetTokenHash = "tampered"

	again, err := d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, again.Role)
	assert.Equal(t, "hash", *again.ResetTokenHash)
}

func TestMemoryDirectoryConsumeResetToken(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	u, err := d.Create(ctx, NewUser{Email: "a@x.io", PasswordHash: "old"})
	require.NoError(t, err)
	require.NoError(t, d.UpdateResetToken(ctx, u.ID, "hash", now.Add(15*time.Minute)))

	ok, err := d.ConsumeResetToken(ctx, u.ID, "other", now, "new")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.ConsumeResetToken(ctx, u.ID, "hash", now.Add(16*time.Minute), "new")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.ConsumeResetToken(ctx, u.ID, "hash", now.Add(15*time.Minute), "new")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.False(t, got.HasPendingReset())

	ok, err = d.ConsumeResetToken(ctx, u.ID, "hash", now, "again")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDirectoryConcurrentCreate(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Create(ctx, NewUser{Email: "same@x.io"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, d.Len())
}

func TestMemoryDirectoryListOrder(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	tick := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	for _, email := range []string{"c@x.io", "a@x.io", "b@x.io"} {
		_, err := d.Create(ctx, NewUser{Email: email})
		require.NoError(t, err)
	}

	list, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c@x.io", list[0].Email)
	assert.Equal(t, "b@x.io", list[2].Email)
}
