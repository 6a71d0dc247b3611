package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

func googleProfile(email string) ExternalProfile {
	return ExternalProfile{
		Provider:  users.AccountGoogle,
		Subject:   "1098",
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Picture:   "https://example.com/ada.png",
	}
}

func TestOAuthFirstLoginCreatesOneUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.bridge.ResolveExternalIdentity(ctx, googleProfile("new@x.io"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.dir.Len())
	assert.Equal(t, "Ada Lovelace", first.Name)
	assert.Equal(t, users.AccountGoogle, first.AccountType)
	assert.Equal(t, users.RoleUser, first.Role)

	result, err := f.bridge.CompleteLogin(ctx, first)
	require.NoError(t, err)
	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claims.Subject)
	assert.Equal(t, "new@x.io", claims.Username)
	assert.Equal(t, SessionUser{
		ID:    first.ID,
		Name:  "Ada Lovelace",
		Email: "new@x.io",
		Image: "https://example.com/ada.png",
		Role:  users.RoleUser,
	}, result.User)

	writes := f.dir.Writes()
	second, err := f.bridge.ResolveExternalIdentity(ctx, googleProfile("new@x.io"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.dir.Len())
	assert.Equal(t, writes, f.dir.Writes())
}

func TestOAuthReusesLocalAccount(t *testing.T) {
	f := newFixture(t)
	local := f.register(t, "a@x.io", "pw123456")

	u, err := f.bridge.ResolveExternalIdentity(context.Background(), googleProfile("a@x.io"))
	require.NoError(t, err)
	assert.Equal(t, local.ID, u.ID)
	assert.Equal(t, users.AccountLocal, u.AccountType)

	_, err = f.credentials.SignIn(context.Background(), "a@x.io", "pw123456")
	require.NoError(t, err)
}

func TestOAuthConcurrentFirstLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := f.bridge.ResolveExternalIdentity(ctx, googleProfile("race@x.io"))
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.dir.Len())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

// ctxDirectory fails lookups once the caller's context is done, like a
// database driver would.
type ctxDirectory struct {
	users.Directory
}

func (d ctxDirectory) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Directory.FindByEmail(ctx, email)
}

func (d ctxDirectory) Create(ctx context.Context, in users.NewUser) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Directory.Create(ctx, in)
}

func TestOAuthSharedLookupIgnoresCallerCancel(t *testing.T) {
	f := newFixture(t)
	bridge := NewOAuthBridge(ctxDirectory{f.dir}, f.hasher, f.tokens, f.audit, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u, err := bridge.ResolveExternalIdentity(ctx, googleProfile("late@x.io"))
	require.NoError(t, err)
	assert.Equal(t, "late@x.io", u.Email)
	assert.Equal(t, 1, f.dir.Len())
}

func TestOAuthMissingEmailIsInternal(t *testing.T) {
	f := newFixture(t)
	_, err := f.bridge.ResolveExternalIdentity(context.Background(), ExternalProfile{Subject: "1"})
	require.ErrorIs(t, err, shared.ErrInternal)
	assert.Zero(t, f.dir.Len())
}
