package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

// OAuthBridge turns an external identity into a local user and a token.
// It checks no secret, so it never answers InvalidCredentials or DuplicateEmail.
type OAuthBridge struct {
	dir    users.Directory
	hasher PasswordHasher
	tokens *TokenIssuer
	audit  AuditRecorder
	logger *slog.Logger
	group  singleflight.Group
}

// NewOAuthBridge constructs an OAuthBridge.
func NewOAuthBridge(dir users.Directory, hasher PasswordHasher, tokens *TokenIssuer, audit AuditRecorder, logger *slog.Logger) *OAuthBridge {
	return &OAuthBridge{dir: dir, hasher: hasher, tokens: tokens, audit: audit, logger: logger}
}

// ResolveExternalIdentity finds the user by email or creates one. Concurrent calls for
// the same email share one lookup, which runs detached from any single caller's
// cancellation.
func (b *OAuthBridge) ResolveExternalIdentity(ctx context.Context, profile ExternalProfile) (*users.User, error) {
	if profile.Email == "" {
		return nil, shared.Internal("resolve external identity", errors.New("provider profile has no email"))
	}
	detached := context.WithoutCancel(ctx)
	v, err, _ := b.group.Do(profile.Email, func() (any, error) {
		return b.findOrCreate(detached, profile)
	})
	if err != nil {
		return nil, err
	}
	u := *v.(*users.User)
	return &u, nil
}

func (b *OAuthBridge) findOrCreate(ctx context.Context, profile ExternalProfile) (*users.User, error) {
	existing, err := b.dir.FindByEmail(ctx, profile.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrUserNotFound) {
		return nil, shared.Internal("find user by email", err)
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, shared.Internal("generate federated secret", err)
	}
	hash, err := b.hasher.Hash(secret)
	if err != nil {
		return nil, shared.Internal("hash federated secret", err)
	}
	provider := profile.Provider
	if provider == "" {
		provider = users.AccountGoogle
	}
	created, err := b.dir.Create(ctx, users.NewUser{
		Name:         profile.DisplayName(),
		Email:        profile.Email,
		PasswordHash: hash,
		Image:        profile.Picture,
		Role:         users.RoleUser,
		AccountType:  provider,
		IsActive:     true,
	})
	if errors.Is(err, shared.ErrDuplicateEmail) {
		// Another instance created it between our lookup and insert.
		existing, err = b.dir.FindByEmail(ctx, profile.Email)
		if err != nil {
			return nil, shared.Internal("find user after duplicate", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, shared.Internal("create federated user", err)
	}
	if b.audit != nil {
		if err := b.audit.Record(ctx, shared.AuditLog{
			ActorID:  created.ID,
			Action:   "auth.register",
			Entity:   "user",
			EntityID: created.ID,
			Meta:     map[string]any{"account_type": string(provider)},
		}); err != nil {
			shared.LogError(b.logger, "record audit", err)
		}
	}
	return created, nil
}

// CompleteLogin issues a token for user with the same claims as SignIn.
func (b *OAuthBridge) CompleteLogin(ctx context.Context, user *users.User) (LoginResult, error) {
	result, err := b.tokens.Issue(Identity{Subject: user.ID, Username: user.Email})
	if err != nil {
		return LoginResult{}, err
	}
	if b.audit != nil {
		if err := b.audit.Record(ctx, shared.AuditLog{ActorID: user.ID, Action: "auth.oauth_login", Entity: "user", EntityID: user.ID}); err != nil {
			shared.LogError(b.logger, "record audit", err)
		}
	}
	return LoginResult{
		Token: result.Token,
		User: SessionUser{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Image: user.Image,
			Role:  user.Role,
		},
	}, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
