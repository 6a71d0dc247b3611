package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

// dummySecret is hashed once so unknown identifiers cost the same compare as known ones.
const dummySecret = "crm-auth:unknown-identifier"

// CredentialService wraps login and registration rules.
type CredentialService struct {
	dir       users.Directory
	hasher    PasswordHasher
	tokens    *TokenIssuer
	audit     AuditRecorder
	cfg       Config
	validator *validator.Validate
	logger    *slog.Logger
	dummyHash string
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(dir users.Directory, hasher PasswordHasher, tokens *TokenIssuer, audit AuditRecorder, cfg Config, logger *slog.Logger) *CredentialService {
	dummy, err := hasher.Hash(dummySecret)
	if err != nil && logger != nil {
		logger.Warn("prepare dummy hash", slog.Any("error", err))
	}
	return &CredentialService{
		dir:       dir,
		hasher:    hasher,
		tokens:    tokens,
		audit:     audit,
		cfg:       cfg,
		validator: shared.NewValidator(),
		logger:    logger,
		dummyHash: dummy,
	}
}

// SignIn validates identifier/secret and issues a token. A missing user, a wrong secret
// and (when RequireActive is set) a locked user all yield ErrInvalidCredentials.
func (s *CredentialService) SignIn(ctx context.Context, identifier, secret string) (AuthResult, error) {
	user, err := s.dir.FindByEmail(ctx, identifier)
	if err != nil {
		if !errors.Is(err, shared.ErrUserNotFound) {
			return AuthResult{}, shared.Internal("find user by email", err)
		}
		_, _ = s.hasher.Compare(secret, s.dummyHash)
		return AuthResult{}, invalidCredentials()
	}
	ok, err := s.hasher.Compare(secret, user.PasswordHash)
	if err != nil {
		return AuthResult{}, err
	}
	if !ok {
		return AuthResult{}, invalidCredentials()
	}
	if s.cfg.RequireActive && !user.IsActive {
		return AuthResult{}, invalidCredentials()
	}
	result, err := s.tokens.Issue(Identity{Subject: user.ID, Username: user.Email})
	if err != nil {
		return AuthResult{}, err
	}
	s.record(ctx, user.ID, "auth.login", user.ID, nil)
	return result, nil
}

// Register creates a local account. The returned user still carries its hash; callers
// expose it through users.User.Public.
func (s *CredentialService) Register(ctx context.Context, profile RegisterProfile) (*users.User, error) {
	if err := shared.ValidateStruct(s.validator, profile); err != nil {
		return nil, err
	}
	if len(profile.Secret) > MaxSecretBytes {
		return nil, shared.Validation("secret must be at most 72 bytes long")
	}
	accountType, ok := users.ParseAccountType(profile.AccountType)
	if !ok {
		return nil, shared.Validation("accountType must be one of local, google, facebook")
	}

	_, err := s.dir.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return nil, oops.Code("AUTH_DUPLICATE_EMAIL").With("email", profile.Email).Wrap(shared.ErrDuplicateEmail)
	case !errors.Is(err, shared.ErrUserNotFound):
		return nil, shared.Internal("find user by email", err)
	}

	hash, err := s.hasher.Hash(profile.Secret)
	if err != nil {
		return nil, err
	}
	user, err := s.dir.Create(ctx, users.NewUser{
		Name:         profile.Name,
		Email:        profile.Email,
		PasswordHash: hash,
		Phone:        profile.Phone,
		Address:      profile.Address,
		Image:        profile.Image,
		Role:         users.RoleUser,
		AccountType:  accountType,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, shared.Internal("create user", err)
	}
	s.record(ctx, user.ID, "auth.register", user.ID, map[string]any{"account_type": string(accountType)})
	return user, nil
}

// Profile returns the current projection of user id.
func (s *CredentialService) Profile(ctx context.Context, id string) (users.PublicUser, error) {
	user, err := s.dir.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return users.PublicUser{}, err
		}
		return users.PublicUser{}, shared.Internal("find user by id", err)
	}
	return user.Public(), nil
}

// ChangePassword replaces the secret of user id after checking the current one.
func (s *CredentialService) ChangePassword(ctx context.Context, id, current, next string) error {
	if len(next) < 6 || len(next) > MaxSecretBytes {
		return shared.Validation("newSecret must be between 6 and 72 characters long")
	}
	user, err := s.dir.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return invalidCredentials()
		}
		return shared.Internal("find user by id", err)
	}
	ok, err := s.hasher.Compare(current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return invalidCredentials()
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.dir.UpdatePassword(ctx, user.ID, hash); err != nil {
		return shared.Internal("update password", err)
	}
	s.record(ctx, user.ID, "auth.password_change", user.ID, nil)
	return nil
}

func (s *CredentialService) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: id, Meta: meta}); err != nil {
		shared.LogError(s.logger, "record audit", err)
	}
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(shared.ErrInvalidCredentials)
}
