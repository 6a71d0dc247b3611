package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

// Claims is the JWT payload: sub, username, iat, exp plus iss and jti.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens with a fixed lifetime.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer from cfg.
func NewTokenIssuer(cfg Config) (*TokenIssuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("auth: signing key must be provided")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("auth: token ttl must be greater than zero")
	}
	return &TokenIssuer{
		key:    cfg.SigningKey,
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for id.
func (t *TokenIssuer) Issue(id Identity) (AuthResult, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return AuthResult{}, shared.Internal("sign token", err)
	}
	return AuthResult{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
// An empty subject is not an error here; the guard decides what it means.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, oops.Code("TOKEN_INVALID").Wrap(shared.ErrTokenInvalid)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(shared.ErrTokenExpired)
		}
		return nil, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Wrap(shared.ErrTokenInvalid)
	}
	if !parsed.Valid {
		return nil, oops.Code("TOKEN_INVALID").Wrap(shared.ErrTokenInvalid)
	}
	return claims, nil
}
