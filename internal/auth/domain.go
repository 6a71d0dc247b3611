package auth

import (
	"context"
	"time"

	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

// Config carries the tunables shared by the auth components.
type Config struct {
	SigningKey    []byte
	Issuer        string
	HashCost      int
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
	// RequireActive rejects locked users at login and at the guard.
	RequireActive bool
}

// DefaultConfig returns production defaults without a signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:        "crm-auth",
		HashCost:      10,
		TokenTTL:      24 * time.Hour,
		ResetTokenTTL: 15 * time.Minute,
		RequireActive: true,
	}
}

// Identity is the claim set carried by an access token.
type Identity struct {
	Subject  string
	Username string
}

// AuthResult is returned by a successful sign-in.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"-"`
}

// SessionUser is the minimal projection returned after an OAuth login.
type SessionUser struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Image string     `json:"image,omitempty"`
	Role  users.Role `json:"role"`
}

// LoginResult pairs a token with the public projection of the user.
type LoginResult struct {
	Token string      `json:"token"`
	User  SessionUser `json:"user"`
}

// RegisterProfile is the input to registration.
type RegisterProfile struct {
	Name        string `json:"name" validate:"omitempty,max=120"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Secret      string `json:"secret" validate:"required,min=6,max=72"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	Address     string `json:"address" validate:"omitempty,max=255"`
	Image       string `json:"image" validate:"omitempty,url"`
	AccountType string `json:"accountType" validate:"omitempty,oneof=local google facebook"`
}

// ExternalProfile is what an identity provider tells us about a user.
type ExternalProfile struct {
	Provider  users.AccountType
	Subject   string
	Email     string
	Name      string
	FirstName string
	LastName  string
	Picture   string
}

// DisplayName joins the available name parts.
func (p ExternalProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
