package users

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the closed set of authorization roles.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSales      Role = "SALES"
	RoleMarketing  Role = "MARKETING"
	RoleAccountant Role = "ACCOUNTANT"
	RoleSupport    Role = "SUPPORT"
	RoleCustomer   Role = "CUSTOMER"
	RoleUser       Role = "USER"
)

// AllRoles lists every assignable role.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleSales, RoleMarketing, RoleAccountant, RoleSupport, RoleCustomer, RoleUser}
}

// NormalizeRole upper-cases a role name for comparison.
// A Caser holds state, so one is built per call.
func NormalizeRole(name string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(name))
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(name string) (Role, bool) {
	normalized := Role(NormalizeRole(name))
	for _, r := range AllRoles() {
		if r == normalized {
			return r, true
		}
	}
	return "", false
}

// AccountType records where the account came from. It is informational only.
type AccountType string

const (
	AccountLocal    AccountType = "local"
	AccountGoogle   AccountType = "google"
	AccountFacebook AccountType = "facebook"
)

// ParseAccountType resolves an account type, defaulting empty input to local.
func ParseAccountType(name string) (AccountType, bool) {
	switch AccountType(strings.ToLower(strings.TrimSpace(name))) {
	case "", AccountLocal:
		return AccountLocal, true
	case AccountGoogle:
		return AccountGoogle, true
	case AccountFacebook:
		return AccountFacebook, true
	}
	return "", false
}

// User represents a user account.
type User struct {
	ID               string
	Name             string
	Email            string
	PasswordHash     string
	Phone            string
	Address          string
	Image            string
	Role             Role
	AccountType      AccountType
	IsActive         bool
	ResetTokenHash   *string
	ResetTokenExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPendingReset reports whether a reset token is outstanding.
func (u *User) HasPendingReset() bool {
	return u != nil && u.ResetTokenHash != nil && u.ResetTokenExpiry != nil
}

// NewUser carries the fields needed to create a user. PasswordHash must already be hashed.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Address      string
	Image        string
	Role         Role
	AccountType  AccountType
	IsActive     bool
}

// PublicUser is the projection returned to API callers. It never carries hashes.
type PublicUser struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone,omitempty"`
	Address     string      `json:"address,omitempty"`
	Image       string      `json:"image,omitempty"`
	AccountType AccountType `json:"accountType"`
	Role        Role        `json:"role"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Public strips secrets from u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Address:     u.Address,
		Image:       u.Image,
		AccountType: u.AccountType,
		Role:        u.Role,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}
