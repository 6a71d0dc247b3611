package users

import (
	"context"
	"time"
)

// Directory is the persistent store of user records.
//
// Lookups report a missing user as shared.ErrUserNotFound. Create reports an
// existing email as shared.ErrDuplicateEmail. Any other error is a storage failure.
type Directory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, in NewUser) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error
	// ConsumeResetToken replaces the password and clears the reset token in one
	// conditional write. It applies only while the stored token hash equals
	// tokenHash and the expiry is not before now, and reports whether it applied.
	ConsumeResetToken(ctx context.Context, id, tokenHash string, now time.Time, passwordHash string) (bool, error)
	UpdateRole(ctx context.Context, id string, role Role) error
	SetActive(ctx context.Context, id string, active bool) error
}
