package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

// MemoryDirectory keeps users in process memory. It backs USER_STORE=memory and tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
	writes  int
}

// NewMemoryDirectory constructs an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Writes returns the number of successful mutations applied so far.
func (d *MemoryDirectory) Writes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.writes
}

// Len returns the number of stored users.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// FindByID returns a copy of the user with id.
func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(shared.ErrUserNotFound)
	}
	return clone(u), nil
}

// FindByEmail returns a copy of the user with email.
func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(shared.ErrUserNotFound)
	}
	return clone(d.byID[id]), nil
}

// List returns all users ordered by creation time.
func (d *MemoryDirectory) List(ctx context.Context) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, *clone(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create stores a new user.
func (d *MemoryDirectory) Create(ctx context.Context, in NewUser) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[in.Email]; exists {
		return nil, oops.Code("USER_DUPLICATE_EMAIL").With("email", in.Email).Wrap(shared.ErrDuplicateEmail)
	}
	now := d.now()
	u := &User{
		ID:           ulid.Make().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Phone:        in.Phone,
		Address:      in.Address,
		Image:        in.Image,
		Role:         in.Role,
		AccountType:  in.AccountType,
		IsActive:     in.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.byID[u.ID] = u
	d.byEmail[u.Email] = u.ID
	d.writes++
	return clone(u), nil
}

// UpdatePassword replaces the password hash.
func (d *MemoryDirectory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return d.mutate(id, func(u *User) {
		u.PasswordHash = passwordHash
	})
}

// UpdateResetToken stores a new reset token, replacing any outstanding one.
func (d *MemoryDirectory) UpdateResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	return d.mutate(id, func(u *User) {
		hash := tokenHash
		exp := expiry
		u.ResetTokenHash = &hash
		u.ResetTokenExpiry = &exp
	})
}

// ConsumeResetToken swaps the password and clears the token under one lock.
func (d *MemoryDirectory) ConsumeResetToken(ctx context.Context, id, tokenHash string, now time.Time, passwordHash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return false, nil
	}
	if !u.HasPendingReset() || *u.ResetTokenHash != tokenHash || u.ResetTokenExpiry.Before(now) {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiry = nil
	u.UpdatedAt = d.now()
	d.writes++
	return true, nil
}

// UpdateRole assigns role.
func (d *MemoryDirectory) UpdateRole(ctx context.Context, id string, role Role) error {
	return d.mutate(id, func(u *User) {
		u.Role = role
	})
}

// SetActive locks or unlocks the user.
func (d *MemoryDirectory) SetActive(ctx context.Context, id string, active bool) error {
	return d.mutate(id, func(u *User) {
		u.IsActive = active
	})
}

func (d *MemoryDirectory) mutate(id string, fn func(*User)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(shared.ErrUserNotFound)
	}
	fn(u)
	u.UpdatedAt = d.now()
	d.writes++
	return nil
}

func clone(u *User) *User {
	c := *u
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if u.ResetTokenExpiry != nil {
		e := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &e
	}
	return &c
}

var _ Directory = (*MemoryDirectory)(nil)
