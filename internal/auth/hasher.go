package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

// MaxSecretBytes is bcrypt's input limit. It is counted in bytes, not characters.
const MaxSecretBytes = 72

// PasswordHasher hashes secrets one way and compares them in constant time.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(secret, hashed string) (bool, error)
}

// BcryptHasher implements PasswordHasher with bcrypt. The salt is generated per call
// and embedded in the output.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given work factor. Out of range costs fall
// back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt hash of secret. Secrets over MaxSecretBytes are a validation error.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", shared.Validation("secret must be at most 72 bytes long")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", shared.Internal("hash secret", err)
	}
	return string(out), nil
}

// Compare reports whether secret matches hashed. A malformed hash is an internal error.
func (h *BcryptHasher) Compare(secret, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, shared.Internal("compare secret", err)
	}
}

var _ PasswordHasher = (*BcryptHasher)(nil)
