package shared

import (
	"errors"

	"github.com/samber/oops"
)

var (
	// ErrInvalidCredentials indicates login failure. Missing users and wrong secrets share it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrUserNotFound indicates no user matched the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenInvalid indicates a malformed, unknown or mismatched token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates a token presented after its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthenticated indicates the request carried no bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the caller may not access the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrInternal marks failures of hashing, signing or storage.
	ErrInternal = errors.New("internal error")
)

// Internal tags err as ErrInternal while keeping the original cause in the chain.
func Internal(operation string, err error) error {
	if err == nil {
		return nil
	}
	return oops.
		Code("INTERNAL_ERROR").
		With("operation", operation).
		Wrap(errors.Join(ErrInternal, err))
}

// ValidationError carries a caller-facing detail and matches ErrValidation.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return ErrValidation.Error()
	}
	return e.Detail
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validation returns a ValidationError for detail.
func Validation(detail string) error {
	return &ValidationError{Detail: detail}
}

// UserSafeMessage returns a message that can be shown to API callers.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInternal):
		return "internal error"
	case errors.Is(err, ErrValidation):
		var verr *ValidationError
		if errors.As(err, &verr) {
			return verr.Error()
		}
		return ErrValidation.Error()
	}
	for _, known := range []error{
		ErrInvalidCredentials,
		ErrDuplicateEmail,
		ErrUserNotFound,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrUnauthenticated,
		ErrForbidden,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
