// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInternal):
		return http.StatusInternalServerError
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrDuplicateEmail),
		errors.Is(err, shared.ErrUserNotFound),
		errors.Is(err, shared.ErrTokenInvalid),
		errors.Is(err, shared.ErrTokenExpired):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="crm-auth"`)
	}
	detail := shared.UserSafeMessage(err)
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, http.StatusText(status), detail)
}
