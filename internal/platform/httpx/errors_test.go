package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.Validation("bad"), http.StatusBadRequest},
		{shared.ErrDuplicateEmail, http.StatusBadRequest},
		{shared.ErrUserNotFound, http.StatusBadRequest},
		{shared.ErrTokenInvalid, http.StatusBadRequest},
		{oops.Code("RESET_TOKEN_EXPIRED").Wrap(shared.ErrTokenExpired), http.StatusBadRequest},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.Internal("op", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.Internal("insert user", errors.New("pq: password authentication failed")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password authentication")
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.Empty(t, problem.Detail)
}

func TestRespondErrorUnauthorizedChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrUnauthenticated)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="crm-auth"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"a@x.io"}`, false},
		{"unknown field", `{"email":"a@x.io","role":"ADMIN"}`, true},
		{"trailing data", `{"email":"a@x.io"}{"email":"b@x.io"}`, true},
		{"truncated", `{"email":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(req, &p)
			if tt.wantErr {
				require.ErrorIs(t, err, shared.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a@x.io", p.Email)
		})
	}
}
