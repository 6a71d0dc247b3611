package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/phucldh3004/crm-auth/internal/users"
)

type fakeGoogle struct {
	server       *httptest.Server
	userInfo     map[string]any
	lastVerifier string
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	fg := &fakeGoogle{userInfo: map[string]any{
		"sub":            "1098",
		"email":          "ada@x.io",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"picture":        "https://example.com/ada.png",
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		fg.lastVerifier = r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fg.userInfo)
	})
	fg.server = httptest.NewServer(mux)
	t.Cleanup(fg.server.Close)
	return fg
}

func (fg *fakeGoogle) provider() *GoogleProvider {
	return NewGoogleProvider(ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth/oauth/callback",
		AuthURL:      fg.server.URL + "/auth",
		TokenURL:     fg.server.URL + "/token",
		UserInfoURL:  fg.server.URL + "/userinfo",
	})
}

func TestGoogleProviderAuthCodeURL(t *testing.T) {
	p := NewGoogleProvider(ProviderConfig{ClientID: "client-id", RedirectURL: "http://localhost/cb"})
	verifier := oauth2.GenerateVerifier()

	raw := p.AuthCodeURL("state-1", verifier)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}

func TestGoogleProviderIdentify(t *testing.T) {
	fg := newFakeGoogle(t)
	verifier := oauth2.GenerateVerifier()

	profile, err := fg.provider().Identify(context.Background(), "good-code", verifier)
	require.NoError(t, err)
	assert.Equal(t, verifier, fg.lastVerifier)
	assert.Equal(t, ExternalProfile{
		Provider: users.AccountGoogle,
		Subject:  "1098",
		Email:    "ada@x.io",
		Name:     "Ada Lovelace",
		Picture:  "https://example.com/ada.png",
	}, profile)
}

func TestGoogleProviderIdentifyFailures(t *testing.T) {
	fg := newFakeGoogle(t)

	_, err := fg.provider().Identify(context.Background(), "bad-code", "v")
	require.Error(t, err)

	fg.userInfo["email_verified"] = false
	_, err = fg.provider().Identify(context.Background(), "good-code", "v")
	require.Error(t, err)

	delete(fg.userInfo, "email")
	fg.userInfo["email_verified"] = true
	_, err = fg.provider().Identify(context.Background(), "good-code", "v")
	require.Error(t, err)
}
