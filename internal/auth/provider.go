package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/phucldh3004/crm-auth/internal/users"
)

// Google endpoints used when ProviderConfig leaves them empty.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// IdentityProvider runs the authorization-code flow against an external provider.
type IdentityProvider interface {
	AuthCodeURL(state, verifier string) string
	Identify(ctx context.Context, code, verifier string) (ExternalProfile, error)
}

// ProviderConfig describes an OAuth 2.0 client registration.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// GoogleProvider implements IdentityProvider for Google with PKCE.
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider constructs a GoogleProvider. Empty endpoints default to Google's.
func NewGoogleProvider(cfg ProviderConfig) *GoogleProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthCodeURL returns the consent page URL carrying state and the S256 challenge.
func (p *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Identify exchanges code and fetches the userinfo document.
func (p *GoogleProvider) Identify(ctx context.Context, code, verifier string) (ExternalProfile, error) {
	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("oauth: exchange code: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("oauth: build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("oauth: fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ExternalProfile{}, fmt.Errorf("oauth: userinfo status %d", resp.StatusCode)
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ExternalProfile{}, fmt.Errorf("oauth: decode userinfo: %w", err)
	}
	if info.Email == "" {
		return ExternalProfile{}, errors.New("oauth: userinfo has no email")
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return ExternalProfile{}, errors.New("oauth: provider email is not verified")
	}
	return ExternalProfile{
		Provider:  users.AccountGoogle,
		Subject:   info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
		Picture:   info.Picture,
	}, nil
}

var _ IdentityProvider = (*GoogleProvider)(nil)
