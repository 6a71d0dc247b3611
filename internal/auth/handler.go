package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/phucldh3004/crm-auth/internal/platform/httpx"
	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

// EventRecorder counts auth outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

// HandlerParams groups the collaborators of Handler. Provider and States may be nil,
// in which case the OAuth endpoints answer 500.
type HandlerParams struct {
	Logger              *slog.Logger
	Credentials         *CredentialService
	Bridge              *OAuthBridge
	Provider            IdentityProvider
	States              StateStore
	Resets              *ResetTokenManager
	Guard               *AccessGuard
	Metrics             EventRecorder
	SuccessRedirect     string
	StateTTL            time.Duration
	ConcealUnknownEmail bool
	AuthRateLimit       int
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	HandlerParams
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(params HandlerParams) *Handler {
	if params.StateTTL <= 0 {
		params.StateTTL = 10 * time.Minute
	}
	if params.SuccessRedirect == "" {
		params.SuccessRedirect = "/"
	}
	return &Handler{HandlerParams: params, validator: shared.NewValidator()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limited := r
	if h.AuthRateLimit > 0 {
		limited = r.With(httprate.Limit(h.AuthRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	limited.Post("/login", h.handleLogin)
	limited.Post("/forgot-password", h.handleForgotPassword)
	limited.Post("/reset-password", h.handleResetPassword)

	r.Post("/register", h.handleRegister)
	r.Get("/oauth/start", h.handleOAuthStart)
	r.Get("/oauth/callback", h.handleOAuthCallback)
	r.Get("/verify-reset-token", h.handleVerifyResetToken)

	r.Group(func(r chi.Router) {
		r.Use(h.Guard.Require(shared.RouteAuthProfile))
		r.Get("/me", h.handleMe)
		r.Post("/change-password", h.handleChangePassword)
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	identifier, secret := req.Identifier, req.Secret
	if identifier == "" {
		identifier = req.Username
	}
	if secret == "" {
		secret = req.Password
	}
	if identifier == "" || secret == "" {
		h.event("login", "invalid")
		httpx.RespondError(w, invalidCredentials())
		return
	}
	result, err := h.Credentials.SignIn(r.Context(), identifier, secret)
	if err != nil {
		h.fail(w, "login", "login failed", err)
		return
	}
	h.event("login", "success")
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterProfile
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.Credentials.Register(r.Context(), req)
	if err != nil {
		h.fail(w, "register", "register failed", err)
		return
	}
	h.event("register", "success")
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user.Public(),
	})
}

func (h *Handler) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil || h.States == nil {
		h.fail(w, "oauth", "oauth start", shared.Internal("oauth start", errors.New("identity provider not configured")))
		return
	}
	state, err := randomSecret()
	if err != nil {
		h.fail(w, "oauth", "oauth start", shared.Internal("generate oauth state", err))
		return
	}
	verifier := oauth2.GenerateVerifier()
	if err := h.States.Save(r.Context(), state, verifier, h.StateTTL); err != nil {
		h.fail(w, "oauth", "oauth start", shared.Internal("save oauth state", err))
		return
	}
	http.Redirect(w, r, h.Provider.AuthCodeURL(state, verifier), http.StatusFound)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil || h.States == nil || h.Bridge == nil {
		h.fail(w, "oauth", "oauth callback", shared.Internal("oauth callback", errors.New("identity provider not configured")))
		return
	}
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.fail(w, "oauth", "oauth callback", shared.Internal("oauth callback", errors.New("provider error: "+providerErr)))
		return
	}
	code := query.Get("code")
	verifier, err := h.States.Consume(r.Context(), query.Get("state"))
	if err != nil {
		if errors.Is(err, ErrUnknownState) {
			h.event("oauth", "invalid_state")
			httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "invalid oauth state")
			return
		}
		h.fail(w, "oauth", "oauth callback", shared.Internal("consume oauth state", err))
		return
	}
	if code == "" {
		httpx.RespondError(w, shared.Validation("code is required"))
		return
	}
	profile, err := h.Provider.Identify(r.Context(), code, verifier)
	if err != nil {
		h.fail(w, "oauth", "oauth identify", shared.Internal("identify external user", err))
		return
	}
	user, err := h.Bridge.ResolveExternalIdentity(r.Context(), profile)
	if err != nil {
		h.fail(w, "oauth", "oauth resolve", err)
		return
	}
	result, err := h.Bridge.CompleteLogin(r.Context(), user)
	if err != nil {
		h.fail(w, "oauth", "oauth complete", err)
		return
	}
	h.event("oauth", "success")
	http.Redirect(w, r, withToken(h.SuccessRedirect, result.Token), http.StatusFound)
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ticket, err := h.Resets.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		if h.ConcealUnknownEmail && errors.Is(err, shared.ErrUserNotFound) {
			h.event("forgot_password", "unknown_email")
			httpx.JSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a reset link has been sent"})
			return
		}
		h.fail(w, "forgot_password", "forgot password failed", err)
		return
	}
	h.event("forgot_password", "success")
	if h.ConcealUnknownEmail {
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a reset link has been sent"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"rawToken": ticket.RawToken})
}

func (h *Handler) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	token := r.URL.Query().Get("token")
	if email == "" || token == "" {
		httpx.RespondError(w, shared.Validation("email and token are required"))
		return
	}
	if err := h.Resets.VerifyResetToken(r.Context(), email, token); err != nil {
		h.fail(w, "verify_reset_token", "verify reset token failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type resetRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewSecret   string `json:"newSecret"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	secret := req.NewSecret
	if secret == "" {
		secret = req.NewPassword
	}
	if err := h.Resets.ResetPassword(r.Context(), req.Email, req.Token, secret); err != nil {
		h.fail(w, "reset_password", "reset password failed", err)
		return
	}
	h.event("reset_password", "success")
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	profile, err := h.Credentials.Profile(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, "profile", "load profile failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

type changePasswordRequest struct {
	CurrentSecret string `json:"currentSecret" validate:"required"`
	NewSecret     string `json:"newSecret" validate:"required,min=6,max=72"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req changePasswordRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.Credentials.ChangePassword(r.Context(), p.UserID, req.CurrentSecret, req.NewSecret); err != nil {
		h.fail(w, "change_password", "change password failed", err)
		return
	}
	h.event("change_password", "success")
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return shared.ValidateStruct(h.validator, target)
}

func (h *Handler) fail(w http.ResponseWriter, event, msg string, err error) {
	outcome := "rejected"
	if errors.Is(err, shared.ErrInternal) {
		outcome = "error"
		shared.LogError(h.Logger, msg, err)
	}
	h.event(event, outcome)
	httpx.RespondError(w, err)
}

func (h *Handler) event(event, outcome string) {
	if h.Metrics != nil {
		h.Metrics.RecordAuthEvent(event, outcome)
	}
}

func withToken(target, token string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "/?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

var _ users.Guard = (*AccessGuard)(nil)
