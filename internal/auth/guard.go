package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/phucldh3004/crm-auth/internal/platform/httpx"
	"github.com/phucldh3004/crm-auth/internal/shared"
	"github.com/phucldh3004/crm-auth/internal/users"
)

// RouteRoles maps a route policy key to the roles allowed on it.
// An empty or missing entry admits any authenticated user.
type RouteRoles map[string][]users.Role

// DefaultRouteRoles returns the built-in policy table.
func DefaultRouteRoles() RouteRoles {
	return RouteRoles{
		shared.RouteAuthProfile: nil,
		shared.RouteUsersView:   {users.RoleAdmin, users.RoleSupport},
		shared.RouteUsersEdit:   {users.RoleAdmin},
		shared.RouteJobsView:    {users.RoleAdmin},
	}
}

// AccessGuard authenticates bearer tokens and authorizes against the current role.
type AccessGuard struct {
	tokens        *TokenIssuer
	dir           users.Directory
	routes        RouteRoles
	requireActive bool
	logger        *slog.Logger
}

// NewAccessGuard constructs an AccessGuard. A nil routes table uses DefaultRouteRoles.
func NewAccessGuard(tokens *TokenIssuer, dir users.Directory, routes RouteRoles, cfg Config, logger *slog.Logger) *AccessGuard {
	if routes == nil {
		routes = DefaultRouteRoles()
	}
	return &AccessGuard{tokens: tokens, dir: dir, routes: routes, requireActive: cfg.RequireActive, logger: logger}
}

// Require returns middleware enforcing the policy declared for route.
func (g *AccessGuard) Require(route string) func(http.Handler) http.Handler {
	allowed := normalizeRoles(g.routes[route])
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			claims, err := g.tokens.Verify(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="crm-auth", error="invalid_token"`)
				httpx.Problem(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), shared.UserSafeMessage(err))
				return
			}
			if claims.Subject == "" {
				g.deny(w, route, "", errors.New("token has no subject"))
				return
			}
			user, err := g.dir.FindByID(r.Context(), claims.Subject)
			if err != nil {
				g.deny(w, route, claims.Subject, err)
				return
			}
			if g.requireActive && !user.IsActive {
				g.deny(w, route, user.ID, errors.New("user is locked"))
				return
			}
			role := users.NormalizeRole(string(user.Role))
			if !roleAllowed(allowed, role) {
				g.deny(w, route, user.ID, errors.New("role not permitted"))
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{
				UserID:   user.ID,
				Username: claims.Username,
				Role:     role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *AccessGuard) deny(w http.ResponseWriter, route, userID string, cause error) {
	if g.logger != nil {
		g.logger.Debug("access denied",
			slog.String("route", route),
			slog.String("user_id", userID),
			slog.Any("reason", cause),
		)
	}
	httpx.RespondError(w, oops.Code("ACCESS_DENIED").With("route", route).Wrap(shared.ErrForbidden))
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func normalizeRoles(roles []users.Role) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		name := users.NormalizeRole(string(role))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

func roleAllowed(allowed map[string]struct{}, role string) bool {
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[role]
	return ok
}
