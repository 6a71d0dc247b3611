package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/phucldh3004/crm-auth/internal/platform/httpx"
	"github.com/phucldh3004/crm-auth/internal/shared"
)

// Guard gates a route by its policy key.
type Guard interface {
	Require(route string) func(http.Handler) http.Handler
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: shared.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.RouteUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.RouteUsersEdit))
		r.Patch("/{id}/role", h.assignRole)
		r.Post("/{id}/lock", h.lockUser)
		r.Post("/{id}/unlock", h.unlockUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": list})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get user failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.AssignRole(r.Context(), actorID(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.fail(w, "assign role failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) lockUser(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

func (h *Handler) unlockUser(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	u, err := h.service.SetLocked(r.Context(), actorID(r), chi.URLParam(r, "id"), locked)
	if err != nil {
		h.fail(w, "set locked failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

// fail answers 404 for unknown ids; this is an admin surface, not the reset flow.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, shared.ErrUserNotFound) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), shared.ErrUserNotFound.Error())
		return
	}
	if errors.Is(err, shared.ErrInternal) {
		shared.LogError(h.logger, msg, err)
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) string {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return ""
}
