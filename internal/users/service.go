package users

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles privileged user management.
type Service struct {
	dir    Directory
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(dir Directory, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{dir: dir, audit: audit, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]PublicUser, error) {
	list, err := s.dir.List(ctx)
	if err != nil {
		return nil, shared.Internal("list users", err)
	}
	out := make([]PublicUser, 0, len(list))
	for i := range list {
		out = append(out, list[i].Public())
	}
	return out, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id string) (PublicUser, error) {
	u, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return PublicUser{}, lookupErr("get user", err)
	}
	return u.Public(), nil
}

// AssignRole changes the role of user id. roleName is matched case-insensitively.
func (s *Service) AssignRole(ctx context.Context, actorID, id, roleName string) (PublicUser, error) {
	role, ok := ParseRole(roleName)
	if !ok {
		return PublicUser{}, shared.Validation("role must be one of ADMIN, SALES, MARKETING, ACCOUNTANT, SUPPORT, CUSTOMER, USER")
	}
	if err := s.dir.UpdateRole(ctx, id, role); err != nil {
		return PublicUser{}, lookupErr("update role", err)
	}
	s.record(ctx, actorID, "users.role_update", id, map[string]any{"role": string(role)})
	return s.GetUser(ctx, id)
}

// SetLocked locks (deactivates) or unlocks user id.
func (s *Service) SetLocked(ctx context.Context, actorID, id string, locked bool) (PublicUser, error) {
	if err := s.dir.SetActive(ctx, id, !locked); err != nil {
		return PublicUser{}, lookupErr("set active", err)
	}
	action := "users.unlock"
	if locked {
		action = "users.lock"
	}
	s.record(ctx, actorID, action, id, nil)
	return s.GetUser(ctx, id)
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: id, Meta: meta}); err != nil {
		shared.LogError(s.logger, "record audit", err)
	}
}

func lookupErr(operation string, err error) error {
	if errors.Is(err, shared.ErrUserNotFound) {
		return err
	}
	return shared.Internal(operation, err)
}
