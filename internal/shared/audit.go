package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is the subset of pgxpool.Pool used for audit inserts.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs and mirrors them to slog.
// A nil pool keeps the slog trail only.
type AuditLogger struct {
	pool   Execer
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool Execer, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	if l.logger != nil {
		l.logger.Info("audit",
			slog.String("action", log.Action),
			slog.String("entity", log.Entity),
			slog.String("entity_id", log.EntityID),
			slog.String("actor_id", log.ActorID),
		)
	}
	if l.pool == nil {
		return nil
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").With("operation", "marshal meta").Wrap(err)
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		nullable(log.ActorID), log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("operation", "insert audit log").
			With("action", log.Action).
			Wrap(err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
