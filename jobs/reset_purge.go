package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"

	jobmetrics "github.com/phucldh3004/crm-auth/internal/jobs"
)

// Execer is the subset of pgxpool.Pool used by the purge job.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ResetPurgeJob nulls expired reset token pairs so stale hashes do not linger.
type ResetPurgeJob struct {
	Pool    Execer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewResetPurgeJob initialises the purge handler.
func NewResetPurgeJob(pool Execer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ResetPurgeJob {
	return &ResetPurgeJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *ResetPurgeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Pool == nil {
		return errors.New("reset purge: handler not configured")
	}
	tracker := j.Metrics.Track(TaskResetTokenPurge)
	defer func() {
		err = tracker.End(err)
	}()

	tag, err := j.Pool.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry < $1
	`, j.clock())
	if err != nil {
		return fmt.Errorf("reset purge: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info("expired reset tokens purged", slog.Int64("rows", tag.RowsAffected()))
	}
	return nil
}
