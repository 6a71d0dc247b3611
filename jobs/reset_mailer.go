package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/phucldh3004/crm-auth/internal/jobs"
)

// Enqueuer submits email tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ResetMailer turns a raw reset token into a reset link email.
type ResetMailer struct {
	enqueuer  Enqueuer
	publicURL string
	metrics   *jobmetrics.Metrics
	now       func() time.Time
}

// NewResetMailer constructs a ResetMailer. publicURL is the frontend base URL.
func NewResetMailer(enqueuer Enqueuer, publicURL string, metrics *jobmetrics.Metrics) *ResetMailer {
	return &ResetMailer{
		enqueuer:  enqueuer,
		publicURL: strings.TrimRight(publicURL, "/"),
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ResetLink builds ${publicURL}/reset-password?token=..&email=..
func (m *ResetMailer) ResetLink(email, rawToken string) string {
	q := url.Values{}
	q.Set("token", rawToken)
	q.Set("email", email)
	return m.publicURL + "/reset-password?" + q.Encode()
}

// NotifyReset enqueues the reset email.
func (m *ResetMailer) NotifyReset(ctx context.Context, email, rawToken string, expiresAt time.Time) error {
	minutes := int(expiresAt.Sub(m.now()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	body := fmt.Sprintf(
		"We received a request to reset your password.\n\nOpen the link below to choose a new one. It expires in %d minutes.\n\n%s\n\nIf you did not ask for this, you can ignore this email.\n",
		minutes, m.ResetLink(email, rawToken),
	)
	_, err := m.enqueuer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      email,
		Subject: "Reset your password",
		Body:    body,
	})
	m.metrics.Enqueued(TaskTypeSendEmail, err)
	if err != nil {
		return fmt.Errorf("jobs: enqueue reset mail: %w", err)
	}
	return nil
}
