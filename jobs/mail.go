package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/phucldh3004/crm-auth/internal/jobs"
)

// Mailer delivers a rendered message. SMTP lives outside this service.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// LogMailer records deliveries in the structured log.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the message envelope without its body.
func (m LogMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if m.Logger != nil {
		m.Logger.Info("mail delivered",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.Int("body_bytes", len(msg.Body)),
		)
	}
	return nil
}

// MailJob processes TaskTypeSendEmail tasks.
type MailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob initialises the mail handler. A nil mailer logs deliveries only.
func NewMailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &MailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle decodes the payload and hands it to the mailer.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("mail: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	payload, err := ParseSendEmailPayload(t)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Warn("mail task dropped", slog.Any("error", err))
		}
		return err
	}
	if err := j.Mailer.Send(ctx, payload); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("mail send failed", slog.String("to", payload.To), slog.Any("error", err))
		}
		return err
	}
	return nil
}
