package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault carries every task this service produces.
	QueueDefault = "default"
	// TaskTypeSendEmail delivers one transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskResetTokenPurge clears reset tokens whose expiry has passed.
	TaskResetTokenPurge = "auth:reset-token-purge"

	mailTimeout = 30 * time.Second
)

// SendEmailPayload is the mail:send task body.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs a mail:send task with capped retries and a per-attempt timeout.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(mailTimeout),
	), nil
}

// ParseSendEmailPayload decodes and validates a mail:send body. Any error wraps asynq.SkipRetry.
func ParseSendEmailPayload(t *asynq.Task) (SendEmailPayload, error) {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("mail: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.validate(); err != nil {
		return payload, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return payload, nil
}

func (p SendEmailPayload) validate() error {
	if p.To == "" {
		return errors.New("mail: missing recipient")
	}
	if _, err := mail.ParseAddress(p.To); err != nil {
		return fmt.Errorf("mail: invalid recipient %q", p.To)
	}
	if p.Subject == "" {
		return errors.New("mail: missing subject")
	}
	return nil
}

// NewResetTokenPurgeTask builds the periodic purge task.
func NewResetTokenPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskResetTokenPurge, nil, asynq.Queue(QueueDefault))
}
