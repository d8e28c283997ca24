package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/estatebook/estatebook/internal/jobs"
	"github.com/estatebook/estatebook/internal/notify"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

// MailJob handles TaskTypeSendEmail.
type MailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle sends the queued email. Malformed payloads are not retried.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("mail job: mailer not configured")
	}
	var payload SendEmailPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.To) == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() { err = tracker.End(err) }()

	err = j.Mailer.Send(ctx, notify.Message{To: []string{payload.To}, Subject: payload.Subject, Text: payload.Body})
	if errors.Is(err, notify.ErrNoRecipient) {
		return asynq.SkipRetry
	}
	if err == nil {
		j.Metrics.AddItems(TaskTypeSendEmail, "sent", 1)
	}
	return err
}
