package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/estatebook/estatebook/internal/installments"
	jobmetrics "github.com/estatebook/estatebook/internal/jobs"
	"github.com/estatebook/estatebook/internal/view"
)

// InstallmentSource lists unpaid installments around a date.
type InstallmentSource interface {
	Upcoming(ctx context.Context, asOf time.Time, days int) ([]installments.UserInstallment, error)
	Overdue(ctx context.Context, asOf time.Time) ([]installments.UserInstallment, error)
}

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReminderJob queues one mail per installment due soon or overdue.
type ReminderJob struct {
	Installments InstallmentSource
	Queue        Enqueuer
	LeadDays     int
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	clock        func() time.Time
}

// NewReminderJob wires the reminder sweep.
func NewReminderJob(src InstallmentSource, queue Enqueuer, leadDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderJob {
	return &ReminderJob{Installments: src, Queue: queue, LeadDays: leadDays, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle runs the sweep. Mail tasks carry a per-installment, per-day task id
// so a retried or repeated sweep never mails the same member twice a day.
func (j *ReminderJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Installments == nil || j.Queue == nil {
		return errors.New("installment reminder: dependencies not configured")
	}
	var payload InstallmentReminderPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}
	lead := payload.LeadDays
	if lead <= 0 {
		lead = j.LeadDays
	}

	tracker := j.Metrics.Track(TaskInstallmentReminder)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(slog.String("job", TaskInstallmentReminder))
	upcoming, err := j.Installments.Upcoming(ctx, asOf, lead)
	if err != nil {
		return fmt.Errorf("installment reminder: upcoming: %w", err)
	}
	overdue, err := j.Installments.Overdue(ctx, asOf)
	if err != nil {
		return fmt.Errorf("installment reminder: overdue: %w", err)
	}

	queued, skipped := 0, 0
	for _, inst := range append(upcoming, overdue...) {
		if strings.TrimSpace(inst.UserEmail) == "" {
			skipped++
			continue
		}
		ok, err := j.enqueue(ctx, inst, asOf)
		if err != nil {
			return err
		}
		if ok {
			queued++
		} else {
			skipped++
		}
	}
	j.Metrics.AddItems(TaskInstallmentReminder, "queued", queued)
	logger.Info("installment reminders queued",
		slog.Int("upcoming", len(upcoming)),
		slog.Int("overdue", len(overdue)),
		slog.Int("queued", queued),
		slog.Int("skipped", skipped),
	)
	return nil
}

func (j *ReminderJob) enqueue(ctx context.Context, inst installments.UserInstallment, asOf time.Time) (bool, error) {
	day := asOf.Format("2006-01-02")
	task, err := NewSendEmailTask(ReminderMessage(inst, asOf))
	if err != nil {
		return false, err
	}
	if _, err := j.Queue.EnqueueContext(ctx, task, asynq.TaskID(fmt.Sprintf("remind:%d:%s", inst.ID, day))); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return false, nil
		}
		return false, fmt.Errorf("installment reminder: enqueue %d: %w", inst.ID, err)
	}
	return true, nil
}

// ReminderMessage renders the mail sent for inst.
func ReminderMessage(inst installments.UserInstallment, asOf time.Time) SendEmailPayload {
	due := inst.DueDate.Format("02 Jan 2006")
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", inst.UserName)
	subject := fmt.Sprintf("Installment due on %s: %s", due, inst.ProjectName)
	if inst.IsOverdue(asOf) {
		subject = fmt.Sprintf("Overdue installment: %s", inst.ProjectName)
		fmt.Fprintf(&b, "Your installment \"%s\" for %s was due on %s and is %d days overdue.\n",
			inst.Title, inst.ProjectName, due, inst.DaysOverdue(asOf))
		fmt.Fprintf(&b, "Outstanding amount: %s.\n", view.FormatMoney(inst.Outstanding()))
		b.WriteString("Late payments accrue a daily penalty until the installment is settled.\n")
	} else {
		fmt.Fprintf(&b, "This is a reminder that your installment \"%s\" for %s is due on %s.\n",
			inst.Title, inst.ProjectName, due)
		fmt.Fprintf(&b, "Outstanding amount: %s.\n", view.FormatMoney(inst.Outstanding()))
	}
	b.WriteString("\nRegards,\nEstateBook")
	return SendEmailPayload{To: inst.UserEmail, Subject: subject, Body: b.String()}
}

func (j *ReminderJob) now() time.Time {
	if j.clock == nil {
		return time.Now()
	}
	return j.clock()
}
