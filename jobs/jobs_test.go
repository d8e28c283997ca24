package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/installments"
	jobmetrics "github.com/estatebook/estatebook/internal/jobs"
	"github.com/estatebook/estatebook/internal/penalties"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestPenaltyAccrualDefaultsToTodayAndSystemActor(t *testing.T) {
	acc := &stubAccruer{result: penalties.AccrualResult{Scanned: 3, Created: 2, Grown: 1, Posted: 45}}
	job := NewPenaltyAccrualJob(acc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return day }

	task, err := NewPenaltyAccrualTask(PenaltyAccrualPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, day, acc.asOf)
	assert.Equal(t, SystemActor, acc.actor)
}

func TestPenaltyAccrualHonoursPayload(t *testing.T) {
	acc := &stubAccruer{}
	job := NewPenaltyAccrualJob(acc, nil, nil)
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	task, err := NewPenaltyAccrualTask(PenaltyAccrualPayload{AsOf: asOf, ActorID: 7})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.True(t, asOf.Equal(acc.asOf))
	assert.Equal(t, int64(7), acc.actor)
}

func TestPenaltyAccrualPropagatesError(t *testing.T) {
	boom := errors.New("db down")
	job := NewPenaltyAccrualJob(&stubAccruer{err: boom}, nil, nil)
	task, err := NewPenaltyAccrualTask(PenaltyAccrualPayload{})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewPenaltyAccrualJob(&stubAccruer{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskPenaltyAccrual, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func reminderFixture() *stubInstallments {
	return &stubInstallments{
		upcoming: []installments.UserInstallment{
			{ID: 11, ProjectName: "Tower A", UserName: "Budi", UserEmail: "budi@example.com", Title: "Down payment", DueDate: day.AddDate(0, 0, 5), ShareAmount: 1500, Status: installments.StatusPending},
			{ID: 12, ProjectName: "Tower A", UserName: "Nomail", Title: "Down payment", DueDate: day.AddDate(0, 0, 5), ShareAmount: 1500, Status: installments.StatusPending},
		},
		overdue: []installments.UserInstallment{
			{ID: 9, ProjectName: "Tower A", UserName: "Citra", UserEmail: "citra@example.com", Title: "Foundation", DueDate: day.AddDate(0, 0, -4), ShareAmount: 1000, PaidAmount: 250, Status: installments.StatusPartial},
		},
	}
}

func TestReminderQueuesOnceADay(t *testing.T) {
	src := reminderFixture()
	queue := &memQueue{}
	job := NewReminderJob(src, queue, 7, nil, nil)
	job.clock = func() time.Time { return day }

	task, err := NewInstallmentReminderTask(InstallmentReminderPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 7, src.leadDays)
	require.Len(t, queue.tasks, 2)
	for _, q := range queue.tasks {
		assert.Equal(t, TaskTypeSendEmail, q.Type())
	}

	var first SendEmailPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &first))
	assert.Equal(t, "budi@example.com", first.To)
	assert.Contains(t, first.Subject, "15 Mar 2026")

	// A second sweep on the same day hits the task id guard.
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Len(t, queue.tasks, 2)
}

func TestReminderPayloadLeadDaysOverride(t *testing.T) {
	src := reminderFixture()
	job := NewReminderJob(src, &memQueue{}, 7, nil, nil)
	task, err := NewInstallmentReminderTask(InstallmentReminderPayload{AsOf: day, LeadDays: 3})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 3, src.leadDays)
}

func TestReminderMessageOverdue(t *testing.T) {
	msg := ReminderMessage(reminderFixture().overdue[0], day)
	assert.Equal(t, "citra@example.com", msg.To)
	assert.Equal(t, "Overdue installment: Tower A", msg.Subject)
	assert.Contains(t, msg.Body, "4 days overdue")
	assert.Contains(t, msg.Body, "750.00")
}

func TestMailJobSends(t *testing.T) {
	mailer := &stubMailer{}
	job := &MailJob{Mailer: mailer}
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"a@example.com"}, mailer.sent[0].To)
	assert.Equal(t, "Body", mailer.sent[0].Text)
}

func TestMailJobWithoutRecipientSkipsRetry(t *testing.T) {
	job := &MailJob{Mailer: &stubMailer{}}
	task, err := NewSendEmailTask(SendEmailPayload{Subject: "Hi"})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestMailJobRetriesTransportErrors(t *testing.T) {
	boom := errors.New("smtp down")
	job := &MailJob{Mailer: &stubMailer{err: boom}}
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestLedgerIntegrity(t *testing.T) {
	ok := &LedgerIntegrityJob{Ledger: stubChecker{}}
	require.NoError(t, ok.Handle(context.Background(), NewLedgerIntegrityTask()))

	bad := &LedgerIntegrityJob{Ledger: stubChecker{issues: []accounting.IntegrityIssue{{EntryID: 4, Number: 4, Debit: 100, Credit: 90}}}}
	err := bad.Handle(context.Background(), NewLedgerIntegrityTask())
	assert.ErrorIs(t, err, ErrLedgerUnbalanced)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewTaskByName(t *testing.T) {
	for _, name := range TaskNames() {
		task, err := NewTaskByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, task.Type())
	}
	_, err := NewTaskByName("nope")
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	entries, err := Schedule(ScheduleConfig{PenaltyCron: "15 1 * * *", IntegrityCron: "30 2 * * *"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, TaskPenaltyAccrual, entries[0].Task.Type())
	assert.Equal(t, TaskLedgerIntegrity, entries[1].Task.Type())

	_, err = Schedule(ScheduleConfig{ReminderCron: "every day"})
	assert.Error(t, err)
}

func TestHealthReportsQueueDepth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Size: 4, Pending: 3, Retry: 1}}, nil)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 4, stats.Size)
}

func TestHealthQueueNotFoundIsEmpty(t *testing.T) {
	stats, err := Stats(stubInspector{err: asynq.ErrQueueNotFound}, QueueDefault)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: QueueDefault}, stats)

	h := NewHandler(stubInspector{err: errors.New("redis down")}, nil)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
