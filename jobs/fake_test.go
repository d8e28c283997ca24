package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/notify"
	"github.com/estatebook/estatebook/internal/penalties"
)

type stubAccruer struct {
	actor  int64
	asOf   time.Time
	result penalties.AccrualResult
	err    error
}

func (s *stubAccruer) Accrue(_ context.Context, actorID int64, asOf time.Time) (penalties.AccrualResult, error) {
	s.actor, s.asOf = actorID, asOf
	return s.result, s.err
}

type stubInstallments struct {
	upcoming []installments.UserInstallment
	overdue  []installments.UserInstallment
	leadDays int
}

func (s *stubInstallments) Upcoming(_ context.Context, _ time.Time, days int) ([]installments.UserInstallment, error) {
	s.leadDays = days
	return s.upcoming, nil
}

func (s *stubInstallments) Overdue(context.Context, time.Time) ([]installments.UserInstallment, error) {
	return s.overdue, nil
}

// memQueue rejects task ids it has already seen, like asynq does.
type memQueue struct {
	tasks []*asynq.Task
	ids   map[string]bool
}

func (q *memQueue) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.ids == nil {
		q.ids = map[string]bool{}
	}
	for _, opt := range opts {
		if opt.Type() != asynq.TaskIDOpt {
			continue
		}
		id, _ := opt.Value().(string)
		if q.ids[id] {
			return nil, asynq.ErrTaskIDConflict
		}
		q.ids[id] = true
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

type stubMailer struct {
	sent []notify.Message
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg notify.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubChecker struct {
	issues []accounting.IntegrityIssue
	err    error
}

func (s stubChecker) CheckIntegrity(context.Context) ([]accounting.IntegrityIssue, error) {
	return s.issues, s.err
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}
