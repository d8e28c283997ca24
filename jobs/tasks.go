package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypeSendEmail delivers one transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskPenaltyAccrual recomputes late-payment penalties.
	TaskPenaltyAccrual = "penalties:accrue"
	// TaskInstallmentReminder mails members about installments falling due.
	TaskInstallmentReminder = "installments:remind"
	// TaskLedgerIntegrity checks that every posted journal entry balances.
	TaskLedgerIntegrity = "ledger:integrity"
)

// SystemActor is the actor id recorded for work done by the scheduler.
const SystemActor int64 = 0

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, append([]asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(5)}, opts...)...), nil
}

// PenaltyAccrualPayload pins the accrual date. A zero AsOf means today.
type PenaltyAccrualPayload struct {
	AsOf    time.Time `json:"as_of,omitempty"`
	ActorID int64     `json:"actor_id,omitempty"`
}

// NewPenaltyAccrualTask creates a penalty accrual task.
func NewPenaltyAccrualTask(payload PenaltyAccrualPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPenaltyAccrual, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// InstallmentReminderPayload configures a reminder sweep. LeadDays <= 0
// falls back to the worker default.
type InstallmentReminderPayload struct {
	AsOf     time.Time `json:"as_of,omitempty"`
	LeadDays int       `json:"lead_days,omitempty"`
}

// NewInstallmentReminderTask creates a reminder sweep task.
func NewInstallmentReminderTask(payload InstallmentReminderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInstallmentReminder, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewLedgerIntegrityTask creates a ledger integrity task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, []byte("{}"), asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// TaskNames lists the tasks an operator may trigger by hand.
func TaskNames() []string {
	names := []string{TaskPenaltyAccrual, TaskInstallmentReminder, TaskLedgerIntegrity}
	sort.Strings(names)
	return names
}

// NewTaskByName builds a default-payload task for name.
func NewTaskByName(name string) (*asynq.Task, error) {
	switch name {
	case TaskPenaltyAccrual:
		return NewPenaltyAccrualTask(PenaltyAccrualPayload{})
	case TaskInstallmentReminder:
		return NewInstallmentReminderTask(InstallmentReminderPayload{})
	case TaskLedgerIntegrity:
		return NewLedgerIntegrityTask(), nil
	default:
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
}

func decode(t *asynq.Task, dest any) error {
	body := t.Payload()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}
