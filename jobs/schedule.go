package jobs

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// ScheduleConfig holds the cron expressions of the periodic tasks. Empty
// expressions disable the task.
type ScheduleConfig struct {
	PenaltyCron   string
	ReminderCron  string
	IntegrityCron string
}

// Schedule builds the cron registrations for the worker scheduler.
func Schedule(cfg ScheduleConfig) ([]CronRegistration, error) {
	penalty, err := NewPenaltyAccrualTask(PenaltyAccrualPayload{})
	if err != nil {
		return nil, err
	}
	reminder, err := NewInstallmentReminderTask(InstallmentReminderPayload{})
	if err != nil {
		return nil, err
	}
	entries := []CronRegistration{
		{Spec: cfg.PenaltyCron, Task: penalty},
		{Spec: cfg.ReminderCron, Task: reminder},
		{Spec: cfg.IntegrityCron, Task: NewLedgerIntegrityTask()},
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(e.Spec); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s: %w", e.Task.Type(), err)
		}
		// A schedule firing twice (several scheduler replicas) collapses into one run.
		e.Options = append(e.Options, asynq.Unique(30*time.Minute))
		out = append(out, e)
	}
	return out, nil
}
