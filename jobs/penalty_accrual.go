package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/estatebook/estatebook/internal/jobs"
	"github.com/estatebook/estatebook/internal/penalties"
)

// PenaltyAccruer is the part of the penalties service the job drives.
type PenaltyAccruer interface {
	Accrue(ctx context.Context, actorID int64, asOf time.Time) (penalties.AccrualResult, error)
}

// PenaltyAccrualJob runs the daily penalty accrual.
type PenaltyAccrualJob struct {
	Penalties PenaltyAccruer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewPenaltyAccrualJob wires the accrual handler.
func NewPenaltyAccrualJob(svc PenaltyAccruer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PenaltyAccrualJob {
	return &PenaltyAccrualJob{Penalties: svc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes one accrual run.
func (j *PenaltyAccrualJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Penalties == nil {
		return errors.New("penalty accrual: dependencies not configured")
	}
	var payload PenaltyAccrualPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}
	actor := payload.ActorID
	if actor <= 0 {
		actor = SystemActor
	}

	tracker := j.Metrics.Track(TaskPenaltyAccrual)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(slog.String("job", TaskPenaltyAccrual), slog.String("as_of", asOf.Format("2006-01-02")))
	result, err := j.Penalties.Accrue(ctx, actor, asOf)
	// Installments settled before a failure stay committed, so count them either way.
	j.Metrics.AddItems(TaskPenaltyAccrual, "created", result.Created)
	j.Metrics.AddItems(TaskPenaltyAccrual, "grown", result.Grown)
	if err != nil {
		logger.Error("penalty accrual failed", slog.Int("scanned", result.Scanned), slog.Any("error", err))
		return err
	}
	logger.Info("penalty accrual completed",
		slog.Int("scanned", result.Scanned),
		slog.Int("created", result.Created),
		slog.Int("grown", result.Grown),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("waived", result.Waived),
		slog.Float64("posted", result.Posted),
	)
	return nil
}

func (j *PenaltyAccrualJob) now() time.Time {
	if j.clock == nil {
		return time.Now()
	}
	return j.clock()
}

func logOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
