package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/estatebook/estatebook/internal/accounting"
	jobmetrics "github.com/estatebook/estatebook/internal/jobs"
)

// ErrLedgerUnbalanced is returned when posted entries do not balance.
var ErrLedgerUnbalanced = errors.New("ledger integrity: unbalanced entries found")

// IntegrityChecker lists posted journal entries whose debits differ from credits.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]accounting.IntegrityIssue, error)
}

// LedgerIntegrityJob verifies the books.
type LedgerIntegrityJob struct {
	Ledger  IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle logs every unbalanced entry. The run fails, without retry, when
// any is found so the failure shows in job metrics and the asynq archive.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(slog.String("job", TaskLedgerIntegrity))
	issues, err := j.Ledger.CheckIntegrity(ctx)
	if err != nil {
		logger.Error("ledger integrity query failed", slog.Any("error", err))
		return err
	}
	if len(issues) == 0 {
		logger.Info("ledger integrity ok")
		return nil
	}
	for _, issue := range issues {
		logger.Error("unbalanced journal entry",
			slog.Int64("entry_id", issue.EntryID),
			slog.Int64("number", issue.Number),
			slog.Float64("debit", issue.Debit),
			slog.Float64("credit", issue.Credit),
		)
	}
	j.Metrics.AddItems(TaskLedgerIntegrity, "unbalanced", len(issues))
	return fmt.Errorf("%w: %d entries: %w", ErrLedgerUnbalanced, len(issues), asynq.SkipRetry)
}
