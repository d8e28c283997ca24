package penalties

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/shared"
)

// Poster books penalty movements in the ledger.
type Poster interface {
	HandlePenaltyAccrued(ctx context.Context, evt integration.PenaltyAccrued) (int64, error)
	HandlePenaltyWaived(ctx context.Context, evt integration.PenaltyWaived) (int64, error)
}

// AuditPort records penalty events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached dashboard figures after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service accrues and waives late-payment penalties.
type Service struct {
	repo   Repository
	poster Poster
	audit  AuditPort
	cache  Invalidator
	tx     shared.TxRunner
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, poster Poster, audit AuditPort, cache Invalidator, tx shared.TxRunner) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{repo: repo, poster: poster, audit: audit, cache: cache, tx: tx, now: time.Now}
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCreated
	outcomeGrown
	outcomeUnchanged
	outcomeWaived
)

// Accrue recomputes the penalty of every late installment as of asOf. Each
// installment is settled in its own transaction; growth is posted as a
// delta so running twice for the same day books nothing new. Penalties
// never shrink and waived ones are left alone.
func (s *Service) Accrue(ctx context.Context, actorID int64, asOf time.Time) (AccrualResult, error) {
	asOf = shared.DateOnly(asOf)
	result := AccrualResult{AsOf: asOf}
	candidates, err := s.repo.Candidates(ctx, asOf)
	if err != nil {
		return result, err
	}
	for _, c := range candidates {
		result.Scanned++
		out, delta, err := s.accrueOne(ctx, actorID, c, asOf)
		if err != nil {
			return result, fmt.Errorf("penalties: accrue installment %d: %w", c.Installment.ID, err)
		}
		switch out {
		case outcomeCreated:
			result.Created++
		case outcomeGrown:
			result.Grown++
		case outcomeUnchanged:
			result.Unchanged++
		case outcomeWaived:
			result.Waived++
		}
		result.Posted = shared.Round2(result.Posted + delta)
	}
	if result.Created+result.Grown > 0 {
		if err := s.record(ctx, actorID, "penalty.accrue", 0, map[string]any{
			"as_of":   asOf.Format("2006-01-02"),
			"created": result.Created,
			"grown":   result.Grown,
			"posted":  result.Posted,
		}); err != nil {
			return result, err
		}
		s.bump(ctx)
	}
	return result, nil
}

func (s *Service) accrueOne(ctx context.Context, actorID int64, c Candidate, asOf time.Time) (outcome, float64, error) {
	comp := Compute(c.Installment, c.Project, asOf)
	var (
		out   outcome
		delta float64
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.LockByInstallment(ctx, c.Installment.ID)
		var penalty Penalty
		switch {
		case errors.Is(err, ErrNotFound):
			if comp.Amount <= 0 {
				out = outcomeNone
				return nil
			}
			created, inserted, err := s.repo.Insert(ctx, Penalty{
				UserInstallmentID: c.Installment.ID,
				ProjectID:         c.Installment.ProjectID,
				UserID:            c.Installment.UserID,
				DaysLate:          comp.DaysLate,
				DailyRate:         comp.DailyRate,
				Amount:            comp.Amount,
				AsOf:              asOf,
			})
			if err != nil {
				return err
			}
			if !inserted {
				out = outcomeUnchanged
				return nil
			}
			penalty, out, delta = created, outcomeCreated, comp.Amount
		case err != nil:
			return err
		case existing.Status == StatusWaived:
			out = outcomeWaived
			return nil
		case comp.Amount <= existing.Amount:
			out = outcomeUnchanged
			return nil
		default:
			if err := s.repo.UpdateAccrual(ctx, existing.ID, comp, asOf); err != nil {
				return err
			}
			penalty, out, delta = existing, outcomeGrown, shared.Round2(comp.Amount-existing.Amount)
		}
		if s.poster == nil {
			return nil
		}
		entryID, err := s.poster.HandlePenaltyAccrued(ctx, integration.PenaltyAccrued{
			PenaltyID: penalty.ID,
			UserID:    penalty.UserID,
			Delta:     delta,
			Total:     comp.Amount,
			AsOf:      asOf,
			ActorID:   actorID,
		})
		if err != nil {
			return err
		}
		if entryID > 0 {
			return s.repo.SetJournalEntry(ctx, penalty.ID, entryID)
		}
		return nil
	})
	if err != nil {
		return outcomeNone, 0, err
	}
	return out, delta, nil
}

// Waive cancels a penalty and reverses everything accrued on it.
func (s *Service) Waive(ctx context.Context, actorID, id int64, reason string) (Penalty, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Penalty{}, ErrReasonRequired
	}
	var waived Penalty
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == StatusWaived {
			return ErrAlreadyWaived
		}
		if s.poster != nil {
			if _, err := s.poster.HandlePenaltyWaived(ctx, integration.PenaltyWaived{
				PenaltyID: p.ID,
				UserID:    p.UserID,
				Amount:    p.Amount,
				Date:      shared.DateOnly(s.now()),
				Reason:    reason,
				ActorID:   actorID,
			}); err != nil {
				return err
			}
		}
		if err := s.repo.MarkWaived(ctx, p.ID, reason); err != nil {
			return err
		}
		p.Status, p.WaiveReason = StatusWaived, reason
		waived = p
		return s.record(ctx, actorID, "penalty.waive", p.ID, map[string]any{"amount": p.Amount, "reason": reason})
	})
	if err != nil {
		return Penalty{}, err
	}
	s.bump(ctx)
	return waived, nil
}

// Get returns a penalty by id.
func (s *Service) Get(ctx context.Context, id int64) (Penalty, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of penalties.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Penalty, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ForUser returns every penalty of a member.
func (s *Service) ForUser(ctx context.Context, userID int64) ([]Penalty, error) {
	items, _, err := s.repo.List(ctx, ListFilter{UserID: userID})
	return items, err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "penalty",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}
