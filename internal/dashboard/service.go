package dashboard

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/documents"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/payments"
	"github.com/estatebook/estatebook/internal/penalties"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

// Cache stores computed aggregates under versioned keys.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// InstallmentReader lists installments for both dashboards.
type InstallmentReader interface {
	Upcoming(ctx context.Context, asOf time.Time, days int) ([]installments.UserInstallment, error)
	ForUser(ctx context.Context, userID int64) ([]installments.UserInstallment, error)
}

// PaymentReader lists the latest payments.
type PaymentReader interface {
	Recent(ctx context.Context, limit int) ([]payments.Payment, error)
}

// MembershipReader lists the projects of a member.
type MembershipReader interface {
	ProjectsForUser(ctx context.Context, userID int64) ([]projects.Membership, error)
}

// PenaltyReader lists the penalties of a member.
type PenaltyReader interface {
	ForUser(ctx context.Context, userID int64) ([]penalties.Penalty, error)
}

// DocumentReader lists the documents of a member.
type DocumentReader interface {
	ForUser(ctx context.Context, userID int64) ([]documents.Document, error)
}

// LedgerReader reads the detail ledger of an account.
type LedgerReader interface {
	AccountLedger(ctx context.Context, level int, code string, filter accounting.JournalFilter) (accounting.LedgerView, error)
}

// Sources bundles the readers the dashboards pull from.
type Sources struct {
	Installments InstallmentReader
	Payments     PaymentReader
	Memberships  MembershipReader
	Penalties    PenaltyReader
	Documents    DocumentReader
	Ledger       LedgerReader
}

const (
	trendMonths    = 12
	recentPayments = 10
)

// Service assembles both dashboards.
type Service struct {
	repo         Repository
	src          Sources
	cache        Cache
	upcomingDays int
	now          func() time.Time
}

// NewService builds Service instance. cache may be nil.
func NewService(repo Repository, src Sources, cache Cache, upcomingDays int) *Service {
	if upcomingDays <= 0 {
		upcomingDays = 14
	}
	return &Service{repo: repo, src: src, cache: cache, upcomingDays: upcomingDays, now: time.Now}
}

// Admin loads the admin dashboard. The aggregates come from the cache when
// warm; the upcoming and recent lists are always live.
func (s *Service) Admin(ctx context.Context) (Admin, error) {
	asOf := shared.DateOnly(s.now())
	out := Admin{AsOf: asOf, UpcomingDays: s.upcomingDays}
	day := asOf.Format("2006-01-02")
	from := time.Date(asOf.Year(), asOf.Month()-trendMonths+1, 1, 0, 0, 0, 0, time.UTC)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.cached(gctx, []string{"summary", day}, &out.Summary, func(ctx context.Context) (any, error) {
			return s.repo.Summary(ctx, asOf)
		})
	})
	g.Go(func() error {
		return s.cached(gctx, []string{"progress", day}, &out.Progress, func(ctx context.Context) (any, error) {
			return s.repo.Progress(ctx, asOf)
		})
	})
	g.Go(func() error {
		return s.cached(gctx, []string{"trend", day}, &out.Trend, func(ctx context.Context) (any, error) {
			return s.repo.Trend(ctx, from, asOf)
		})
	})
	if s.src.Installments != nil {
		g.Go(func() error {
			items, err := s.src.Installments.Upcoming(gctx, asOf, s.upcomingDays)
			out.Upcoming = items
			return err
		})
	}
	if s.src.Payments != nil {
		g.Go(func() error {
			items, err := s.src.Payments.Recent(gctx, recentPayments)
			out.Recent = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Admin{}, err
	}
	if len(out.Trend) > 0 {
		chart, err := TrendChart(out.Trend)
		if err != nil {
			return Admin{}, err
		}
		out.Chart = chart
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context, parts []string, dest any, loader func(context.Context) (any, error)) error {
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(dest, value)
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *Summary:
		*d = value.(Summary)
	case *[]ProjectProgress:
		*d = value.([]ProjectProgress)
	case *[]MonthPoint:
		*d = value.([]MonthPoint)
	default:
		return errors.New("dashboard: unsupported cache target")
	}
	return nil
}

// Mine loads the member's own dashboard.
func (s *Service) Mine(ctx context.Context, userID int64) (Account, error) {
	asOf := shared.DateOnly(s.now())
	out := Account{AsOf: asOf}

	g, gctx := errgroup.WithContext(ctx)
	if s.src.Memberships != nil {
		g.Go(func() error {
			items, err := s.src.Memberships.ProjectsForUser(gctx, userID)
			out.Memberships = items
			return err
		})
	}
	if s.src.Installments != nil {
		g.Go(func() error {
			items, err := s.src.Installments.ForUser(gctx, userID)
			out.Installments = items
			return err
		})
	}
	if s.src.Penalties != nil {
		g.Go(func() error {
			items, err := s.src.Penalties.ForUser(gctx, userID)
			out.Penalties = items
			return err
		})
	}
	if s.src.Documents != nil {
		g.Go(func() error {
			items, err := s.src.Documents.ForUser(gctx, userID)
			out.Documents = items
			return err
		})
	}
	if s.src.Ledger != nil {
		g.Go(func() error {
			view, err := s.src.Ledger.AccountLedger(gctx, 0, accounting.MemberAccountCode(userID), accounting.JournalFilter{})
			if errors.Is(err, accounting.ErrAccountNotFound) {
				// Nothing was ever posted for the member.
				return nil
			}
			if err != nil {
				return err
			}
			out.Balance = view.Report.Signed
			out.Statement = view.Report.Lines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Account{}, err
	}

	sort.SliceStable(out.Installments, func(i, j int) bool {
		return out.Installments[i].DueDate.Before(out.Installments[j].DueDate)
	})
	for i, inst := range out.Installments {
		if inst.Status == installments.StatusPaid {
			continue
		}
		out.Outstanding += inst.Outstanding()
		if inst.IsOverdue(asOf) {
			out.Overdue += inst.Outstanding()
		}
		if out.NextDue == nil && !inst.IsOverdue(asOf) {
			out.NextDue = &out.Installments[i]
		}
	}
	for _, p := range out.Penalties {
		if p.Status == penalties.StatusAccrued {
			out.Penalty += p.Amount
		}
	}
	out.Outstanding = shared.Round2(out.Outstanding)
	out.Overdue = shared.Round2(out.Overdue)
	out.Penalty = shared.Round2(out.Penalty)
	return out, nil
}
