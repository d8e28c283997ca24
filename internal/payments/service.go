package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/shared"
)

// InstallmentPort reads and settles user installments.
type InstallmentPort interface {
	Get(ctx context.Context, id int64) (installments.UserInstallment, error)
	Lock(ctx context.Context, id int64) (installments.UserInstallment, error)
	ApplyPayment(ctx context.Context, inst installments.UserInstallment, amount float64, paidAt time.Time) (installments.UserInstallment, error)
}

// Poster books received payments in the ledger.
type Poster interface {
	HandlePaymentRecorded(ctx context.Context, evt integration.PaymentRecorded) (int64, error)
}

// IdempotencyPort rejects repeated wizard submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// AuditPort records payment events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached dashboard figures after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Observer is told about every committed payment.
type Observer interface {
	PaymentCollected(amount float64)
}

const idempotencyModule = "payments.record"

// Service records payments against user installments.
type Service struct {
	repo         Repository
	installments InstallmentPort
	poster       Poster
	idempotency  IdempotencyPort
	audit        AuditPort
	cache        Invalidator
	tx           shared.TxRunner
	observer     Observer
	validate     *validator.Validate
	now          func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, installments InstallmentPort, poster Poster, idempotency IdempotencyPort, audit AuditPort, cache Invalidator, tx shared.TxRunner) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{
		repo:         repo,
		installments: installments,
		poster:       poster,
		idempotency:  idempotency,
		audit:        audit,
		cache:        cache,
		tx:           tx,
		validate:     validator.New(),
		now:          time.Now,
	}
}

func (s *Service) normalize(in Input) Input {
	in.Amount = shared.Round2(in.Amount)
	in.Method = Method(strings.ToUpper(strings.TrimSpace(string(in.Method))))
	in.Reference = strings.TrimSpace(in.Reference)
	in.Note = strings.TrimSpace(in.Note)
	if !in.PaidAt.IsZero() {
		in.PaidAt = shared.DateOnly(in.PaidAt)
	}
	return in
}

// Validate checks the amount step of the wizard.
func (s *Service) Validate(in Input) map[string]string {
	in = s.normalize(in)
	if err := s.validate.Struct(in); err != nil {
		return shared.ValidationMessages(err)
	}
	if in.PaidAt.After(shared.DateOnly(s.now())) {
		return map[string]string{"PaidAt": ErrFutureDate.Error()}
	}
	return map[string]string{}
}

// Check previews a payment against the current installment balance.
func (s *Service) Check(ctx context.Context, in Input) (Preview, error) {
	in = s.normalize(in)
	if errs := s.Validate(in); len(errs) > 0 {
		return Preview{}, FieldErrors(errs)
	}
	inst, err := s.installments.Get(ctx, in.InstallmentID)
	if err != nil {
		return Preview{}, err
	}
	return preview(in, inst)
}

func preview(in Input, inst installments.UserInstallment) (Preview, error) {
	if inst.Status == installments.StatusPaid || inst.Outstanding() <= 0 {
		return Preview{}, ErrAlreadyPaid
	}
	if in.Amount > inst.Outstanding() {
		return Preview{}, ErrOverpayment
	}
	paid := shared.Round2(inst.PaidAmount + in.Amount)
	return Preview{
		Input:       in,
		Installment: inst,
		Remaining:   shared.Round2(inst.ShareAmount - paid),
		Status:      installments.StatusFor(inst.ShareAmount, paid),
	}, nil
}

// Record saves the payment, settles the installment and posts the journal
// entry in one transaction. key rejects a second submission of the same
// wizard.
func (s *Service) Record(ctx context.Context, actorID int64, key string, in Input) (Receipt, error) {
	in = s.normalize(in)
	if errs := s.Validate(in); len(errs) > 0 {
		return Receipt{}, FieldErrors(errs)
	}
	var receipt Receipt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if s.idempotency != nil && key != "" {
			if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				return err
			}
		}
		inst, err := s.installments.Lock(ctx, in.InstallmentID)
		if err != nil {
			return err
		}
		if _, err := preview(in, inst); err != nil {
			return err
		}
		payment, err := s.repo.Insert(ctx, Payment{
			UserInstallmentID: inst.ID,
			ProjectID:         inst.ProjectID,
			UserID:            inst.UserID,
			Amount:            in.Amount,
			PaidAt:            in.PaidAt,
			Method:            in.Method,
			Reference:         in.Reference,
			Note:              in.Note,
			CreatedBy:         actorID,
		})
		if err != nil {
			return err
		}
		settled, err := s.installments.ApplyPayment(ctx, inst, in.Amount, in.PaidAt)
		if err != nil {
			if errors.Is(err, installments.ErrPaidTooMuch) {
				return ErrOverpayment
			}
			return err
		}
		if s.poster != nil {
			entryID, err := s.poster.HandlePaymentRecorded(ctx, integration.PaymentRecorded{
				PaymentID:     payment.ID,
				InstallmentID: inst.ID,
				UserID:        inst.UserID,
				Amount:        payment.Amount,
				PaidAt:        payment.PaidAt,
				Method:        string(payment.Method),
				Reference:     payment.Reference,
				ActorID:       actorID,
			})
			if err != nil {
				return fmt.Errorf("payments: post payment %d: %w", payment.ID, err)
			}
			if entryID > 0 {
				if err := s.repo.SetJournalEntry(ctx, payment.ID, entryID); err != nil {
					return err
				}
				payment.JournalEntryID = &entryID
			}
		}
		receipt = Receipt{Payment: payment, Installment: settled}
		return s.record(ctx, actorID, "payment.record", payment.ID, map[string]any{
			"installment_id": inst.ID,
			"amount":         payment.Amount,
			"method":         string(payment.Method),
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.observer != nil {
		s.observer.PaymentCollected(receipt.Payment.Amount)
	}
	return receipt, nil
}

// WithObserver registers a payment observer, typically the metrics registry.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

// Receipt loads a payment with the current state of its installment.
func (s *Service) Receipt(ctx context.Context, id int64) (Receipt, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	inst, err := s.installments.Get(ctx, p.UserInstallmentID)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Payment: p, Installment: inst}, nil
}

// List returns one page of payments.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Payment, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ForInstallment returns every payment made against an installment.
func (s *Service) ForInstallment(ctx context.Context, installmentID int64) ([]Payment, error) {
	items, _, err := s.repo.List(ctx, ListFilter{InstallmentID: installmentID})
	return items, err
}

// Recent returns the latest payments, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Payment, error) {
	items, _, err := s.repo.List(ctx, ListFilter{PerPage: limit})
	return items, err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

// FieldErrors carries per-field validation messages out of the service.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "payments: invalid input"
}

// AsFieldErrors extracts validation messages from err.
func AsFieldErrors(err error) (map[string]string, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
