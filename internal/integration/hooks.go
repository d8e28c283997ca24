// Package integration turns installment, payment and penalty events into
// balanced journal entries through the configured account mappings.
package integration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/accounting"
)

// Ledger exposes the posting operations the hooks need.
type Ledger interface {
	PostJournal(ctx context.Context, input accounting.PostingInput) (accounting.JournalEntry, error)
	EntryForSource(ctx context.Context, module string, sourceID uuid.UUID) (int64, error)
	ResolveMapping(ctx context.Context, module, key string) (accounting.AccountMapping, error)
}

// Hooks wires domain events into the ledger.
type Hooks struct {
	ledger Ledger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger) *Hooks {
	return &Hooks{ledger: ledger}
}

// InstallmentGenerated is raised once per user installment created from a
// definition.
type InstallmentGenerated struct {
	InstallmentID int64
	UserID        int64
	Title         string
	DueDate       time.Time
	Amount        float64
	ActorID       int64
}

// PaymentRecorded is raised when a payment is booked against an installment.
type PaymentRecorded struct {
	PaymentID     int64
	InstallmentID int64
	UserID        int64
	Amount        float64
	PaidAt        time.Time
	Method        string
	Reference     string
	ActorID       int64
}

// PenaltyAccrued carries the growth of a penalty. Total is the accrued
// amount after the change and keys the posting.
type PenaltyAccrued struct {
	PenaltyID int64
	UserID    int64
	Delta     float64
	Total     float64
	AsOf      time.Time
	ActorID   int64
}

// PenaltyWaived reverses everything accrued on a penalty.
type PenaltyWaived struct {
	PenaltyID int64
	UserID    int64
	Amount    float64
	Date      time.Time
	Reason    string
	ActorID   int64
}

func (h *Hooks) resolveCode(ctx context.Context, module, key string) (string, error) {
	mapping, err := h.ledger.ResolveMapping(ctx, module, key)
	if err != nil {
		return "", fmt.Errorf("integration: mapping %s/%s: %w", module, key, err)
	}
	return mapping.AccountCode, nil
}

// post submits input and returns the entry id. A repeated event returns the
// entry posted the first time.
func (h *Hooks) post(ctx context.Context, input accounting.PostingInput) (int64, error) {
	if input.SourceID == uuid.Nil {
		return 0, errors.New("integration: source id required")
	}
	entry, err := h.ledger.PostJournal(ctx, input)
	if err != nil {
		if errors.Is(err, accounting.ErrSourceAlreadyLinked) {
			return h.ledger.EntryForSource(ctx, input.SourceModule, input.SourceID)
		}
		return 0, err
	}
	return entry.ID, nil
}

// HandleInstallmentGenerated bills the member: Dr member receivable, Cr
// buyer advances.
func (h *Hooks) HandleInstallmentGenerated(ctx context.Context, evt InstallmentGenerated) (int64, error) {
	if h == nil || h.ledger == nil {
		return 0, nil
	}
	amount := round2(evt.Amount)
	if amount <= 0 {
		return 0, nil
	}
	if evt.DueDate.IsZero() {
		return 0, errors.New("integration: installment due date required")
	}
	advances, err := h.resolveCode(ctx, accounting.MappingInstallment, accounting.KeyAdvances)
	if err != nil {
		return 0, err
	}
	return h.post(ctx, accounting.PostingInput{
		Date:         evt.DueDate,
		SourceModule: accounting.SourceInstallment,
		SourceID:     accounting.SourceRef(accounting.SourceInstallment, evt.InstallmentID),
		Memo:         "Installment " + evt.Title,
		PostedBy:     evt.ActorID,
		Lines: []accounting.PostingLineInput{
			{AccountCode: accounting.MemberAccountCode(evt.UserID), Debit: amount, Description: evt.Title},
			{AccountCode: advances, Credit: amount, Description: evt.Title},
		},
	})
}

// PaymentKey picks the mapping key of a payment method.
func PaymentKey(method string) string {
	if method == "CASH" {
		return accounting.KeyCash
	}
	return accounting.KeyBank
}

// HandlePaymentRecorded settles the receivable: Dr cash or bank, Cr member
// receivable.
func (h *Hooks) HandlePaymentRecorded(ctx context.Context, evt PaymentRecorded) (int64, error) {
	if h == nil || h.ledger == nil {
		return 0, nil
	}
	amount := round2(evt.Amount)
	if amount <= 0 {
		return 0, nil
	}
	if evt.PaidAt.IsZero() {
		return 0, errors.New("integration: payment date required")
	}
	money, err := h.resolveCode(ctx, accounting.MappingPayment, PaymentKey(evt.Method))
	if err != nil {
		return 0, err
	}
	memo := fmt.Sprintf("Payment #%d for installment #%d", evt.PaymentID, evt.InstallmentID)
	if evt.Reference != "" {
		memo += " ref " + evt.Reference
	}
	return h.post(ctx, accounting.PostingInput{
		Date:         evt.PaidAt,
		SourceModule: accounting.SourcePayment,
		SourceID:     accounting.SourceRef(accounting.SourcePayment, evt.PaymentID),
		Memo:         memo,
		PostedBy:     evt.ActorID,
		Lines: []accounting.PostingLineInput{
			{AccountCode: money, Debit: amount, Description: evt.Method},
			{AccountCode: accounting.MemberAccountCode(evt.UserID), Credit: amount},
		},
	})
}

// HandlePenaltyAccrued books the growth of a penalty: Dr member receivable,
// Cr penalty income.
func (h *Hooks) HandlePenaltyAccrued(ctx context.Context, evt PenaltyAccrued) (int64, error) {
	if h == nil || h.ledger == nil {
		return 0, nil
	}
	delta := round2(evt.Delta)
	if delta <= 0 {
		return 0, nil
	}
	income, err := h.resolveCode(ctx, accounting.MappingPenalty, accounting.KeyIncome)
	if err != nil {
		return 0, err
	}
	return h.post(ctx, accounting.PostingInput{
		Date:         evt.AsOf,
		SourceModule: accounting.SourcePenalty,
		SourceID:     accounting.SourceRef(accounting.SourcePenalty, evt.PenaltyID, cents(evt.Total)),
		Memo:         fmt.Sprintf("Late penalty #%d accrued to %.2f", evt.PenaltyID, round2(evt.Total)),
		PostedBy:     evt.ActorID,
		Lines: []accounting.PostingLineInput{
			{AccountCode: accounting.MemberAccountCode(evt.UserID), Debit: delta},
			{AccountCode: income, Credit: delta},
		},
	})
}

// HandlePenaltyWaived reverses the accrued penalty: Dr penalty income, Cr
// member receivable.
func (h *Hooks) HandlePenaltyWaived(ctx context.Context, evt PenaltyWaived) (int64, error) {
	if h == nil || h.ledger == nil {
		return 0, nil
	}
	amount := round2(evt.Amount)
	if amount <= 0 {
		return 0, nil
	}
	income, err := h.resolveCode(ctx, accounting.MappingPenalty, accounting.KeyIncome)
	if err != nil {
		return 0, err
	}
	memo := fmt.Sprintf("Penalty #%d waived", evt.PenaltyID)
	if evt.Reason != "" {
		memo += ": " + evt.Reason
	}
	return h.post(ctx, accounting.PostingInput{
		Date:         evt.Date,
		SourceModule: accounting.SourcePenalty,
		SourceID:     accounting.SourceRef(accounting.SourcePenalty, "waive", evt.PenaltyID),
		Memo:         memo,
		PostedBy:     evt.ActorID,
		Lines: []accounting.PostingLineInput{
			{AccountCode: income, Debit: amount},
			{AccountCode: accounting.MemberAccountCode(evt.UserID), Credit: amount},
		},
	})
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func cents(value float64) int64 {
	return int64(math.Round(value * 100))
}
