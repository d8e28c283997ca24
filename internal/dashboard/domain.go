package dashboard

import (
	"html/template"
	"time"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
	"github.com/estatebook/estatebook/internal/documents"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/payments"
	"github.com/estatebook/estatebook/internal/penalties"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

// Summary holds the headline figures of the admin dashboard.
type Summary struct {
	Projects         int     `json:"projects"`
	Members          int     `json:"members"`
	Billed           float64 `json:"billed"`
	Collected        float64 `json:"collected"`
	Outstanding      float64 `json:"outstanding"`
	OverdueCount     int     `json:"overdue_count"`
	OverdueAmount    float64 `json:"overdue_amount"`
	AccruedPenalties float64 `json:"accrued_penalties"`
}

// CollectionRate is the collected share of everything billed, in percent.
func (s Summary) CollectionRate() float64 {
	if s.Billed <= 0 {
		return 0
	}
	return shared.Round2(s.Collected / s.Billed * 100)
}

// ProjectProgress is one row of the per-project table.
type ProjectProgress struct {
	ProjectID int64   `json:"project_id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Members   int     `json:"members"`
	Billed    float64 `json:"billed"`
	Collected float64 `json:"collected"`
	Overdue   float64 `json:"overdue"`
}

// Outstanding is what the project's members still owe.
func (p ProjectProgress) Outstanding() float64 {
	return shared.Round2(p.Billed - p.Collected)
}

// Percent is the collected share of the billed amount.
func (p ProjectProgress) Percent() float64 {
	if p.Billed <= 0 {
		return 0
	}
	return shared.Round2(p.Collected / p.Billed * 100)
}

// MonthPoint compares billing and collection for one calendar month.
type MonthPoint struct {
	Month     time.Time `json:"month"`
	Billed    float64   `json:"billed"`
	Collected float64   `json:"collected"`
}

// Admin is everything the admin dashboard shows.
type Admin struct {
	AsOf         time.Time
	UpcomingDays int
	Summary      Summary
	Progress     []ProjectProgress
	Trend        []MonthPoint
	Chart        template.HTML
	Upcoming     []installments.UserInstallment
	Recent       []payments.Payment
}

// Account is the member's own view of their projects and dues.
type Account struct {
	AsOf         time.Time
	Memberships  []projects.Membership
	Installments []installments.UserInstallment
	Penalties    []penalties.Penalty
	Documents    []documents.Document
	Statement    []ledger.Line
	// Balance is the receivable balance of the member's ledger account.
	Balance     float64
	Outstanding float64
	Overdue     float64
	Penalty     float64
	NextDue     *installments.UserInstallment
}
