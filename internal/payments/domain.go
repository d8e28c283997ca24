package payments

import (
	"time"

	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/shared"
)

// Method is how the money was received.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCheque       Method = "CHEQUE"
	MethodCard         Method = "CARD"
)

// Methods lists the accepted payment methods in form order.
var Methods = []Method{MethodCash, MethodBankTransfer, MethodCheque, MethodCard}

// Payment is money received against one user installment.
type Payment struct {
	ID                int64
	UserInstallmentID int64
	InstallmentTitle  string
	ProjectID         int64
	ProjectName       string
	UserID            int64
	UserName          string
	Amount            float64
	PaidAt            time.Time
	Method            Method
	Reference         string
	Note              string
	JournalEntryID    *int64
	CreatedBy         int64
	CreatedAt         time.Time
}

// Input carries the amount step of the payment wizard.
type Input struct {
	InstallmentID int64     `validate:"required,gt=0"`
	Amount        float64   `validate:"gt=0"`
	PaidAt        time.Time `validate:"required"`
	Method        Method    `validate:"required,oneof=CASH BANK_TRANSFER CHEQUE CARD"`
	Reference     string    `validate:"max=100"`
	Note          string    `validate:"max=500"`
}

// Preview is what the confirmation step shows before anything is saved.
type Preview struct {
	Input       Input
	Installment installments.UserInstallment
	// Remaining is the outstanding amount once the payment is applied.
	Remaining float64
	Status    installments.Status
}

// Receipt pairs a payment with the installment it settled.
type Receipt struct {
	Payment     Payment
	Installment installments.UserInstallment
}

// ListFilter narrows the payment listing.
type ListFilter struct {
	ProjectID     int64
	UserID        int64
	InstallmentID int64
	From          *time.Time
	To            *time.Time
	Page          int
	PerPage       int
}

var (
	// ErrNotFound indicates the payment does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrOverpayment rejects amounts above the outstanding installment balance.
	ErrOverpayment = shared.NewUserError("The amount exceeds what is outstanding on the installment.")
	// ErrAlreadyPaid is returned when the installment is settled.
	ErrAlreadyPaid = shared.NewUserError("The installment is already paid in full.")
	// ErrFutureDate rejects payments dated after today.
	ErrFutureDate = shared.NewUserError("The payment date cannot be in the future.")
)
