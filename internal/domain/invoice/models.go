package invoice

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an invoice (fatura).
type Status string

// Invoice statuses
const (
	StatusPrevista Status = "prevista" // scheduled: the purchase cycle has not opened yet
	StatusAberta   Status = "aberta"   // open: still accumulating charges
	StatusFechada  Status = "fechada"  // closed: charges are final, payment is due
	StatusPaga     Status = "paga"     // paid in full (terminal)
)

var invoiceStatuses = map[Status]struct{}{
	StatusPrevista: {},
	StatusAberta:   {},
	StatusFechada:  {},
	StatusPaga:     {},
}

// IsValidStatus checks if the provided status is valid
func IsValidStatus(s Status) bool {
	_, ok := invoiceStatuses[s]
	return ok
}

// IsTerminal reports whether no recomputation can move the invoice out of s.
func (s Status) IsTerminal() bool {
	return s == StatusPaga
}

// Payment kinds
const (
	PaymentTotal   = "total"
	PaymentPartial = "partial"
)

// Domain errors
var (
	ErrNotFound        = errors.New("not found")
	ErrInvoiceNotFound = notFound("invoice not found")
	ErrCardNotFound    = notFound("card not found")
	ErrConflict        = errors.New("conflicting concurrent write")
	ErrForbidden       = errors.New("access forbidden")
	ErrInvalidInput    = errors.New("invalid input")
)

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports a payment that is not acceptable for the invoice's
// current state. The message is meant to be shown to the user verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationError(msg string) error { return &ValidationError{Msg: msg} }

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Invoice is the aggregated bill of one card for one reference month.
// At most one invoice exists per (CardID, ReferenceMonth).
type Invoice struct {
	ID             string          `json:"id"`
	CardID         string          `json:"cardId"`
	UserID         int64           `json:"userId"`
	ReferenceMonth ReferenceMonth  `json:"referenceMonth"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	PaidAmount     decimal.Decimal `json:"paidAmount"`
	DueDate        time.Time       `json:"dueDate"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Outstanding returns what is still owed on the invoice.
func (inv *Invoice) Outstanding() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// Payment is an append-only ledger entry against an invoice.
type Payment struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	// Date is the calendar day of the payment in the billing location.
	Date      time.Time       `json:"date"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"createdAt"`
}

// UpsertParams contains parameters for creating an invoice keyed by
// (CardID, ReferenceMonth). On conflict only TotalAmount is revised.
type UpsertParams struct {
	ID             string
	CardID         string
	UserID         int64
	ReferenceMonth ReferenceMonth
	TotalAmount    decimal.Decimal
	DueDate        time.Time
	Status         Status
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("invoice ID is required for upsert")
	}
	if p.CardID == "" {
		return errors.New("card ID is required for upsert")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required for upsert")
	}
	if p.ReferenceMonth.IsZero() {
		return errors.New("reference month is required")
	}
	if p.DueDate.IsZero() {
		return errors.New("due date is required")
	}
	if !IsValidStatus(p.Status) {
		return errors.New("invalid invoice status")
	}
	return nil
}

// RecordPaymentParams describes one applied payment to persist atomically.
// PreviousPaidAmount guards the update: the store must refuse the write with
// ErrConflict when the stored paid amount no longer matches.
type RecordPaymentParams struct {
	InvoiceID          string
	CardID             string
	ReferenceMonth     ReferenceMonth
	PreviousPaidAmount decimal.Decimal
	NewPaidAmount      decimal.Decimal
	NewStatus          Status
	Payment            Payment
	// SettleInstallments marks the card's pending installments of the
	// reference month as paid on Payment.Date.
	SettleInstallments bool
}

// SettleParams marks an invoice paga without a payment, once its total has
// dropped to the amount already paid. The card's pending installments of the
// reference month are settled on PaidOn in the same write.
type SettleParams struct {
	InvoiceID      string
	CardID         string
	ReferenceMonth ReferenceMonth
	PaidOn         time.Time
}

// InvoiceFilter selects invoices of one user. Zero values mean "any".
type InvoiceFilter struct {
	CardID   string
	Statuses []Status
	From     *ReferenceMonth
	To       *ReferenceMonth
	Limit    int
	Offset   int
}

// MaxListLimit caps page sizes for ListInvoices.
const MaxListLimit = 200

// Validate validates the filter
func (f InvoiceFilter) Validate() error {
	for _, s := range f.Statuses {
		if !IsValidStatus(s) {
			return errors.New("invalid invoice status filter")
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return errors.New("'to' month must not be before 'from' month")
	}
	if f.Limit < 0 || f.Limit > MaxListLimit {
		return errors.New("limit must be between 0 and 200")
	}
	if f.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	return nil
}
