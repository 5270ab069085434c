package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UpsertOutcome tells what an upsert did to the row keyed by
// (card_id, reference_month).
type UpsertOutcome int

// Upsert outcomes
const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertCreated
	UpsertUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertCreated:
		return "created"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Repository defines the interface for invoice and payment data access.
// This interface is defined in the domain layer, but implemented in the infrastructure layer.
type Repository interface {
	// GetByID retrieves an invoice by its ID
	GetByID(ctx context.Context, id string) (*Invoice, error)

	// GetByCardAndMonth retrieves the invoice of a card for a reference month
	GetByCardAndMonth(ctx context.Context, cardID string, month ReferenceMonth) (*Invoice, error)

	// ListByUserID retrieves the invoices of a user matching filter,
	// ordered by reference month then card
	ListByUserID(ctx context.Context, userID int64, filter InvoiceFilter) ([]*Invoice, error)

	// Upsert inserts the invoice or, when one already exists for
	// (CardID, ReferenceMonth) with a different total and is not paga, revises
	// its total. The returned invoice is nil when nothing was written.
	Upsert(ctx context.Context, params UpsertParams, now time.Time) (*Invoice, UpsertOutcome, error)

	// UpdateTotal revises the total of an invoice, leaving status and paid amount untouched
	UpdateTotal(ctx context.Context, id string, total decimal.Decimal, now time.Time) error

	// UpdateStatus stores a recomputed status
	UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error

	// RecordPayment atomically applies a payment: conditional paid amount
	// update, payment insert and, if requested, installment settlement.
	// Returns ErrConflict when the stored paid amount is not PreviousPaidAmount.
	RecordPayment(ctx context.Context, params RecordPaymentParams) error

	// SettleInvoice atomically stores paga on an invoice and settles the
	// card's pending installments of its reference month
	SettleInvoice(ctx context.Context, params SettleParams, now time.Time) error

	// ListPayments retrieves the payments of an invoice ordered by date
	ListPayments(ctx context.Context, invoiceID string) ([]*Payment, error)
}
