package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

// Payment validation messages, shown to the user as-is.
const (
	msgAmountNotPositive  = "amount must be positive"
	msgPartialOnClosed    = "partial payment not allowed on closed invoice"
	msgExceedsOutstanding = "amount exceeds outstanding balance"
	msgInvoiceAlreadyPaid = "invoice already paid"
)

// PaymentOutcome is the result of applying a payment: the invoice as it must
// be stored and the ledger entry to append.
type PaymentOutcome struct {
	Invoice *Invoice
	Payment *Payment
	// Settled is true when this payment moved the invoice to paga.
	Settled bool
}

// ApplyPayment validates amount against the invoice and returns the updated
// invoice and payment. It does not modify inv.
//
// The status used for validation is recomputed from the stored fields, so a
// stale stored status cannot let a partial payment through on a closed invoice.
// Closed invoices must be settled in one payment of exactly the outstanding
// balance; scheduled and open invoices accept any amount up to it.
func ApplyPayment(c *card.Card, inv *Invoice, amount decimal.Decimal, now time.Time) (*PaymentOutcome, error) {
	if !amount.IsPositive() {
		return nil, validationError(msgAmountNotPositive)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, validationError(msgAmountNotPositive)
	}

	current := ComputeStatus(c, inv.DueDate, inv.PaidAmount, inv.TotalAmount, now)
	outstanding := inv.Outstanding()
	if current == StatusPaga || !outstanding.IsPositive() {
		return nil, validationError(msgInvoiceAlreadyPaid)
	}

	switch current {
	case StatusFechada:
		if !amount.Equal(outstanding) {
			return nil, validationError(msgPartialOnClosed)
		}
	default:
		if amount.GreaterThan(outstanding) {
			return nil, validationError(msgExceedsOutstanding)
		}
	}

	paidOn := civil.Day(now)
	newPaid := inv.PaidAmount.Add(amount)

	kind := PaymentPartial
	if newPaid.Equal(inv.TotalAmount) {
		kind = PaymentTotal
	}

	updated := *inv
	updated.PaidAmount = newPaid
	updated.Status = ComputeStatus(c, inv.DueDate, newPaid, inv.TotalAmount, now)
	updated.UpdatedAt = now.UTC()

	return &PaymentOutcome{
		Invoice: &updated,
		Payment: &Payment{
			ID:        uuid.NewString(),
			InvoiceID: inv.ID,
			Amount:    amount,
			Date:      paidOn,
			Kind:      kind,
			CreatedAt: now.UTC(),
		},
		Settled: updated.Status == StatusPaga,
	}, nil
}

// recordParams turns an outcome into the atomic store write for it.
func (o *PaymentOutcome) recordParams(previousPaid decimal.Decimal) RecordPaymentParams {
	return RecordPaymentParams{
		InvoiceID:          o.Invoice.ID,
		CardID:             o.Invoice.CardID,
		ReferenceMonth:     o.Invoice.ReferenceMonth,
		PreviousPaidAmount: previousPaid,
		NewPaidAmount:      o.Invoice.PaidAmount,
		NewStatus:          o.Invoice.Status,
		Payment:            *o.Payment,
		SettleInstallments: o.Settled,
	}
}
