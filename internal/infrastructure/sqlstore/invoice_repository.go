package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain/invoice"
	"carteira/internal/shared/civil"
)

type InvoiceRepository struct {
	db *DB
}

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, card_id, user_id, reference_month, total_amount, paid_amount, due_date, status, created_at, updated_at`

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, invoice.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) GetByCardAndMonth(ctx context.Context, cardID string, month invoice.ReferenceMonth) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE card_id = $1 AND reference_month = $2`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, cardID, month.String()))
	if err == sql.ErrNoRows {
		return nil, invoice.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice by card and month: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) ListByUserID(ctx context.Context, userID int64, filter invoice.InvoiceFilter) ([]*invoice.Invoice, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CardID != "" {
		conditions = append(conditions, "card_id = "+arg(filter.CardID))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = arg(string(s))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.From != nil {
		conditions = append(conditions, "reference_month >= "+arg(filter.From.String()))
	}
	if filter.To != nil {
		conditions = append(conditions, "reference_month <= "+arg(filter.To.String()))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY reference_month, card_id`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// Upsert writes the invoice keyed by (card_id, reference_month). An existing
// row only has its total revised, and only while it differs and is not paga.
// The returned id tells an insert from an update: ids of new rows are params.ID.
func (r *InvoiceRepository) Upsert(ctx context.Context, params invoice.UpsertParams, now time.Time) (*invoice.Invoice, invoice.UpsertOutcome, error) {
	if err := params.Validate(); err != nil {
		return nil, invoice.UpsertUnchanged, fmt.Errorf("%w: %v", invoice.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (card_id, reference_month) DO UPDATE
		SET total_amount = EXCLUDED.total_amount, updated_at = EXCLUDED.updated_at
		WHERE invoices.total_amount <> EXCLUDED.total_amount AND invoices.status <> 'paga'
		RETURNING ` + invoiceColumns

	inv, err := scanInvoice(r.db.QueryRowContext(
		ctx, query,
		params.ID, params.CardID, params.UserID, params.ReferenceMonth.String(),
		params.TotalAmount.Round(2), decimal.Zero, civil.Day(params.DueDate), string(params.Status), now.UTC(),
	))
	if err == sql.ErrNoRows {
		return nil, invoice.UpsertUnchanged, nil
	}
	if isUniqueViolation(err) {
		// primary key clash on a fresh id
		return nil, invoice.UpsertUnchanged, invoice.ErrConflict
	}
	if err != nil {
		return nil, invoice.UpsertUnchanged, fmt.Errorf("failed to upsert invoice: %w", err)
	}

	if inv.ID == params.ID {
		return inv, invoice.UpsertCreated, nil
	}
	return inv, invoice.UpsertUpdated, nil
}

func (r *InvoiceRepository) UpdateTotal(ctx context.Context, id string, total decimal.Decimal, now time.Time) error {
	query := `
		UPDATE invoices
		SET total_amount = $1, updated_at = $2
		WHERE id = $3 AND status <> 'paga'
	`

	result, err := r.db.ExecContext(ctx, query, total.Round(2), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update invoice total: %w", err)
	}
	return r.requireRow(ctx, result, id)
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status invoice.Status, now time.Time) error {
	if !invoice.IsValidStatus(status) {
		return fmt.Errorf("%w: invalid invoice status %q", invoice.ErrInvalidInput, status)
	}

	result, err := r.db.ExecContext(ctx, `UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	return r.requireRow(ctx, result, id)
}

// requireRow turns a zero-row update into ErrInvoiceNotFound, or ErrConflict
// when the invoice exists but its guard no longer holds.
func (r *InvoiceRepository) requireRow(ctx context.Context, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM invoices WHERE id = $1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return invoice.ErrInvoiceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check invoice: %w", err)
	}
	return invoice.ErrConflict
}

// RecordPayment applies the payment in one transaction. The paid amount only
// moves when it still equals PreviousPaidAmount, so of two concurrent payments
// on the same invoice one fails with ErrConflict.
func (r *InvoiceRepository) RecordPayment(ctx context.Context, params invoice.RecordPaymentParams) error {
	p := params.Payment
	paidOn := civil.Day(p.Date)
	recordedAt := p.CreatedAt.UTC()
	if p.CreatedAt.IsZero() {
		recordedAt = paidOn
	}

	return r.db.WithTx(ctx, "invoice.record_payment", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE invoices
			SET paid_amount = $1, status = $2, updated_at = $3
			WHERE id = $4 AND paid_amount = $5
		`, params.NewPaidAmount.Round(2), string(params.NewStatus), recordedAt, params.InvoiceID, params.PreviousPaidAmount.Round(2))
		if err != nil {
			return fmt.Errorf("failed to update paid amount: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM invoices WHERE id = $1`, params.InvoiceID).Scan(&exists)
			if err == sql.ErrNoRows {
				return invoice.ErrInvoiceNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check invoice: %w", err)
			}
			return invoice.ErrConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, invoice_id, amount, paid_at, kind, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, params.InvoiceID, p.Amount.Round(2), paidOn, p.Kind, recordedAt)
		if isUniqueViolation(err) {
			return invoice.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		if !params.SettleInstallments {
			return nil
		}

		return settleInstallments(ctx, tx, params.CardID, params.ReferenceMonth, paidOn)
	})
}

// SettleInvoice marks an unpaid invoice paga and settles its installments.
// It refuses the write with ErrConflict when the invoice is already paga.
func (r *InvoiceRepository) SettleInvoice(ctx context.Context, params invoice.SettleParams, now time.Time) error {
	return r.db.WithTx(ctx, "invoice.settle", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE invoices SET status = 'paga', updated_at = $1
			WHERE id = $2 AND status <> 'paga'
		`, now.UTC(), params.InvoiceID)
		if err != nil {
			return fmt.Errorf("failed to settle invoice: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM invoices WHERE id = $1`, params.InvoiceID).Scan(&exists)
			if err == sql.ErrNoRows {
				return invoice.ErrInvoiceNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check invoice: %w", err)
			}
			return invoice.ErrConflict
		}

		return settleInstallments(ctx, tx, params.CardID, params.ReferenceMonth, civil.Day(params.PaidOn))
	})
}

// settleInstallments marks paid the pending installments due in month whose
// account is bound to cardID.
func settleInstallments(ctx context.Context, tx *sql.Tx, cardID string, month invoice.ReferenceMonth, paidOn time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET status = 'paid', paid_date = $1
		WHERE status = 'pending'
		  AND due_date >= $2 AND due_date < $3
		  AND account_id IN (SELECT id FROM accounts WHERE card_id = $4)
	`, paidOn, month.First(), month.AddMonths(1).First(), cardID)
	if err != nil {
		return fmt.Errorf("failed to settle installments: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) ListPayments(ctx context.Context, invoiceID string) ([]*invoice.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, invoice_id, amount, paid_at, kind, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at, created_at, id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*invoice.Payment
	for rows.Next() {
		var p invoice.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Date, &p.Kind, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Date = p.Date.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

func scanInvoice(s scanner) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	var status string
	if err := s.Scan(
		&inv.ID, &inv.CardID, &inv.UserID, &inv.ReferenceMonth, &inv.TotalAmount, &inv.PaidAmount,
		&inv.DueDate, &status, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = invoice.Status(status)
	inv.DueDate = civil.Day(inv.DueDate)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}
