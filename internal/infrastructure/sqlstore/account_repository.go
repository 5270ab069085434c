package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carteira/internal/domain/account"
	"carteira/internal/shared/civil"
)

type AccountRepository struct {
	db  *DB
	now func() time.Time
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

const accountColumns = `id, user_id, title, total_amount, category_id, kind, installment_count,
	first_installment_date, card_id, due_day, reminder_day, varies_monthly, created_at, updated_at`

const installmentColumns = `id, account_id, sequence_number, amount, due_date, status, paid_date`

// Create stores the account and its installments in one transaction.
func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams, installments []*account.Installment) (*account.Account, error) {
	now := r.now().UTC()

	var acc *account.Account
	err := r.db.WithTx(ctx, "account.create", func(tx *sql.Tx) error {
		var err error
		acc, err = scanAccount(tx.QueryRowContext(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
			RETURNING `+accountColumns,
			params.ID, params.UserID, params.Title, params.TotalAmount, nullableString(params.CategoryID),
			params.Kind, params.InstallmentCount, nullableDay(params.FirstInstallmentDate), nullableString(params.CardID),
			params.DueDay, params.ReminderDay, params.VariesMonthly, now,
		))
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		for _, inst := range installments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO installments (`+installmentColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				inst.ID, acc.ID, inst.SequenceNumber, inst.Amount, civil.Day(inst.DueDate),
				inst.Status, nullableDay(inst.PaidDate),
			)
			if err != nil {
				return fmt.Errorf("failed to create installment %d: %w", inst.SequenceNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) ListInstallmentsByUserID(ctx context.Context, userID int64) ([]*account.Installment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.account_id, i.sequence_number, i.amount, i.due_date, i.status, i.paid_date
		FROM installments i
		JOIN accounts a ON i.account_id = a.id
		WHERE a.user_id = $1
		ORDER BY i.due_date, i.account_id, i.sequence_number
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	return scanInstallments(rows)
}

func (r *AccountRepository) ListInstallmentsByAccountID(ctx context.Context, accountID string) ([]*account.Installment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE account_id = $1
		ORDER BY sequence_number
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	return scanInstallments(rows)
}

func scanAccount(s scanner) (*account.Account, error) {
	var a account.Account
	var categoryID, cardID sql.NullString
	var firstDate sql.NullTime
	if err := s.Scan(
		&a.ID, &a.UserID, &a.Title, &a.TotalAmount, &categoryID, &a.Kind, &a.InstallmentCount,
		&firstDate, &cardID, &a.DueDay, &a.ReminderDay, &a.VariesMonthly, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		a.CategoryID = &categoryID.String
	}
	if cardID.Valid {
		a.CardID = &cardID.String
	}
	a.FirstInstallmentDate = nullDay(firstDate)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanInstallments(rows *sql.Rows) ([]*account.Installment, error) {
	var installments []*account.Installment
	for rows.Next() {
		var inst account.Installment
		var paidDate sql.NullTime
		if err := rows.Scan(
			&inst.ID, &inst.AccountID, &inst.SequenceNumber, &inst.Amount,
			&inst.DueDate, &inst.Status, &paidDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		inst.DueDate = civil.Day(inst.DueDate)
		inst.PaidDate = nullDay(paidDate)
		installments = append(installments, &inst)
	}
	return installments, rows.Err()
}

func nullableDay(t *time.Time) any {
	if t == nil {
		return nil
	}
	return civil.Day(*t)
}

func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
