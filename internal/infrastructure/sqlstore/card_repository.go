package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

type CardRepository struct {
	db  *DB
	now func() time.Time
}

func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{db: db, now: time.Now}
}

const cardColumns = `id, user_id, name, cutover_day, due_day, revolving_monthly_rate_percent, active, created_at, updated_at`

func (r *CardRepository) Create(ctx context.Context, params card.CreateParams) (*card.Card, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", card.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ` + cardColumns

	c, err := scanCard(r.db.QueryRowContext(
		ctx, query,
		params.ID, params.UserID, params.Name, params.CutoverDay, params.DueDay,
		params.RevolvingMonthlyRatePercent, params.Active, r.now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return c, nil
}

func (r *CardRepository) GetByID(ctx context.Context, id string) (*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`

	c, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, card.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return c, nil
}

func (r *CardRepository) ListByUserID(ctx context.Context, userID int64, activeOnly bool) ([]*card.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE user_id = $1 AND (active = TRUE OR $2 = FALSE)
		ORDER BY name, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []*card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *CardRepository) ListUserIDsWithActiveCards(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM cards WHERE active = TRUE ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list card owners: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const recurringColumns = `id, card_id, description, amount, billing_day, start_date, end_date, active, created_at`

func (r *CardRepository) CreateRecurringCharge(ctx context.Context, params card.CreateRecurringChargeParams) (*card.RecurringCharge, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", card.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO recurring_charges (` + recurringColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + recurringColumns

	rc, err := scanRecurringCharge(r.db.QueryRowContext(
		ctx, query,
		params.ID, params.CardID, params.Description, params.Amount, params.BillingDay,
		civil.Day(params.StartDate), nullableDay(params.EndDate), params.Active, r.now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create recurring charge: %w", err)
	}
	return rc, nil
}

func (r *CardRepository) ListRecurringChargesByUserID(ctx context.Context, userID int64) ([]*card.RecurringCharge, error) {
	query := `
		SELECT rc.id, rc.card_id, rc.description, rc.amount, rc.billing_day, rc.start_date,
		       rc.end_date, rc.active, rc.created_at
		FROM recurring_charges rc
		JOIN cards c ON rc.card_id = c.id
		WHERE c.user_id = $1
		ORDER BY rc.card_id, rc.billing_day, rc.id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring charges: %w", err)
	}
	defer rows.Close()

	var charges []*card.RecurringCharge
	for rows.Next() {
		rc, err := scanRecurringCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring charge: %w", err)
		}
		charges = append(charges, rc)
	}
	return charges, rows.Err()
}

// scanner is satisfied by *sql.Row, *sql.Rows and tracedRow.
type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*card.Card, error) {
	var c card.Card
	if err := s.Scan(
		&c.ID, &c.UserID, &c.Name, &c.CutoverDay, &c.DueDay,
		&c.RevolvingMonthlyRatePercent, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func scanRecurringCharge(s scanner) (*card.RecurringCharge, error) {
	var rc card.RecurringCharge
	var endDate sql.NullTime
	if err := s.Scan(
		&rc.ID, &rc.CardID, &rc.Description, &rc.Amount, &rc.BillingDay,
		&rc.StartDate, &endDate, &rc.Active, &rc.CreatedAt,
	); err != nil {
		return nil, err
	}
	rc.StartDate = civil.Day(rc.StartDate)
	rc.EndDate = nullDay(endDate)
	rc.CreatedAt = rc.CreatedAt.UTC()
	return &rc, nil
}

// nullDay converts a nullable DATE column into a calendar day pointer.
func nullDay(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	d := civil.Day(t.Time)
	return &d
}
