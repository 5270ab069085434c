package card

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrCardNotFound            = errors.New("card not found")
	ErrRecurringChargeNotFound = errors.New("recurring charge not found")
	ErrForbidden               = errors.New("access forbidden")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidDay              = errors.New("day must be between 1 and 31")
)

// Card represents a credit card owned by a user.
// CutoverDay is the "best purchase day": the day the statement turns over.
// A zero CutoverDay means the cycle is not configured for the card.
type Card struct {
	ID                          string          `json:"id"`
	UserID                      int64           `json:"userId"`
	Name                        string          `json:"name"`
	CutoverDay                  int             `json:"cutoverDay"`
	DueDay                      int             `json:"dueDay"`
	RevolvingMonthlyRatePercent decimal.Decimal `json:"revolvingMonthlyRatePercent"`
	Active                      bool            `json:"active"`
	CreatedAt                   time.Time       `json:"createdAt"`
	UpdatedAt                   time.Time       `json:"updatedAt"`
}

// HasCycle reports whether the card has a statement cutover configured.
func (c *Card) HasCycle() bool {
	return c.CutoverDay >= 1 && c.CutoverDay <= 31
}

// RecurringCharge is an open-ended monthly charge on a card (a subscription).
type RecurringCharge struct {
	ID          string          `json:"id"`
	CardID      string          `json:"cardId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	BillingDay  int             `json:"billingDay"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CreateParams contains parameters for creating a card
type CreateParams struct {
	ID                          string
	UserID                      int64
	Name                        string
	CutoverDay                  int
	DueDay                      int
	RevolvingMonthlyRatePercent decimal.Decimal
	Active                      bool
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.ID == "" {
		return errors.New("card ID is required")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Name == "" {
		return errors.New("card name is required")
	}
	// CutoverDay 0 is allowed: the card then falls back to due-date-only status.
	if p.CutoverDay != 0 && !IsValidDay(p.CutoverDay) {
		return ErrInvalidDay
	}
	if !IsValidDay(p.DueDay) {
		return ErrInvalidDay
	}
	if p.RevolvingMonthlyRatePercent.IsNegative() {
		return errors.New("revolving rate cannot be negative")
	}
	return nil
}

// CreateRecurringChargeParams contains parameters for creating a recurring charge
type CreateRecurringChargeParams struct {
	ID          string
	CardID      string
	Description string
	Amount      decimal.Decimal
	BillingDay  int
	StartDate   time.Time
	EndDate     *time.Time
	Active      bool
}

// Validate validates the recurring charge parameters
func (p CreateRecurringChargeParams) Validate() error {
	if p.ID == "" {
		return errors.New("recurring charge ID is required")
	}
	if p.CardID == "" {
		return errors.New("card ID is required")
	}
	if !p.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if !IsValidDay(p.BillingDay) {
		return ErrInvalidDay
	}
	if p.StartDate.IsZero() {
		return errors.New("start date is required")
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return errors.New("end date must not be before start date")
	}
	return nil
}

// IsValidDay checks that d is a day of month
func IsValidDay(d int) bool {
	return d >= 1 && d <= 31
}
