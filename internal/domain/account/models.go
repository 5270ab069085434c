package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Account kinds
const (
	KindInstallment    = "installment"
	KindRecurringFixed = "recurring_fixed"
)

// Installment statuses
const (
	InstallmentPending = "pending"
	InstallmentPaid    = "paid"
)

var (
	accountKinds = map[string]struct{}{
		KindInstallment:    {},
		KindRecurringFixed: {},
	}
	installmentStatuses = map[string]struct{}{
		InstallmentPending: {},
		InstallmentPaid:    {},
	}
)

// Domain errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrForbidden           = errors.New("access forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAccountKind  = errors.New("invalid account kind")
	ErrInvalidInstallments = errors.New("installment count must be at least 1")
)

// Account is a purchase or debt instrument. Installment accounts are split into
// Installments; when CardID is set they are billed on that card's invoices,
// otherwise they form a plain installment plan paid coupon by coupon.
//
// DueDay, ReminderDay and VariesMonthly describe recurring fixed bills (rent,
// utilities). They are plain fields, never encoded in Title.
type Account struct {
	ID                   string          `json:"id"`
	UserID               int64           `json:"userId"`
	Title                string          `json:"title"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	CategoryID           *string         `json:"categoryId,omitempty"`
	Kind                 string          `json:"kind"`
	InstallmentCount     int             `json:"installmentCount"`
	FirstInstallmentDate *time.Time      `json:"firstInstallmentDate,omitempty"`
	CardID               *string         `json:"cardId,omitempty"`
	DueDay               int             `json:"dueDay,omitempty"`
	ReminderDay          int             `json:"reminderDay,omitempty"`
	VariesMonthly        bool            `json:"variesMonthly"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// IsCardBound reports whether the account's installments are billed on a card.
func (a *Account) IsCardBound() bool {
	return a.CardID != nil && *a.CardID != ""
}

// Installment is one dated charge of an installment account.
type Installment struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	SequenceNumber int             `json:"sequenceNumber"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"dueDate"`
	Status         string          `json:"status"`
	PaidDate       *time.Time      `json:"paidDate,omitempty"`
}

// IsPending reports whether the installment is still open.
func (i *Installment) IsPending() bool {
	return i.Status == InstallmentPending
}

// CreateParams contains parameters for creating a new account
type CreateParams struct {
	ID                   string
	UserID               int64
	Title                string
	TotalAmount          decimal.Decimal
	CategoryID           *string
	Kind                 string
	InstallmentCount     int
	FirstInstallmentDate *time.Time
	CardID               *string
	DueDay               int
	ReminderDay          int
	VariesMonthly        bool
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.ID == "" {
		return errors.New("account ID is required")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Title == "" {
		return errors.New("account title is required")
	}
	if !IsValidKind(p.Kind) {
		return ErrInvalidAccountKind
	}
	if !p.TotalAmount.IsPositive() {
		return errors.New("total amount must be positive")
	}

	switch p.Kind {
	case KindInstallment:
		if p.InstallmentCount < 1 {
			return ErrInvalidInstallments
		}
		if p.FirstInstallmentDate == nil || p.FirstInstallmentDate.IsZero() {
			return errors.New("first installment date is required")
		}
	case KindRecurringFixed:
		if p.DueDay < 1 || p.DueDay > 31 {
			return errors.New("due day must be between 1 and 31")
		}
		if p.ReminderDay < 0 || p.ReminderDay > 31 {
			return errors.New("reminder day must be between 0 and 31")
		}
	}
	return nil
}

// IsValidKind checks if the provided account kind is valid.
func IsValidKind(k string) bool {
	_, ok := accountKinds[k]
	return ok
}

// IsValidInstallmentStatus checks if the provided installment status is valid.
func IsValidInstallmentStatus(s string) bool {
	_, ok := installmentStatuses[s]
	return ok
}
