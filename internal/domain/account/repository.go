package account

import "context"

// Repository defines the interface for account and installment data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Create stores an account together with its installments in one transaction
	Create(ctx context.Context, params CreateParams, installments []*Installment) (*Account, error)

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id string) (*Account, error)

	// ListByUserID retrieves all accounts for a specific user
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)

	// ListInstallmentsByUserID retrieves the installments of every account of a user
	ListInstallmentsByUserID(ctx context.Context, userID int64) ([]*Installment, error)

	// ListInstallmentsByAccountID retrieves the installments of one account ordered by sequence
	ListInstallmentsByAccountID(ctx context.Context, accountID string) ([]*Installment, error)
}
