package card

import "context"

// Repository defines the interface for card data access.
// Cards are maintained by the CRUD surface; the billing engine only reads them.
type Repository interface {
	// Create creates a new card
	Create(ctx context.Context, params CreateParams) (*Card, error)

	// GetByID retrieves a card by its ID
	GetByID(ctx context.Context, id string) (*Card, error)

	// ListByUserID retrieves the cards of a user; activeOnly filters out inactive cards
	ListByUserID(ctx context.Context, userID int64, activeOnly bool) ([]*Card, error)

	// ListUserIDsWithActiveCards returns every user that owns at least one active card
	ListUserIDsWithActiveCards(ctx context.Context) ([]int64, error)

	// CreateRecurringCharge creates a recurring monthly charge on a card
	CreateRecurringCharge(ctx context.Context, params CreateRecurringChargeParams) (*RecurringCharge, error)

	// ListRecurringChargesByUserID retrieves the recurring charges on all cards of a user
	ListRecurringChargesByUserID(ctx context.Context, userID int64) ([]*RecurringCharge, error)
}
