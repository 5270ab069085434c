package card

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the business logic for card operations
type Service struct {
	repo Repository
}

// NewService creates a new card service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateCard validates and stores a new card
func (s *Service) CreateCard(ctx context.Context, params CreateParams) (*Card, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.repo.Create(ctx, params)
}

// GetCard retrieves a card by ID and verifies user ownership
func (s *Service) GetCard(ctx context.Context, cardID string, userID int64) (*Card, error) {
	c, err := s.repo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	// Business rule: verify ownership
	if c.UserID != userID {
		return nil, ErrForbidden
	}

	return c, nil
}

// ListCards retrieves the cards of a user
func (s *Service) ListCards(ctx context.Context, userID int64, activeOnly bool) ([]*Card, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}
	return s.repo.ListByUserID(ctx, userID, activeOnly)
}

// AddRecurringCharge attaches a monthly charge to a card owned by userID
func (s *Service) AddRecurringCharge(ctx context.Context, userID int64, params CreateRecurringChargeParams) (*RecurringCharge, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.GetCard(ctx, params.CardID, userID); err != nil {
		return nil, err
	}
	return s.repo.CreateRecurringCharge(ctx, params)
}

// ListRecurringCharges retrieves the recurring charges on every card of a user
func (s *Service) ListRecurringCharges(ctx context.Context, userID int64) ([]*RecurringCharge, error) {
	return s.repo.ListRecurringChargesByUserID(ctx, userID)
}
