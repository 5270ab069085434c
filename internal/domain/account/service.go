package account

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateAccount validates the account and, for installment accounts, generates
// its installments before storing both.
func (s *Service) CreateAccount(ctx context.Context, params CreateParams) (*Account, []*Installment, error) {
	if err := params.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var installments []*Installment
	if params.Kind == KindInstallment {
		installments = BuildInstallments(params.ID, params.TotalAmount, params.InstallmentCount, *params.FirstInstallmentDate)
	}

	acc, err := s.repo.Create(ctx, params, installments)
	if err != nil {
		return nil, nil, err
	}
	return acc, installments, nil
}

// GetAccount retrieves an account by ID and verifies user ownership
func (s *Service) GetAccount(ctx context.Context, accountID string, userID int64) (*Account, error) {
	acc, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Business rule: verify ownership
	if acc.UserID != userID {
		return nil, ErrForbidden
	}

	return acc, nil
}

// ListAccountsByUserID retrieves all accounts for a specific user
func (s *Service) ListAccountsByUserID(ctx context.Context, userID int64) ([]*Account, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}

	return s.repo.ListByUserID(ctx, userID)
}

// ListInstallments returns the installments of an account owned by userID
func (s *Service) ListInstallments(ctx context.Context, accountID string, userID int64) ([]*Installment, error) {
	if _, err := s.GetAccount(ctx, accountID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListInstallmentsByAccountID(ctx, accountID)
}
