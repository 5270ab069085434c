package invoice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
)

// Notifier is told about invoices that were just paid in full.
// Delivery is best effort: a failing notifier never fails the payment.
type Notifier interface {
	InvoicePaid(ctx context.Context, inv *Invoice) error
}

// ServiceConfig holds the optional collaborators of the invoice service.
type ServiceConfig struct {
	// HorizonMonths is how far ahead recurring charges are invoiced.
	HorizonMonths int
	// Notifier may be nil.
	Notifier Notifier
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service contains the billing operations exposed to the host: reconciliation,
// payment and interest, plus read access for the API.
type Service struct {
	invoices   Repository
	cards      card.Repository
	accounts   account.Repository
	reconciler *Reconciler
	notifier   Notifier
	clock      func() time.Time
}

// NewService creates a new invoice service
func NewService(invoices Repository, cards card.Repository, accounts account.Repository, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	reconciler := NewReconciler(invoices, cfg.HorizonMonths)
	reconciler.notifier = cfg.Notifier
	return &Service{
		invoices:   invoices,
		cards:      cards,
		accounts:   accounts,
		reconciler: reconciler,
		notifier:   cfg.Notifier,
		clock:      clock,
	}
}

// Breakdown is an invoice together with the charge lines behind it.
type Breakdown struct {
	Invoice    *Invoice        `json:"invoice"`
	Lines      []ChargeLine    `json:"lines"`
	LinesTotal decimal.Decimal `json:"linesTotal"`
}

// LoadSnapshot reads everything reconciliation needs for one user.
func (s *Service) LoadSnapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: valid user ID is required", ErrInvalidInput)
	}

	cards, err := s.cards.ListByUserID(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	accounts, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	installments, err := s.accounts.ListInstallmentsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	recurring, err := s.cards.ListRecurringChargesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring charges: %w", err)
	}
	invoices, err := s.invoices.ListByUserID(ctx, userID, InvoiceFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	return &Snapshot{
		UserID:           userID,
		Cards:            cards,
		Accounts:         accounts,
		Installments:     installments,
		RecurringCharges: recurring,
		Invoices:         invoices,
	}, nil
}

// ReconcileInvoices runs aggregation, reconciliation and the status refresh
// over every card of the user. It is safe to call repeatedly and concurrently.
// Per card/month failures are reported in the result, not as an error.
func (s *Service) ReconcileInvoices(ctx context.Context, userID int64) (*ReconcileResult, error) {
	snap, err := s.LoadSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := s.reconciler.Reconcile(ctx, snap, s.clock())

	log.Debug().
		Int64("user_id", userID).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("status_changed", res.StatusChanged).
		Int("errors", len(res.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Invoices reconciled")

	return res, nil
}

// UserReconcile is the outcome of reconciling one user in a batch.
type UserReconcile struct {
	Result *ReconcileResult
	Err    error
}

// ReconcileUsers reconciles several users concurrently, at most workers at a
// time. Users that could not be processed carry Err.
func (s *Service) ReconcileUsers(ctx context.Context, userIDs []int64, workers int) map[int64]UserReconcile {
	if workers < 1 {
		workers = 1
	}
	results := make(map[int64]UserReconcile, len(userIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, workers)

	for _, userID := range userIDs {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				results[uid] = UserReconcile{Err: ctx.Err()}
				mu.Unlock()
				return
			}

			res, err := s.ReconcileInvoices(ctx, uid)

			mu.Lock()
			results[uid] = UserReconcile{Result: res, Err: err}
			mu.Unlock()
		}(userID)
	}

	wg.Wait()
	return results
}

// PayInvoice applies a payment to an invoice owned by userID and stores it
// atomically. A concurrent payment on the same invoice makes this one fail
// with ErrConflict.
func (s *Service) PayInvoice(ctx context.Context, userID int64, invoiceID string, amount decimal.Decimal, now time.Time) (*Invoice, error) {
	inv, err := s.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	c, err := s.cardOf(ctx, inv)
	if err != nil {
		return nil, err
	}

	outcome, err := ApplyPayment(c, inv, amount, now)
	if err != nil {
		return nil, err
	}

	if err := s.invoices.RecordPayment(ctx, outcome.recordParams(inv.PaidAmount)); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Str("invoice_id", inv.ID).
		Str("amount", outcome.Payment.Amount.StringFixed(2)).
		Str("kind", outcome.Payment.Kind).
		Str("status", string(outcome.Invoice.Status)).
		Msg("Payment recorded")

	if outcome.Settled && s.notifier != nil {
		if err := s.notifier.InvoicePaid(ctx, outcome.Invoice); err != nil {
			log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Failed to notify invoice paid")
		}
	}

	return outcome.Invoice, nil
}

// ComputeInterest returns the overdue interest of an invoice at now.
// Nothing is stored.
func (s *Service) ComputeInterest(ctx context.Context, userID int64, invoiceID string, now time.Time) (decimal.Decimal, error) {
	inv, err := s.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	c, err := s.cardOf(ctx, inv)
	if err != nil {
		return decimal.Zero, err
	}
	return OverdueInterest(inv, c, now), nil
}

// GetInvoice retrieves an invoice by ID and verifies user ownership
func (s *Service) GetInvoice(ctx context.Context, userID int64, invoiceID string) (*Invoice, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: invoice ID is required", ErrInvalidInput)
	}

	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	// Business rule: verify ownership
	if inv.UserID != userID {
		return nil, ErrForbidden
	}

	return inv, nil
}

// ListInvoices retrieves the invoices of a user matching filter
func (s *Service) ListInvoices(ctx context.Context, userID int64, filter InvoiceFilter) ([]*Invoice, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if filter.Limit == 0 {
		filter.Limit = 50
	}
	return s.invoices.ListByUserID(ctx, userID, filter)
}

// ListPayments retrieves the payment ledger of an invoice owned by userID
func (s *Service) ListPayments(ctx context.Context, userID int64, invoiceID string) ([]*Payment, error) {
	if _, err := s.GetInvoice(ctx, userID, invoiceID); err != nil {
		return nil, err
	}
	return s.invoices.ListPayments(ctx, invoiceID)
}

// InvoiceBreakdown rebuilds the charge lines of an invoice from the current
// installments and recurring charges of its card. Lines of installments that
// were settled by paying the invoice are included.
func (s *Service) InvoiceBreakdown(ctx context.Context, userID int64, invoiceID string) (*Breakdown, error) {
	inv, err := s.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	c, err := s.cardOf(ctx, inv)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	installments, err := s.accounts.ListInstallmentsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	recurring, err := s.cards.ListRecurringChargesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring charges: %w", err)
	}

	agg := newChargeIndex(accounts, installments, recurring).aggregate(c, inv.ReferenceMonth, inv.Status == StatusPaga)
	lines := agg.Lines
	if lines == nil {
		lines = []ChargeLine{}
	}
	return &Breakdown{Invoice: inv, Lines: lines, LinesTotal: agg.Total}, nil
}

func (s *Service) cardOf(ctx context.Context, inv *Invoice) (*card.Card, error) {
	c, err := s.cards.GetByID(ctx, inv.CardID)
	if errors.Is(err, card.ErrCardNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	return c, nil
}
