package invoice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

var (
	reconcileMeter     = otel.Meter("carteira/invoice")
	reconcileWrites, _ = reconcileMeter.Int64Counter("billing.reconcile.writes", metric.WithDescription("Invoice writes performed by reconciliation, by kind"))
	reconcileErrors, _ = reconcileMeter.Int64Counter("billing.reconcile.errors", metric.WithDescription("Card/month pairs that failed to reconcile"))
)

// Snapshot is everything the reconciler needs to know about one user.
// Cards holds every card of the user; only active ones are billed, but all of
// them are needed to refresh the status of existing invoices.
type Snapshot struct {
	UserID           int64
	Cards            []*card.Card
	Accounts         []*account.Account
	Installments     []*account.Installment
	RecurringCharges []*card.RecurringCharge
	Invoices         []*Invoice
}

// PairError is a failure to reconcile one card for one month.
type PairError struct {
	CardID  string         `json:"cardId"`
	Month   ReferenceMonth `json:"referenceMonth"`
	Message string         `json:"error"`
	Err     error          `json:"-"`
}

func (e *PairError) Error() string {
	return fmt.Sprintf("card %s month %s: %v", e.CardID, e.Month, e.Err)
}

func (e *PairError) Unwrap() error { return e.Err }

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	UserID        int64        `json:"userId"`
	Created       int          `json:"created"`
	Updated       int          `json:"updated"`
	Unchanged     int          `json:"unchanged"`
	StatusChanged int          `json:"statusChanged"`
	Errors        []*PairError `json:"errors,omitempty"`
}

// Writes returns how many rows the pass wrote.
func (r *ReconcileResult) Writes() int {
	return r.Created + r.Updated + r.StatusChanged
}

// Err joins the per-pair errors, or returns nil when the pass was clean.
func (r *ReconcileResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func (r *ReconcileResult) addError(ctx context.Context, cardID string, month ReferenceMonth, err error) {
	r.Errors = append(r.Errors, &PairError{CardID: cardID, Month: month, Message: err.Error(), Err: err})
	reconcileErrors.Add(ctx, 1)
	log.Error().Err(err).
		Int64("user_id", r.UserID).
		Str("card_id", cardID).
		Str("month", month.String()).
		Msg("Failed to reconcile invoice")
}

type invoiceKey struct {
	cardID string
	month  ReferenceMonth
}

// Reconciler brings stored invoices into agreement with the charges of a
// Snapshot. It holds no state between passes.
type Reconciler struct {
	repo     Repository
	horizon  int
	notifier Notifier
}

// NewReconciler creates a reconciler that materializes recurring charges
// horizon months ahead.
func NewReconciler(repo Repository, horizon int) *Reconciler {
	if horizon <= 0 {
		horizon = DefaultHorizonMonths
	}
	return &Reconciler{repo: repo, horizon: horizon}
}

// Reconcile creates missing invoices, revises totals that drifted and then
// refreshes the status of every open invoice of the user. A pass over
// unchanged data performs no writes. Each card/month pair is independent:
// failures are recorded in the result and the pass continues.
//
// Paid invoices are frozen. Settling an invoice settles its installments,
// which then stop counting towards the month's total, so re-aggregating a
// paga month would always shrink it.
func (r *Reconciler) Reconcile(ctx context.Context, snap *Snapshot, now time.Time) *ReconcileResult {
	res := &ReconcileResult{UserID: snap.UserID}
	memo := NewCycleMemo()
	idx := newChargeIndex(snap.Accounts, snap.Installments, snap.RecurringCharges)

	current := make(map[invoiceKey]*Invoice, len(snap.Invoices))
	for _, inv := range snap.Invoices {
		current[invoiceKey{inv.CardID, inv.ReferenceMonth}] = inv
	}

	for _, c := range snap.Cards {
		if !c.Active {
			continue
		}
		for _, month := range idx.candidateMonths(c, now, r.horizon) {
			if err := ctx.Err(); err != nil {
				res.addError(ctx, c.ID, month, err)
				return res
			}

			agg := idx.aggregate(c, month, false)
			if agg.IsEmpty() {
				continue
			}

			key := invoiceKey{c.ID, month}
			inv, err := r.reconcilePair(ctx, memo, c, agg, current[key], now, res)
			if err != nil {
				res.addError(ctx, c.ID, month, err)
				continue
			}
			if inv != nil {
				current[key] = inv
			}
		}
	}

	r.refreshStatuses(ctx, memo, snap.Cards, current, now, res)
	return res
}

// reconcilePair writes at most one row for (card, month) and returns the
// invoice as now stored, or nil when it is not known.
func (r *Reconciler) reconcilePair(ctx context.Context, memo *CycleMemo, c *card.Card, agg Aggregate, existing *Invoice, now time.Time, res *ReconcileResult) (*Invoice, error) {
	if existing != nil {
		return r.revise(ctx, existing, agg.Total, now, res)
	}

	dueDate := DueDateForMonth(c, agg.Month)
	params := UpsertParams{
		ID:             uuid.NewString(),
		CardID:         c.ID,
		UserID:         c.UserID,
		ReferenceMonth: agg.Month,
		TotalAmount:    agg.Total,
		DueDate:        dueDate,
		Status:         computeStatus(memo, c, dueDate, decimal.Zero, agg.Total, now),
	}

	inv, outcome, err := r.repo.Upsert(ctx, params, now)
	if errors.Is(err, ErrConflict) {
		// Another writer got there first; treat the row as reconciled and
		// fall back to revising its total.
		stored, getErr := r.repo.GetByCardAndMonth(ctx, c.ID, agg.Month)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load conflicting invoice: %w", getErr)
		}
		return r.revise(ctx, stored, agg.Total, now, res)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert invoice: %w", err)
	}

	switch outcome {
	case UpsertCreated:
		res.Created++
	case UpsertUpdated:
		res.Updated++
	default:
		res.Unchanged++
	}
	if outcome != UpsertUnchanged {
		reconcileWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", outcome.String())))
	}
	return inv, nil
}

// revise moves an existing invoice's total to total. Status and paid amount
// are left alone; the status refresh pass recomputes the status afterwards.
func (r *Reconciler) revise(ctx context.Context, inv *Invoice, total decimal.Decimal, now time.Time, res *ReconcileResult) (*Invoice, error) {
	if inv.Status.IsTerminal() {
		res.Unchanged++
		return inv, nil
	}

	if total.LessThan(inv.PaidAmount) {
		log.Warn().
			Str("invoice_id", inv.ID).
			Str("aggregated_total", total.StringFixed(2)).
			Str("paid_amount", inv.PaidAmount.StringFixed(2)).
			Msg("Aggregated total below amount already paid, clamping")
		total = inv.PaidAmount
	}

	if total.Equal(inv.TotalAmount) {
		res.Unchanged++
		return inv, nil
	}

	if err := r.repo.UpdateTotal(ctx, inv.ID, total, now); err != nil {
		return nil, fmt.Errorf("failed to update invoice total: %w", err)
	}
	res.Updated++
	reconcileWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "updated")))

	revised := *inv
	revised.TotalAmount = total
	revised.UpdatedAt = now.UTC()
	return &revised, nil
}

func (r *Reconciler) refreshStatuses(ctx context.Context, memo *CycleMemo, cards []*card.Card, invoices map[invoiceKey]*Invoice, now time.Time, res *ReconcileResult) {
	byID := make(map[string]*card.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	keys := make([]invoiceKey, 0, len(invoices))
	for k := range invoices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cardID != keys[j].cardID {
			return keys[i].cardID < keys[j].cardID
		}
		return keys[i].month.Before(keys[j].month)
	})

	for _, k := range keys {
		inv := invoices[k]
		if inv.Status.IsTerminal() {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.addError(ctx, k.cardID, k.month, err)
			return
		}

		next := computeStatus(memo, byID[inv.CardID], inv.DueDate, inv.PaidAmount, inv.TotalAmount, now)
		if next == inv.Status {
			continue
		}
		if next == StatusPaga {
			// only a total clamped down to the paid amount gets here
			if err := r.settle(ctx, inv, now); err != nil {
				res.addError(ctx, k.cardID, k.month, err)
				continue
			}
		} else if err := r.repo.UpdateStatus(ctx, inv.ID, next, now); err != nil {
			res.addError(ctx, k.cardID, k.month, fmt.Errorf("failed to update invoice status: %w", err))
			continue
		}
		res.StatusChanged++
		reconcileWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "status")))

		refreshed := *inv
		refreshed.Status = next
		invoices[k] = &refreshed

		if next == StatusPaga && r.notifier != nil {
			if err := r.notifier.InvoicePaid(ctx, &refreshed); err != nil {
				log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Failed to notify invoice paid")
			}
		}
	}
}

func (r *Reconciler) settle(ctx context.Context, inv *Invoice, now time.Time) error {
	err := r.repo.SettleInvoice(ctx, SettleParams{
		InvoiceID:      inv.ID,
		CardID:         inv.CardID,
		ReferenceMonth: inv.ReferenceMonth,
		PaidOn:         civil.Day(now),
	}, now)
	if err != nil {
		return fmt.Errorf("failed to settle invoice: %w", err)
	}
	log.Info().
		Int64("user_id", inv.UserID).
		Str("invoice_id", inv.ID).
		Str("paid_amount", inv.PaidAmount.StringFixed(2)).
		Msg("Invoice settled by revised total")
	return nil
}
