package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"carteira/internal/domain/invoice"
)

// InvoiceReconciler is the part of the invoice service the jobs drive.
type InvoiceReconciler interface {
	ReconcileInvoices(ctx context.Context, userID int64) (*invoice.ReconcileResult, error)
}

// UserLister lists the users whose invoices are kept up to date.
type UserLister interface {
	ListUserIDsWithActiveCards(ctx context.Context) ([]int64, error)
}

// ReconcileJob implements the Job interface for reconciling one user's invoices
type ReconcileJob struct {
	userID     int64
	reconciler InvoiceReconciler
}

// NewReconcileJob creates a new reconcile job for a user
func NewReconcileJob(userID int64, reconciler InvoiceReconciler) *ReconcileJob {
	return &ReconcileJob{userID: userID, reconciler: reconciler}
}

// Execute runs one reconciliation pass. Per card/month failures fail the job
// so they show up in the job metrics; the next run retries them.
func (j *ReconcileJob) Execute(ctx context.Context) error {
	result, err := j.reconciler.ReconcileInvoices(ctx, j.userID)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	if len(result.Errors) > 0 {
		log.Warn().
			Int64("user_id", j.userID).
			Int("created", result.Created).
			Int("updated", result.Updated).
			Int("errors", len(result.Errors)).
			Msg("Reconciliation completed with errors")
		return fmt.Errorf("reconcile completed with %d errors: %w", len(result.Errors), result.Err())
	}

	if result.Writes() > 0 {
		log.Info().
			Int64("user_id", j.userID).
			Int("created", result.Created).
			Int("updated", result.Updated).
			Int("status_changed", result.StatusChanged).
			Msg("Invoices reconciled")
	}
	return nil
}

// UserID returns the user ID associated with this job
func (j *ReconcileJob) UserID() string {
	return strconv.FormatInt(j.userID, 10)
}

// Description returns a human-readable description of the job
func (j *ReconcileJob) Description() string {
	return fmt.Sprintf("Invoice reconciliation for user %d", j.userID)
}

// ReconcileJobProvider returns a JobProvider with one ReconcileJob per user
// that owns an active card.
func ReconcileJobProvider(users UserLister, reconciler InvoiceReconciler) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := users.ListUserIDsWithActiveCards(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}

		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewReconcileJob(id, reconciler))
		}
		return jobs, nil
	}
}
