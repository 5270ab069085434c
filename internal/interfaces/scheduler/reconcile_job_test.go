package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/domain/invoice"
)

type fakeReconciler struct {
	results map[int64]*invoice.ReconcileResult
	err     error
	calls   []int64
}

func (f *fakeReconciler) ReconcileInvoices(ctx context.Context, userID int64) (*invoice.ReconcileResult, error) {
	f.calls = append(f.calls, userID)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[userID]; ok {
		return res, nil
	}
	return &invoice.ReconcileResult{UserID: userID}, nil
}

type fakeUsers struct {
	ids []int64
	err error
}

func (f *fakeUsers) ListUserIDsWithActiveCards(ctx context.Context) ([]int64, error) {
	return f.ids, f.err
}

func TestReconcileJob_Execute(t *testing.T) {
	april := invoice.ReferenceMonth{Year: 2025, Month: time.April}
	rec := &fakeReconciler{results: map[int64]*invoice.ReconcileResult{
		1: {UserID: 1, Created: 2},
		2: {UserID: 2, Errors: []*invoice.PairError{{CardID: "c1", Month: april, Message: "failed to upsert invoice", Err: errors.New("db down")}}},
	}}

	job := NewReconcileJob(1, rec)
	require.NoError(t, job.Execute(context.Background()))
	assert.Equal(t, "1", job.UserID())
	assert.Equal(t, "Invoice reconciliation for user 1", job.Description())

	err := NewReconcileJob(2, rec).Execute(context.Background())
	assert.ErrorContains(t, err, "1 errors")

	rec.err = invoice.ErrInvalidInput
	err = NewReconcileJob(3, rec).Execute(context.Background())
	assert.ErrorIs(t, err, invoice.ErrInvalidInput)
}

func TestReconcileJobProvider(t *testing.T) {
	rec := &fakeReconciler{}
	provider := ReconcileJobProvider(&fakeUsers{ids: []int64{4, 9}}, rec)

	jobs, err := provider(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "4", jobs[0].UserID())
	assert.Equal(t, "9", jobs[1].UserID())

	for _, j := range jobs {
		require.NoError(t, j.Execute(context.Background()))
	}
	assert.Equal(t, []int64{4, 9}, rec.calls)

	_, err = ReconcileJobProvider(&fakeUsers{err: errors.New("db down")}, rec)(context.Background())
	assert.ErrorContains(t, err, "failed to list users")
}
