package invoice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
)

type reconcileFixture struct {
	cards        []*card.Card
	accounts     []*account.Account
	installments []*account.Installment
	recurring    []*card.RecurringCharge
}

func (f reconcileFixture) snapshot(repo *memoryRepo) *Snapshot {
	return &Snapshot{
		UserID:           1,
		Cards:            f.cards,
		Accounts:         f.accounts,
		Installments:     f.installments,
		RecurringCharges: f.recurring,
		Invoices:         repo.all(),
	}
}

// marchPurchase is a card with cutover 25 and due day 2, carrying a purchase
// made on 2025-03-10 whose single installment of 300 is due 2025-04-02.
func marchPurchase() reconcileFixture {
	return reconcileFixture{
		cards:        []*card.Card{testCard("c1", 25, 2)},
		accounts:     []*account.Account{cardAccount("a1", "c1", "Phone")},
		installments: []*account.Installment{pending("i1", "a1", 1, "300", DueDateForPurchase(25, 2, day(2025, 3, 10)))},
	}
}

func TestReconcile_CreatesInvoiceForInstallment(t *testing.T) {
	f := marchPurchase()
	repo := newMemoryRepo()
	now := day(2025, 3, 12)

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), now)

	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.StatusChanged)

	invoices := repo.all()
	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.Equal(t, "c1", inv.CardID)
	assert.Equal(t, int64(1), inv.UserID)
	assert.Equal(t, refMonth(2025, time.April), inv.ReferenceMonth)
	assert.True(t, inv.TotalAmount.Equal(dec("300")))
	assert.True(t, inv.PaidAmount.IsZero())
	assert.Equal(t, day(2025, 4, 2), inv.DueDate)
	// the cycle billed on April 2 runs from Feb 25 to Mar 24
	assert.Equal(t, StatusAberta, inv.Status)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := marchPurchase()
	f.installments = append(f.installments, pending("i2", "a1", 2, "300", day(2025, 5, 2)))
	f.recurring = []*card.RecurringCharge{
		{ID: "r1", CardID: "c1", Description: "Music", Amount: dec("21.90"), BillingDay: 5, StartDate: day(2025, 1, 5), Active: true},
	}
	repo := newMemoryRepo()
	r := NewReconciler(repo, DefaultHorizonMonths)
	now := day(2025, 3, 12)

	first := r.Reconcile(context.Background(), f.snapshot(repo), now)
	require.NoError(t, first.Err())
	// March .. August from the horizon; April and May carry installments too
	assert.Equal(t, 6, first.Created)
	writes := repo.writeCount()

	second := r.Reconcile(context.Background(), f.snapshot(repo), now)
	require.NoError(t, second.Err())
	assert.Equal(t, 0, second.Writes())
	assert.Equal(t, 6, second.Unchanged)
	assert.Equal(t, writes, repo.writeCount())
}

func TestReconcile_ConcurrentRunsDoNotDuplicate(t *testing.T) {
	f := marchPurchase()
	repo := newMemoryRepo()
	r := NewReconciler(repo, DefaultHorizonMonths)
	now := day(2025, 3, 12)

	// both passes load their snapshot before either writes
	snapA := f.snapshot(repo)
	snapB := f.snapshot(repo)

	resA := r.Reconcile(context.Background(), snapA, now)
	resB := r.Reconcile(context.Background(), snapB, now)

	require.NoError(t, resA.Err())
	require.NoError(t, resB.Err())
	assert.Len(t, repo.all(), 1)
	assert.Equal(t, 1, resA.Created+resB.Created)
}

func TestReconcile_RevisesTotalKeepsPayment(t *testing.T) {
	f := marchPurchase()
	f.installments = append(f.installments, pending("i2", "a2", 1, "50", day(2025, 4, 15)))
	f.accounts = append(f.accounts, cardAccount("a2", "c1", "Shoes"))

	existing := &Invoice{
		ID: "inv-1", CardID: "c1", UserID: 1, ReferenceMonth: refMonth(2025, time.April),
		TotalAmount: dec("300"), PaidAmount: dec("100"), DueDate: day(2025, 4, 2), Status: StatusAberta,
	}
	repo := newMemoryRepo(existing)

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))

	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, res.StatusChanged)

	inv, err := repo.GetByID(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.Equal(dec("350")))
	assert.True(t, inv.PaidAmount.Equal(dec("100")))
	assert.Equal(t, StatusAberta, inv.Status)
}

func TestReconcile_PaidInvoiceIsFrozen(t *testing.T) {
	f := marchPurchase()
	paidOn := day(2025, 3, 20)
	f.installments[0].Status = account.InstallmentPaid
	f.installments[0].PaidDate = &paidOn
	f.recurring = []*card.RecurringCharge{
		{ID: "r1", CardID: "c1", Description: "Music", Amount: dec("21.90"), BillingDay: 5, StartDate: day(2025, 4, 1), EndDate: ptrTime(day(2025, 4, 30)), Active: true},
	}

	existing := &Invoice{
		ID: "inv-1", CardID: "c1", UserID: 1, ReferenceMonth: refMonth(2025, time.April),
		TotalAmount: dec("300"), PaidAmount: dec("300"), DueDate: day(2025, 4, 2), Status: StatusPaga,
	}
	repo := newMemoryRepo(existing)

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 25))

	require.NoError(t, res.Err())
	assert.Equal(t, 0, res.Writes())
	inv, _ := repo.GetByID(context.Background(), "inv-1")
	assert.True(t, inv.TotalAmount.Equal(dec("300")))
	assert.Equal(t, StatusPaga, inv.Status)
}

func TestReconcile_ClampsTotalBelowPaid(t *testing.T) {
	f := marchPurchase()
	f.installments[0].Amount = dec("150")

	existing := &Invoice{
		ID: "inv-1", CardID: "c1", UserID: 1, ReferenceMonth: refMonth(2025, time.April),
		TotalAmount: dec("300"), PaidAmount: dec("200"), DueDate: day(2025, 4, 2), Status: StatusAberta,
	}
	repo := newMemoryRepo(existing)

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))

	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.StatusChanged)

	inv, _ := repo.GetByID(context.Background(), "inv-1")
	assert.True(t, inv.TotalAmount.Equal(dec("200")))
	assert.Equal(t, StatusPaga, inv.Status)

	// reaching paga this way still settles the month's installments
	require.Len(t, repo.settled, 1)
	assert.Equal(t, SettleParams{
		InvoiceID: "inv-1", CardID: "c1", ReferenceMonth: refMonth(2025, time.April), PaidOn: day(2025, 3, 12),
	}, repo.settled[0])
}

func TestReconcile_ClampedInvoiceNotifies(t *testing.T) {
	f := marchPurchase()
	f.installments[0].Amount = dec("150")

	existing := &Invoice{
		ID: "inv-1", CardID: "c1", UserID: 1, ReferenceMonth: refMonth(2025, time.April),
		TotalAmount: dec("300"), PaidAmount: dec("200"), DueDate: day(2025, 4, 2), Status: StatusAberta,
	}
	repo := newMemoryRepo(existing)
	notifier := &MockNotifier{Err: errors.New("unavailable")}
	r := NewReconciler(repo, DefaultHorizonMonths)
	r.notifier = notifier

	res := r.Reconcile(context.Background(), f.snapshot(repo), localAt(2025, 3, 12, 22, 0))

	require.NoError(t, res.Err())
	require.Len(t, notifier.Paid, 1)
	assert.Equal(t, StatusPaga, notifier.Paid[0].Status)
	require.Len(t, repo.settled, 1)
	assert.Equal(t, day(2025, 3, 12), repo.settled[0].PaidOn)

	again := r.Reconcile(context.Background(), f.snapshot(repo), localAt(2025, 3, 13, 9, 0))
	require.NoError(t, again.Err())
	assert.Equal(t, 0, again.Writes())
	assert.Len(t, notifier.Paid, 1)
}

func TestReconcile_ConflictFallsBackToUpdate(t *testing.T) {
	f := marchPurchase()
	repo := newMemoryRepo()
	repo.UpsertErrFunc = func(params UpsertParams) error {
		// another writer inserted the same key with an older total
		repo.mu.Lock()
		repo.invoices["other"] = &Invoice{
			ID: "other", CardID: params.CardID, UserID: params.UserID, ReferenceMonth: params.ReferenceMonth,
			TotalAmount: dec("100"), PaidAmount: dec("0"), DueDate: params.DueDate, Status: params.Status,
		}
		repo.mu.Unlock()
		return ErrConflict
	}

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))

	require.NoError(t, res.Err())
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	invoices := repo.all()
	require.Len(t, invoices, 1)
	assert.Equal(t, "other", invoices[0].ID)
	assert.True(t, invoices[0].TotalAmount.Equal(dec("300")))
}

func TestReconcile_IsolatesFailures(t *testing.T) {
	f := marchPurchase()
	f.installments = append(f.installments, pending("i2", "a1", 2, "300", day(2025, 5, 2)))
	boom := errors.New("boom")

	repo := newMemoryRepo()
	repo.UpsertErrFunc = func(params UpsertParams) error {
		if params.ReferenceMonth == refMonth(2025, time.April) {
			return boom
		}
		return nil
	}

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))

	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "c1", res.Errors[0].CardID)
	assert.Equal(t, refMonth(2025, time.April), res.Errors[0].Month)
	assert.ErrorIs(t, res.Err(), boom)

	invoices := repo.all()
	require.Len(t, invoices, 1)
	assert.Equal(t, refMonth(2025, time.May), invoices[0].ReferenceMonth)

	// the failed pair is retried by the next pass
	repo.UpsertErrFunc = nil
	retry := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))
	require.NoError(t, retry.Err())
	assert.Equal(t, 1, retry.Created)
	assert.Len(t, repo.all(), 2)
}

func TestReconcile_RefreshesStaleStatus(t *testing.T) {
	f := marchPurchase()
	existing := &Invoice{
		ID: "inv-1", CardID: "c1", UserID: 1, ReferenceMonth: refMonth(2025, time.April),
		TotalAmount: dec("300"), PaidAmount: dec("0"), DueDate: day(2025, 4, 2), Status: StatusAberta,
	}
	repo := newMemoryRepo(existing)
	r := NewReconciler(repo, DefaultHorizonMonths)

	res := r.Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 26))
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.StatusChanged)
	assert.Equal(t, 0, res.Updated)

	inv, _ := repo.GetByID(context.Background(), "inv-1")
	assert.Equal(t, StatusFechada, inv.Status)

	again := r.Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 26))
	assert.Equal(t, 0, again.Writes())
}

func TestReconcile_InactiveCard(t *testing.T) {
	f := marchPurchase()
	f.cards[0].Active = false
	existing := &Invoice{
		ID: "inv-old", CardID: "c1", UserID: 1, ReferenceMonth: refMonth(2025, time.February),
		TotalAmount: dec("80"), PaidAmount: dec("0"), DueDate: day(2025, 2, 2), Status: StatusAberta,
	}
	repo := newMemoryRepo(existing)

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))

	require.NoError(t, res.Err())
	assert.Equal(t, 0, res.Created)
	assert.Len(t, repo.all(), 1)
	// existing invoices of inactive cards still follow the clock
	assert.Equal(t, 1, res.StatusChanged)
}

func TestReconcile_NoEmptyInvoices(t *testing.T) {
	f := marchPurchase()
	paidOn := day(2025, 3, 20)
	f.installments[0].Status = account.InstallmentPaid
	f.installments[0].PaidDate = &paidOn
	repo := newMemoryRepo()

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(context.Background(), f.snapshot(repo), day(2025, 3, 12))

	require.NoError(t, res.Err())
	assert.Equal(t, 0, res.Writes())
	assert.Empty(t, repo.all())
}

func TestReconcile_CancelledContext(t *testing.T) {
	f := marchPurchase()
	repo := newMemoryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewReconciler(repo, DefaultHorizonMonths).Reconcile(ctx, f.snapshot(repo), day(2025, 3, 12))

	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Err(), context.Canceled)
	assert.Empty(t, repo.all())
}

func ptrTime(t time.Time) *time.Time { return &t }
