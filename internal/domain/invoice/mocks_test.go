package invoice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
)

// memoryRepo is an in-memory Repository that counts writes.
type memoryRepo struct {
	mu       sync.Mutex
	invoices map[string]*Invoice
	payments []*Payment
	recorded []RecordPaymentParams
	settled  []SettleParams
	writes   int

	// UpsertErrFunc, when set, can fail an upsert before it is applied
	UpsertErrFunc func(params UpsertParams) error
	// RecordPaymentErr, when set, fails RecordPayment
	RecordPaymentErr error
}

func newMemoryRepo(invoices ...*Invoice) *memoryRepo {
	r := &memoryRepo{invoices: make(map[string]*Invoice)}
	for _, inv := range invoices {
		cp := *inv
		r.invoices[inv.ID] = &cp
	}
	return r
}

func (r *memoryRepo) byKey(cardID string, month ReferenceMonth) *Invoice {
	for _, inv := range r.invoices {
		if inv.CardID == cardID && inv.ReferenceMonth == month {
			return inv
		}
	}
	return nil
}

func (r *memoryRepo) all() []*Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CardID != out[j].CardID {
			return out[i].CardID < out[j].CardID
		}
		return out[i].ReferenceMonth.Before(out[j].ReferenceMonth)
	})
	return out
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryRepo) GetByCardAndMonth(ctx context.Context, cardID string, month ReferenceMonth) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.byKey(cardID, month)
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryRepo) ListByUserID(ctx context.Context, userID int64, filter InvoiceFilter) ([]*Invoice, error) {
	var out []*Invoice
	for _, inv := range r.all() {
		if inv.UserID != userID {
			continue
		}
		if filter.CardID != "" && inv.CardID != filter.CardID {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *memoryRepo) Upsert(ctx context.Context, params UpsertParams, now time.Time) (*Invoice, UpsertOutcome, error) {
	if r.UpsertErrFunc != nil {
		if err := r.UpsertErrFunc(params); err != nil {
			return nil, UpsertUnchanged, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.byKey(params.CardID, params.ReferenceMonth); existing != nil {
		if existing.Status == StatusPaga || existing.TotalAmount.Equal(params.TotalAmount) {
			return nil, UpsertUnchanged, nil
		}
		existing.TotalAmount = params.TotalAmount
		existing.UpdatedAt = now
		r.writes++
		cp := *existing
		return &cp, UpsertUpdated, nil
	}

	inv := &Invoice{
		ID:             params.ID,
		CardID:         params.CardID,
		UserID:         params.UserID,
		ReferenceMonth: params.ReferenceMonth,
		TotalAmount:    params.TotalAmount,
		PaidAmount:     decimal.Zero,
		DueDate:        params.DueDate,
		Status:         params.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.invoices[inv.ID] = inv
	r.writes++
	cp := *inv
	return &cp, UpsertCreated, nil
}

func (r *memoryRepo) UpdateTotal(ctx context.Context, id string, total decimal.Decimal, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.TotalAmount = total
	inv.UpdatedAt = now
	r.writes++
	return nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	inv.UpdatedAt = now
	r.writes++
	return nil
}

func (r *memoryRepo) RecordPayment(ctx context.Context, params RecordPaymentParams) error {
	if r.RecordPaymentErr != nil {
		return r.RecordPaymentErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[params.InvoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	if !inv.PaidAmount.Equal(params.PreviousPaidAmount) {
		return ErrConflict
	}
	inv.PaidAmount = params.NewPaidAmount
	inv.Status = params.NewStatus
	p := params.Payment
	r.payments = append(r.payments, &p)
	r.recorded = append(r.recorded, params)
	r.writes++
	return nil
}

func (r *memoryRepo) SettleInvoice(ctx context.Context, params SettleParams, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[params.InvoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	if inv.Status == StatusPaga {
		return ErrConflict
	}
	inv.Status = StatusPaga
	inv.UpdatedAt = now
	r.settled = append(r.settled, params)
	r.writes++
	return nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, invoiceID string) ([]*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// MockCardRepo implements card.Repository for testing
type MockCardRepo struct {
	Cards     []*card.Card
	Recurring []*card.RecurringCharge

	GetByIDFunc func(ctx context.Context, id string) (*card.Card, error)
}

func (m *MockCardRepo) Create(ctx context.Context, params card.CreateParams) (*card.Card, error) {
	return nil, nil
}

func (m *MockCardRepo) GetByID(ctx context.Context, id string) (*card.Card, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	for _, c := range m.Cards {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, card.ErrCardNotFound
}

func (m *MockCardRepo) ListByUserID(ctx context.Context, userID int64, activeOnly bool) ([]*card.Card, error) {
	var out []*card.Card
	for _, c := range m.Cards {
		if c.UserID == userID && (!activeOnly || c.Active) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCardRepo) ListUserIDsWithActiveCards(ctx context.Context) ([]int64, error) {
	return nil, nil
}

func (m *MockCardRepo) CreateRecurringCharge(ctx context.Context, params card.CreateRecurringChargeParams) (*card.RecurringCharge, error) {
	return nil, nil
}

func (m *MockCardRepo) ListRecurringChargesByUserID(ctx context.Context, userID int64) ([]*card.RecurringCharge, error) {
	return m.Recurring, nil
}

// MockAccountRepo implements account.Repository for testing
type MockAccountRepo struct {
	Accounts     []*account.Account
	Installments []*account.Installment

	ListByUserIDErr error
}

func (m *MockAccountRepo) Create(ctx context.Context, params account.CreateParams, installments []*account.Installment) (*account.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	for _, a := range m.Accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	if m.ListByUserIDErr != nil {
		return nil, m.ListByUserIDErr
	}
	return m.Accounts, nil
}

func (m *MockAccountRepo) ListInstallmentsByUserID(ctx context.Context, userID int64) ([]*account.Installment, error) {
	return m.Installments, nil
}

func (m *MockAccountRepo) ListInstallmentsByAccountID(ctx context.Context, accountID string) ([]*account.Installment, error) {
	var out []*account.Installment
	for _, i := range m.Installments {
		if i.AccountID == accountID {
			out = append(out, i)
		}
	}
	return out, nil
}

// MockNotifier records paid invoices
type MockNotifier struct {
	mu   sync.Mutex
	Paid []*Invoice
	Err  error
}

func (m *MockNotifier) InvoicePaid(ctx context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Paid = append(m.Paid, inv)
	return m.Err
}

// fixtures

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

// saoPaulo is UTC-3 all year, like the default billing location.
var saoPaulo = time.FixedZone("America/Sao_Paulo", -3*60*60)

func localAt(y int, m time.Month, d, hour, minute int) time.Time {
	return time.Date(y, m, d, hour, minute, 0, 0, saoPaulo)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func refMonth(y int, m time.Month) ReferenceMonth {
	return ReferenceMonth{Year: y, Month: m}
}

func strPtr(s string) *string { return &s }

func testCard(id string, cutover, due int) *card.Card {
	return &card.Card{
		ID:                          id,
		UserID:                      1,
		Name:                        "Card " + id,
		CutoverDay:                  cutover,
		DueDay:                      due,
		RevolvingMonthlyRatePercent: dec("12"),
		Active:                      true,
	}
}

func cardAccount(id, cardID, title string) *account.Account {
	return &account.Account{
		ID:     id,
		UserID: 1,
		Title:  title,
		Kind:   account.KindInstallment,
		CardID: strPtr(cardID),
	}
}

func pending(id, accountID string, seq int, amount string, due time.Time) *account.Installment {
	return &account.Installment{
		ID:             id,
		AccountID:      accountID,
		SequenceNumber: seq,
		Amount:         dec(amount),
		DueDate:        due,
		Status:         account.InstallmentPending,
	}
}
