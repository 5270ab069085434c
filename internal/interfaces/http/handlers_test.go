package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
	"carteira/internal/domain/invoice"
	"carteira/internal/infrastructure/sqlstore"
)

const testDSN = "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"

type api struct {
	t      *testing.T
	router http.Handler
}

// newAPI wires the router over an in-memory SQLite store with the clock fixed
// at 2025-03-20 12:00 UTC.
func newAPI(t *testing.T) *api {
	t.Helper()

	db, err := sqlstore.Open(sqlstore.SQLite, testDSN)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })

	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cards := sqlstore.NewCardRepository(db)
	accounts := sqlstore.NewAccountRepository(db)
	invoices := sqlstore.NewInvoiceRepository(db)

	cardService := card.NewService(cards)
	invoiceService := invoice.NewService(invoices, cards, accounts, invoice.ServiceConfig{HorizonMonths: 6, Clock: clock})

	router := NewRouter(Handlers{
		Invoices: NewInvoiceHandler(invoiceService, clock),
		Cards:    NewCardHandler(cardService),
		Accounts: NewAccountHandler(account.NewService(accounts), cardService),
		Cycles:   NewCycleHandler(),
		Health:   NewHealthHandler(db),
	})
	return &api{t: t, router: router}
}

func (a *api) do(method, path string, userID int64, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// seed creates card c1 (cutover 10, due 17, 12% a month) for user 1 and a TV
// bought on it in two installments due April 17 and May 17.
func (a *api) seed() {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/cards", 1,
		`{"id":"c1","name":"Gold","cutoverDay":10,"dueDay":17,"revolvingMonthlyRatePercent":"12"}`)
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(http.MethodPost, "/api/accounts", 1,
		`{"id":"a1","title":"TV","totalAmount":"1000","kind":"installment","installmentCount":2,"firstInstallmentDate":"2025-04-17","cardId":"c1"}`)
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
}

func (a *api) reconcileAndIndex() map[string]*invoice.Invoice {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/invoices/reconcile", 1, "")
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(http.MethodGet, "/api/invoices", 1, "")
	require.Equal(a.t, http.StatusOK, rr.Code)

	byMonth := map[string]*invoice.Invoice{}
	for _, inv := range decode[[]*invoice.Invoice](a.t, rr) {
		byMonth[inv.ReferenceMonth.String()] = inv
	}
	return byMonth
}

func TestInvoiceLifecycle(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rr := a.do(http.MethodPost, "/api/invoices/reconcile", 1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[invoice.ReconcileResult](t, rr)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)

	invoices := a.reconcileAndIndex()
	require.Len(t, invoices, 2)
	april, may := invoices["2025-04"], invoices["2025-05"]
	require.NotNil(t, april)
	require.NotNil(t, may)
	assert.Equal(t, invoice.StatusFechada, april.Status)
	assert.Equal(t, invoice.StatusAberta, may.Status)
	assert.True(t, april.TotalAmount.Equal(decimal.NewFromInt(500)))

	t.Run("partial payment on closed invoice is rejected", func(t *testing.T) {
		rr := a.do(http.MethodPost, "/api/invoices/"+april.ID+"/payments", 1, `{"amount":"100"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "partial payment not allowed on closed invoice", decode[errorResponse](t, rr).Error)
	})

	t.Run("full payment settles the invoice", func(t *testing.T) {
		rr := a.do(http.MethodPost, "/api/invoices/"+april.ID+"/payments", 1, `{"amount":"500"}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		paid := decode[invoice.Invoice](t, rr)
		assert.Equal(t, invoice.StatusPaga, paid.Status)
		assert.True(t, paid.PaidAmount.Equal(decimal.NewFromInt(500)))

		rr = a.do(http.MethodPost, "/api/invoices/"+april.ID+"/payments", 1, `{"amount":"1"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "invoice already paid", decode[errorResponse](t, rr).Error)
	})

	t.Run("ledger and breakdown", func(t *testing.T) {
		rr := a.do(http.MethodGet, "/api/invoices/"+april.ID+"/payments", 1, "")
		require.Equal(t, http.StatusOK, rr.Code)
		payments := decode[[]*invoice.Payment](t, rr)
		require.Len(t, payments, 1)
		assert.Equal(t, invoice.PaymentTotal, payments[0].Kind)

		rr = a.do(http.MethodGet, "/api/invoices/"+april.ID+"/breakdown", 1, "")
		require.Equal(t, http.StatusOK, rr.Code)
		b := decode[invoice.Breakdown](t, rr)
		require.Len(t, b.Lines, 1)
		assert.True(t, b.Lines[0].Settled)
	})

	t.Run("paid invoice survives reconciliation", func(t *testing.T) {
		rr := a.do(http.MethodPost, "/api/invoices/reconcile", 1, "")
		require.Equal(t, http.StatusOK, rr.Code)
		res := decode[invoice.ReconcileResult](t, rr)
		assert.Equal(t, 0, res.Writes())

		rr = a.do(http.MethodGet, "/api/invoices/"+april.ID, 1, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, invoice.StatusPaga, decode[invoice.Invoice](t, rr).Status)
	})

	t.Run("interest", func(t *testing.T) {
		rr := a.do(http.MethodGet, "/api/invoices/"+may.ID+"/interest?at=2025-06-16", 1, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[InterestResponse](t, rr)
		// 500 * 12% / 30 per day * 30 days
		assert.True(t, resp.Interest.Equal(decimal.NewFromInt(60)), resp.Interest.String())

		rr = a.do(http.MethodGet, "/api/invoices/"+may.ID+"/interest?at=2025-05-01T10:00:00Z", 1, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, decode[InterestResponse](t, rr).Interest.IsZero())

		rr = a.do(http.MethodGet, "/api/invoices/"+may.ID+"/interest?at=yesterday", 1, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListInvoicesFilters(t *testing.T) {
	a := newAPI(t)
	a.seed()
	a.reconcileAndIndex()

	tests := []struct {
		query string
		want  int
		code  int
	}{
		{"", 2, http.StatusOK},
		{"?status=fechada", 1, http.StatusOK},
		{"?status=fechada,aberta", 2, http.StatusOK},
		{"?from=2025-05", 1, http.StatusOK},
		{"?to=2025-04", 1, http.StatusOK},
		{"?cardId=other", 0, http.StatusOK},
		{"?limit=1", 1, http.StatusOK},
		{"?limit=1&offset=1", 1, http.StatusOK},
		{"?status=unknown", 0, http.StatusBadRequest},
		{"?from=2025-13", 0, http.StatusBadRequest},
		{"?from=2025-06&to=2025-04", 0, http.StatusBadRequest},
		{"?limit=abc", 0, http.StatusBadRequest},
		{"?limit=500", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := a.do(http.MethodGet, "/api/invoices"+tt.query, 1, "")
			require.Equal(t, tt.code, rr.Code, rr.Body.String())
			if tt.code == http.StatusOK {
				assert.Len(t, decode[[]*invoice.Invoice](t, rr), tt.want)
			}
		})
	}
}

func TestInvoiceAccessErrors(t *testing.T) {
	a := newAPI(t)
	a.seed()
	april := a.reconcileAndIndex()["2025-04"]
	require.NotNil(t, april)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/invoices", 0, "").Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/invoices/"+april.ID, 2, "").Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/invoices/"+april.ID+"/payments", 2, `{"amount":"500"}`).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/invoices/missing", 1, "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/invoices/"+april.ID+"/payments", 1, `{"amount":`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/invoices/"+april.ID+"/payments", 1, `{"value":"500"}`).Code)

	// other users see an empty list, not an error
	rr := a.do(http.MethodGet, "/api/invoices", 2, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestCardsAndAccounts(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rr := a.do(http.MethodGet, "/api/cards", 1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]*card.Card](t, rr), 1)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/cards", 1, `{"name":"Bad","dueDay":40}`).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/cards/c1", 2, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/cards/nope", 1, "").Code)

	rr = a.do(http.MethodPost, "/api/cards/c1/recurring-charges", 1,
		`{"description":"Streaming","amount":"39.90","billingDay":5,"startDate":"2025-01-05"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/cards/c1/recurring-charges", 2,
		`{"description":"x","amount":"1","billingDay":5,"startDate":"2025-01-05"}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/cards/c1/recurring-charges", 1,
		`{"description":"x","amount":"1","billingDay":5,"startDate":"05/01/2025"}`).Code)

	rr = a.do(http.MethodGet, "/api/recurring-charges", 1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]*card.RecurringCharge](t, rr), 1)

	rr = a.do(http.MethodGet, "/api/accounts/a1/installments", 1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	installments := decode[[]*account.Installment](t, rr)
	require.Len(t, installments, 2)
	assert.Equal(t, 1, installments[0].SequenceNumber)

	// a purchase on someone else's card is refused
	rr = a.do(http.MethodPost, "/api/accounts", 2,
		`{"title":"Phone","totalAmount":"300","kind":"installment","installmentCount":3,"firstInstallmentDate":"2025-04-17","cardId":"c1"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(http.MethodPost, "/api/accounts", 1, `{"title":"Loan","totalAmount":"300","kind":"loan"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/accounts/a1", 2, "").Code)
}

func TestDueDateCalculator(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name  string
		query string
		code  int
		due   string
	}{
		{"before cutover", "cutoverDay=10&dueDay=17&purchaseDate=2025-03-05", http.StatusOK, "2025-03-17"},
		{"on cutover", "cutoverDay=10&dueDay=17&purchaseDate=2025-03-10", http.StatusOK, "2025-04-17"},
		{"late cutover always rolls", "cutoverDay=25&dueDay=5&purchaseDate=2025-03-01", http.StatusOK, "2025-04-05"},
		{"due day clamped", "cutoverDay=10&dueDay=31&purchaseDate=2025-01-15", http.StatusOK, "2025-02-28"},
		{"bad cutover", "cutoverDay=0&dueDay=17", http.StatusBadRequest, ""},
		{"bad due day", "cutoverDay=10&dueDay=x", http.StatusBadRequest, ""},
		{"bad date", "cutoverDay=10&dueDay=17&purchaseDate=03/05/2025", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the calculator needs no user
			rr := a.do(http.MethodGet, "/api/cycles/due-date?"+tt.query, 0, "")
			require.Equal(t, tt.code, rr.Code, rr.Body.String())
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.due, decode[DueDateResponse](t, rr).DueDate)
			}
		})
	}
}

type failingPinger struct{}

func (failingPinger) PingContext(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rr := a.do(http.MethodGet, "/health", 0, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	NewHealthHandler(failingPinger{}).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
