package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"carteira/internal/shared/middleware"
)

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Invoices *InvoiceHandler
	Cards    *CardHandler
	Accounts *AccountHandler
	Cycles   *CycleHandler
	Health   *HealthHandler
}

// NewRouter builds the API routes. Everything under /api except the cycle
// calculator requires X-User-ID.
func NewRouter(h Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.Tracing)

	r.Get("/health", h.Health.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/cycles/due-date", h.Cycles.HandleDueDate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.UserID)

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.Invoices.HandleListInvoices)
				r.Post("/reconcile", h.Invoices.HandleReconcile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Invoices.HandleGetInvoice)
					r.Get("/breakdown", h.Invoices.HandleBreakdown)
					r.Get("/payments", h.Invoices.HandleListPayments)
					r.Post("/payments", h.Invoices.HandlePay)
					r.Get("/interest", h.Invoices.HandleInterest)
				})
			})

			r.Route("/cards", func(r chi.Router) {
				r.Get("/", h.Cards.HandleListCards)
				r.Post("/", h.Cards.HandleCreateCard)
				r.Get("/{id}", h.Cards.HandleGetCard)
				r.Post("/{id}/recurring-charges", h.Cards.HandleCreateRecurringCharge)
			})
			r.Get("/recurring-charges", h.Cards.HandleListRecurringCharges)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.Accounts.HandleListAccounts)
				r.Post("/", h.Accounts.HandleCreateAccount)
				r.Get("/{id}", h.Accounts.HandleGetAccount)
				r.Get("/{id}/installments", h.Accounts.HandleListInstallments)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return r
}
