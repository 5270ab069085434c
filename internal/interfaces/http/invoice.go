package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"carteira/internal/domain/invoice"
)

// InvoiceHandler exposes reconciliation, payment and interest over HTTP.
type InvoiceHandler struct {
	service *invoice.Service
	clock   func() time.Time
}

// NewInvoiceHandler creates a new invoice handler; clock defaults to time.Now.
func NewInvoiceHandler(service *invoice.Service, clock func() time.Time) *InvoiceHandler {
	if clock == nil {
		clock = time.Now
	}
	return &InvoiceHandler{service: service, clock: clock}
}

type PayInvoiceRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type InterestResponse struct {
	InvoiceID   string          `json:"invoiceId"`
	At          time.Time       `json:"at"`
	Interest    decimal.Decimal `json:"interest"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// HandleReconcile recomputes the caller's invoices.
func (h *InvoiceHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.service.ReconcileInvoices(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to reconcile invoices")
		return
	}
	if res.Errors == nil {
		res.Errors = []*invoice.PairError{}
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleListInvoices lists the caller's invoices.
func (h *InvoiceHandler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := invoiceFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), userID, filter)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list invoices")
		return
	}
	if invoices == nil {
		invoices = []*invoice.Invoice{}
	}

	writeJSON(w, http.StatusOK, invoices)
}

// HandleGetInvoice returns one invoice.
func (h *InvoiceHandler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to get invoice")
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// HandleBreakdown returns the invoice with the charge lines behind it.
func (h *InvoiceHandler) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	b, err := h.service.InvoiceBreakdown(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to build invoice breakdown")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// HandleListPayments returns the payment ledger of an invoice.
func (h *InvoiceHandler) HandleListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to list payments")
		return
	}
	if payments == nil {
		payments = []*invoice.Payment{}
	}

	writeJSON(w, http.StatusOK, payments)
}

// HandlePay applies a payment and returns the updated invoice.
func (h *InvoiceHandler) HandlePay(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req PayInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := h.service.PayInvoice(r.Context(), userID, chi.URLParam(r, "id"), req.Amount, h.clock())
	if err != nil {
		writeServiceError(w, r, err, "Failed to pay invoice")
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

// HandleInterest returns the overdue interest of an invoice at ?at= (default now).
func (h *InvoiceHandler) HandleInterest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	at := h.clock()
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := parseInstant(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'at', expected RFC3339 or YYYY-MM-DD")
			return
		}
		at = t
	}

	id := chi.URLParam(r, "id")
	interest, err := h.service.ComputeInterest(r.Context(), userID, id, at)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute interest")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute interest")
		return
	}

	writeJSON(w, http.StatusOK, InterestResponse{
		InvoiceID:   id,
		At:          at,
		Interest:    interest,
		Outstanding: inv.Outstanding(),
	})
}
