package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
)

// AccountHandler manages purchases and fixed bills. Card-bound installment
// purchases feed the card's invoices on the next reconciliation.
type AccountHandler struct {
	accountService *account.Service
	cardService    *card.Service
}

func NewAccountHandler(accountService *account.Service, cardService *card.Service) *AccountHandler {
	return &AccountHandler{accountService: accountService, cardService: cardService}
}

type CreateAccountRequest struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	CategoryID           *string         `json:"categoryId"`
	Kind                 string          `json:"kind"`
	InstallmentCount     int             `json:"installmentCount"`
	FirstInstallmentDate *string         `json:"firstInstallmentDate"`
	CardID               *string         `json:"cardId"`
	DueDay               int             `json:"dueDay"`
	ReminderDay          int             `json:"reminderDay"`
	VariesMonthly        bool            `json:"variesMonthly"`
}

type AccountResponse struct {
	Account      *account.Account       `json:"account"`
	Installments []*account.Installment `json:"installments"`
}

// HandleCreateAccount stores an account and, for installment purchases, its
// generated installments.
func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	first, err := parseOptionalDate(req.FirstInstallmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "firstInstallmentDate: "+err.Error())
		return
	}

	if req.CardID != nil && *req.CardID != "" {
		if _, err := h.cardService.GetCard(r.Context(), *req.CardID, userID); err != nil {
			writeServiceError(w, r, err, "Failed to create account")
			return
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	acc, installments, err := h.accountService.CreateAccount(r.Context(), account.CreateParams{
		ID:                   req.ID,
		UserID:               userID,
		Title:                req.Title,
		TotalAmount:          req.TotalAmount,
		CategoryID:           req.CategoryID,
		Kind:                 req.Kind,
		InstallmentCount:     req.InstallmentCount,
		FirstInstallmentDate: first,
		CardID:               req.CardID,
		DueDay:               req.DueDay,
		ReminderDay:          req.ReminderDay,
		VariesMonthly:        req.VariesMonthly,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to create account")
		return
	}
	if installments == nil {
		installments = []*account.Installment{}
	}

	writeJSON(w, http.StatusCreated, AccountResponse{Account: acc, Installments: installments})
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.accountService.ListAccountsByUserID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*account.Account{}
	}

	writeJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	acc, err := h.accountService.GetAccount(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

func (h *AccountHandler) HandleListInstallments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	installments, err := h.accountService.ListInstallments(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list installments")
		return
	}
	if installments == nil {
		installments = []*account.Installment{}
	}

	writeJSON(w, http.StatusOK, installments)
}
