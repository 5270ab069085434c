package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/domain/card"
)

// CardHandler manages the caller's cards and their recurring charges.
type CardHandler struct {
	cardService *card.Service
}

func NewCardHandler(cardService *card.Service) *CardHandler {
	return &CardHandler{cardService: cardService}
}

type CreateCardRequest struct {
	ID                          string          `json:"id"`
	Name                        string          `json:"name"`
	CutoverDay                  int             `json:"cutoverDay"`
	DueDay                      int             `json:"dueDay"`
	RevolvingMonthlyRatePercent decimal.Decimal `json:"revolvingMonthlyRatePercent"`
	Active                      *bool           `json:"active"`
}

type CreateRecurringChargeRequest struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	BillingDay  int             `json:"billingDay"`
	StartDate   string          `json:"startDate"`
	EndDate     *string         `json:"endDate"`
	Active      *bool           `json:"active"`
}

// HandleCreateCard registers a card. The id is generated when omitted.
func (h *CardHandler) HandleCreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateCardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c, err := h.cardService.CreateCard(r.Context(), card.CreateParams{
		ID:                          req.ID,
		UserID:                      userID,
		Name:                        req.Name,
		CutoverDay:                  req.CutoverDay,
		DueDay:                      req.DueDay,
		RevolvingMonthlyRatePercent: req.RevolvingMonthlyRatePercent,
		Active:                      req.Active == nil || *req.Active,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to create card")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// HandleListCards lists the caller's cards; ?active=true hides inactive ones.
func (h *CardHandler) HandleListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	cards, err := h.cardService.ListCards(r.Context(), userID, r.URL.Query().Get("active") == "true")
	if err != nil {
		writeServiceError(w, r, err, "Failed to list cards")
		return
	}
	if cards == nil {
		cards = []*card.Card{}
	}

	writeJSON(w, http.StatusOK, cards)
}

func (h *CardHandler) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	c, err := h.cardService.GetCard(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to get card")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// HandleCreateRecurringCharge attaches a monthly charge to a card.
func (h *CardHandler) HandleCreateRecurringCharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateRecurringChargeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate: "+err.Error())
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "endDate: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rc, err := h.cardService.AddRecurringCharge(r.Context(), userID, card.CreateRecurringChargeParams{
		ID:          req.ID,
		CardID:      chi.URLParam(r, "id"),
		Description: req.Description,
		Amount:      req.Amount,
		BillingDay:  req.BillingDay,
		StartDate:   start,
		EndDate:     end,
		Active:      req.Active == nil || *req.Active,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to create recurring charge")
		return
	}

	writeJSON(w, http.StatusCreated, rc)
}

func (h *CardHandler) HandleListRecurringCharges(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	charges, err := h.cardService.ListRecurringCharges(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list recurring charges")
		return
	}
	if charges == nil {
		charges = []*card.RecurringCharge{}
	}

	writeJSON(w, http.StatusOK, charges)
}
