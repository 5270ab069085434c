package http

import (
	"net/http"
	"strconv"
	"time"

	"carteira/internal/domain/card"
	"carteira/internal/domain/invoice"
)

// CycleHandler exposes the billing-cycle calculator. It needs no stored data.
type CycleHandler struct{}

func NewCycleHandler() *CycleHandler {
	return &CycleHandler{}
}

type DueDateResponse struct {
	PurchaseDate   string                 `json:"purchaseDate"`
	DueDate        string                 `json:"dueDate"`
	ReferenceMonth invoice.ReferenceMonth `json:"referenceMonth"`
	Cycle          invoice.Cycle          `json:"cycle"`
}

// HandleDueDate answers which invoice a purchase lands on.
func (h *CycleHandler) HandleDueDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cutoverDay, err := strconv.Atoi(q.Get("cutoverDay"))
	if err != nil || !card.IsValidDay(cutoverDay) {
		writeError(w, http.StatusBadRequest, "cutoverDay must be between 1 and 31")
		return
	}
	dueDay, err := strconv.Atoi(q.Get("dueDay"))
	if err != nil || !card.IsValidDay(dueDay) {
		writeError(w, http.StatusBadRequest, "dueDay must be between 1 and 31")
		return
	}

	purchase := time.Now().UTC()
	if raw := q.Get("purchaseDate"); raw != "" {
		if purchase, err = parseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	due := invoice.DueDateForPurchase(cutoverDay, dueDay, purchase)
	writeJSON(w, http.StatusOK, DueDateResponse{
		PurchaseDate:   purchase.Format(dateLayout),
		DueDate:        due.Format(dateLayout),
		ReferenceMonth: invoice.MonthOf(due),
		Cycle:          invoice.CurrentCycle(cutoverDay, purchase),
	})
}
