package invoice

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

// DefaultHorizonMonths is how far ahead invoices are materialized for cards
// that carry recurring charges.
const DefaultHorizonMonths = 6

// Charge line sources
const (
	SourceInstallment = "installment"
	SourceRecurring   = "recurring"
)

// ChargeLine is one amount contributing to an invoice.
type ChargeLine struct {
	Source            string          `json:"source"`
	SourceID          string          `json:"sourceId"`
	AccountID         string          `json:"accountId,omitempty"`
	RecurringChargeID string          `json:"recurringChargeId,omitempty"`
	Description       string          `json:"description"`
	SequenceNumber    int             `json:"sequenceNumber,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           time.Time       `json:"dueDate"`
	Settled           bool            `json:"settled,omitempty"`
}

// Aggregate is the total owed on one card for one month, with its breakdown.
type Aggregate struct {
	CardID string          `json:"cardId"`
	Month  ReferenceMonth  `json:"referenceMonth"`
	Total  decimal.Decimal `json:"total"`
	Lines  []ChargeLine    `json:"lines"`
}

// IsEmpty reports whether the month has nothing to bill.
func (a Aggregate) IsEmpty() bool {
	return !a.Total.IsPositive()
}

// chargeIndex groups a user's charge sources by card once per pass.
type chargeIndex struct {
	accounts           map[string]*account.Account
	installmentsByCard map[string][]*account.Installment
	recurringByCard    map[string][]*card.RecurringCharge
}

func newChargeIndex(accounts []*account.Account, installments []*account.Installment, recurring []*card.RecurringCharge) *chargeIndex {
	idx := &chargeIndex{
		accounts:           make(map[string]*account.Account, len(accounts)),
		installmentsByCard: make(map[string][]*account.Installment),
		recurringByCard:    make(map[string][]*card.RecurringCharge),
	}
	for _, a := range accounts {
		idx.accounts[a.ID] = a
	}
	for _, inst := range installments {
		acc, ok := idx.accounts[inst.AccountID]
		if !ok || !acc.IsCardBound() {
			continue
		}
		idx.installmentsByCard[*acc.CardID] = append(idx.installmentsByCard[*acc.CardID], inst)
	}
	for _, rc := range recurring {
		idx.recurringByCard[rc.CardID] = append(idx.recurringByCard[rc.CardID], rc)
	}
	return idx
}

// AggregateCharges totals, for card c and month, the pending installments of
// card-bound accounts due in that month plus one full amount of every active
// recurring charge whose validity window covers the month.
func AggregateCharges(c *card.Card, month ReferenceMonth, accounts []*account.Account, installments []*account.Installment, recurring []*card.RecurringCharge) Aggregate {
	return newChargeIndex(accounts, installments, recurring).aggregate(c, month, false)
}

// aggregate sums the month's charges. With settled set, installments already
// paid are included too, which rebuilds the lines of a paid invoice.
func (idx *chargeIndex) aggregate(c *card.Card, month ReferenceMonth, settled bool) Aggregate {
	agg := Aggregate{CardID: c.ID, Month: month, Total: decimal.Zero}

	for _, inst := range idx.installmentsByCard[c.ID] {
		if !month.Contains(inst.DueDate) || (!settled && !inst.IsPending()) {
			continue
		}
		acc := idx.accounts[inst.AccountID]
		agg.Lines = append(agg.Lines, ChargeLine{
			Source:         SourceInstallment,
			SourceID:       inst.ID,
			AccountID:      inst.AccountID,
			Description:    acc.Title,
			SequenceNumber: inst.SequenceNumber,
			Amount:         inst.Amount,
			DueDate:        civil.Day(inst.DueDate),
			Settled:        !inst.IsPending(),
		})
		agg.Total = agg.Total.Add(inst.Amount)
	}

	for _, rc := range idx.recurringByCard[c.ID] {
		if !recurringCovers(rc, month) {
			continue
		}
		agg.Lines = append(agg.Lines, ChargeLine{
			Source:            SourceRecurring,
			SourceID:          rc.ID,
			RecurringChargeID: rc.ID,
			Description:       rc.Description,
			Amount:            rc.Amount,
			DueDate:           civil.Date(month.Year, month.Month, rc.BillingDay),
		})
		agg.Total = agg.Total.Add(rc.Amount)
	}

	agg.Total = agg.Total.Round(2)
	return agg
}

// recurringCovers reports whether an active charge bills in month. Start and end
// are compared at month granularity: no pro-rating.
func recurringCovers(rc *card.RecurringCharge, month ReferenceMonth) bool {
	if !rc.Active {
		return false
	}
	if month.Before(MonthOf(rc.StartDate)) {
		return false
	}
	if rc.EndDate != nil && month.After(MonthOf(*rc.EndDate)) {
		return false
	}
	return true
}

// CandidateMonths lists the months that may carry charges for card c: every
// month with a pending installment, plus the next horizon months starting at
// now when the card has at least one active recurring charge.
func CandidateMonths(c *card.Card, now time.Time, horizon int, accounts []*account.Account, installments []*account.Installment, recurring []*card.RecurringCharge) []ReferenceMonth {
	return newChargeIndex(accounts, installments, recurring).candidateMonths(c, now, horizon)
}

func (idx *chargeIndex) candidateMonths(c *card.Card, now time.Time, horizon int) []ReferenceMonth {
	seen := make(map[ReferenceMonth]struct{})

	for _, inst := range idx.installmentsByCard[c.ID] {
		if inst.IsPending() {
			seen[MonthOf(inst.DueDate)] = struct{}{}
		}
	}

	hasRecurring := false
	for _, rc := range idx.recurringByCard[c.ID] {
		if rc.Active {
			hasRecurring = true
			break
		}
	}
	if hasRecurring {
		current := MonthOf(now)
		for i := 0; i < horizon; i++ {
			seen[current.AddMonths(i)] = struct{}{}
		}
	}

	months := make([]ReferenceMonth, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}
