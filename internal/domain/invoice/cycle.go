package invoice

import (
	"time"

	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

// lateCutoverDay is the cutover day from which every purchase is billed on the
// next cycle, whatever its day of month.
const lateCutoverDay = 20

// Cycle is the inclusive range of purchase days billed together on one invoice.
type Cycle struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the calendar day of t falls inside the cycle.
func (c Cycle) Contains(t time.Time) bool {
	d := civil.Day(t)
	return !d.Before(c.Start) && !d.After(c.End)
}

// DueDateForPurchase maps a purchase date to the due date of the invoice it is
// billed on. Purchases before the cutover day are due on dueDay of the purchase
// month; later purchases roll to the following month. Cards with a cutover day
// of 20 or later always roll to the following month.
func DueDateForPurchase(cutoverDay, dueDay int, purchase time.Time) time.Time {
	if cutoverDay >= lateCutoverDay || purchase.Day() >= cutoverDay {
		return civil.Date(purchase.Year(), purchase.Month()+1, dueDay)
	}
	return civil.Date(purchase.Year(), purchase.Month(), dueDay)
}

// CurrentCycle returns the cycle that is accumulating purchases on ref.
func CurrentCycle(cutoverDay int, ref time.Time) Cycle {
	// Compare against the clamped cutover so a cutover of 31 still turns over
	// on the last day of shorter months.
	start := civil.Date(ref.Year(), ref.Month(), cutoverDay)
	if civil.Day(ref).Before(start) {
		start = civil.Date(ref.Year(), ref.Month()-1, cutoverDay)
	}
	next := civil.Date(start.Year(), start.Month()+1, cutoverDay)
	return Cycle{Start: start, End: next.AddDate(0, 0, -1)}
}

// CycleForInvoiceMonth returns the cycle billed on the invoice due in
// (dueMonth, dueYear): it opens on the cutover day two months earlier and
// closes the day before the cutover day of the previous month.
func CycleForInvoiceMonth(cutoverDay int, dueMonth time.Month, dueYear int) Cycle {
	start := civil.Date(dueYear, dueMonth-2, cutoverDay)
	end := civil.Date(dueYear, dueMonth-1, cutoverDay).AddDate(0, 0, -1)
	return Cycle{Start: start, End: end}
}

// DueDateForMonth returns the due date of the card's invoice for month.
// Invoices are keyed by their due month, so this is the due day of that month.
func DueDateForMonth(c *card.Card, month ReferenceMonth) time.Time {
	return civil.Date(month.Year, month.Month, c.DueDay)
}

type cycleKey struct {
	cutoverDay int
	month      ReferenceMonth
}

// CycleMemo caches CycleForInvoiceMonth for the duration of one request or
// reconciliation pass. It is not safe for concurrent use and must not be shared
// across users.
type CycleMemo struct {
	cycles map[cycleKey]Cycle
}

// NewCycleMemo returns an empty memo.
func NewCycleMemo() *CycleMemo {
	return &CycleMemo{cycles: make(map[cycleKey]Cycle)}
}

// ForInvoiceMonth returns the memoized CycleForInvoiceMonth result.
func (m *CycleMemo) ForInvoiceMonth(cutoverDay int, month ReferenceMonth) Cycle {
	if m == nil {
		return CycleForInvoiceMonth(cutoverDay, month.Month, month.Year)
	}
	key := cycleKey{cutoverDay: cutoverDay, month: month}
	if c, ok := m.cycles[key]; ok {
		return c
	}
	c := CycleForInvoiceMonth(cutoverDay, month.Month, month.Year)
	m.cycles[key] = c
	return c
}
