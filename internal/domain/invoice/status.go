package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

// ComputeStatus derives an invoice status from stored fields only, so any number
// of concurrent recomputations agree:
//
//  1. paid >= total (with total > 0) is paga;
//  2. otherwise the purchase cycle billed on dueDate decides: prevista before it
//     opens, aberta while it runs, fechada once it has ended;
//  3. a card without a cutover day is fechada after dueDate and aberta before.
func ComputeStatus(c *card.Card, dueDate time.Time, paid, total decimal.Decimal, now time.Time) Status {
	return computeStatus(nil, c, dueDate, paid, total, now)
}

func computeStatus(memo *CycleMemo, c *card.Card, dueDate time.Time, paid, total decimal.Decimal, now time.Time) Status {
	if total.IsPositive() && paid.GreaterThanOrEqual(total) {
		return StatusPaga
	}

	today := civil.Day(now)

	if c == nil || !c.HasCycle() {
		if today.After(civil.Day(dueDate)) {
			return StatusFechada
		}
		return StatusAberta
	}

	cycle := memo.ForInvoiceMonth(c.CutoverDay, MonthOf(dueDate))
	switch {
	case today.Before(cycle.Start):
		return StatusPrevista
	case today.After(cycle.End):
		return StatusFechada
	default:
		return StatusAberta
	}
}
