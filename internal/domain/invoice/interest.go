package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain/card"
	"carteira/internal/shared/civil"
)

var (
	daysPerMonth = decimal.NewFromInt(30)
	hundred      = decimal.NewFromInt(100)
)

// OverdueInterest returns the informational revolving interest accrued on the
// outstanding balance of inv since its due date, using simple daily interest
// at the card's monthly rate divided by 30. It is zero until the due date has
// passed and whenever nothing is outstanding.
//
// Days late count calendar days, with now read in its own location, the same
// way ComputeStatus decides lateness.
func OverdueInterest(inv *Invoice, c *card.Card, now time.Time) decimal.Decimal {
	outstanding := inv.Outstanding()
	if !outstanding.IsPositive() || c == nil {
		return decimal.Zero
	}

	daysLate := civil.DaysBetween(civil.Day(inv.DueDate), civil.Day(now))
	if daysLate <= 0 {
		return decimal.Zero
	}

	dailyRate := c.RevolvingMonthlyRatePercent.Div(daysPerMonth)
	return outstanding.
		Mul(dailyRate).
		Mul(decimal.NewFromInt(int64(daysLate))).
		Div(hundred).
		Round(2)
}
