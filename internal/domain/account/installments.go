package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/shared/civil"
)

// BuildInstallments splits total into count monthly installments starting at first.
// Every installment gets total/count truncated to cents; the last one absorbs the
// remainder so the plan always sums to total exactly.
func BuildInstallments(accountID string, total decimal.Decimal, count int, first time.Time) []*Installment {
	if count < 1 {
		return nil
	}

	each := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)
	last := total.Sub(each.Mul(decimal.NewFromInt(int64(count - 1))))
	start := civil.Day(first)

	installments := make([]*Installment, 0, count)
	for i := 0; i < count; i++ {
		amount := each
		if i == count-1 {
			amount = last
		}
		installments = append(installments, &Installment{
			ID:             uuid.NewString(),
			AccountID:      accountID,
			SequenceNumber: i + 1,
			Amount:         amount,
			DueDate:        civil.AddMonths(start, i),
			Status:         InstallmentPending,
		})
	}
	return installments
}
