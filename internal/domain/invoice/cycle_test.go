package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"carteira/internal/shared/civil"
)

func TestDueDateForPurchase(t *testing.T) {
	tests := []struct {
		name     string
		cutover  int
		dueDay   int
		purchase time.Time
		want     time.Time
	}{
		{"before cutover stays in month", 10, 17, day(2025, 3, 5), day(2025, 3, 17)},
		{"on cutover rolls to next month", 10, 17, day(2025, 3, 10), day(2025, 4, 17)},
		{"after cutover rolls to next month", 10, 17, day(2025, 3, 22), day(2025, 4, 17)},
		{"december rolls the year", 10, 17, day(2025, 12, 15), day(2026, 1, 17)},
		{"late cutover always next month", 25, 2, day(2025, 3, 10), day(2025, 4, 2)},
		{"late cutover early purchase", 20, 5, day(2025, 3, 1), day(2025, 4, 5)},
		{"due day clamped to february", 5, 31, day(2025, 1, 20), day(2025, 2, 28)},
		{"due day clamped in leap year", 5, 30, day(2024, 1, 20), day(2024, 2, 29)},
		{"time of day ignored", 10, 17, at(2025, 3, 9, 23), day(2025, 3, 17)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DueDateForPurchase(tt.cutover, tt.dueDay, tt.purchase))
		})
	}
}

func TestDueDateForPurchase_EarlyCutoverProperty(t *testing.T) {
	for cutover := 1; cutover < lateCutoverDay; cutover++ {
		for d := day(2024, 1, 1); d.Year() == 2024; d = d.AddDate(0, 0, 1) {
			got := DueDateForPurchase(cutover, 10, d)
			purchaseMonth := MonthOf(d)
			if d.Day() >= cutover {
				if MonthOf(got) != purchaseMonth.AddMonths(1) {
					t.Fatalf("cutover %d purchase %s: got %s, want next month", cutover, d.Format("2006-01-02"), got.Format("2006-01-02"))
				}
			} else if MonthOf(got) != purchaseMonth {
				t.Fatalf("cutover %d purchase %s: got %s, want same month", cutover, d.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		}
	}
}

func TestDueDateForPurchase_LateCutoverProperty(t *testing.T) {
	for cutover := lateCutoverDay; cutover <= 31; cutover++ {
		for d := day(2025, 1, 1); d.Year() == 2025; d = d.AddDate(0, 0, 1) {
			got := DueDateForPurchase(cutover, 3, d)
			if MonthOf(got) != MonthOf(d).AddMonths(1) {
				t.Fatalf("cutover %d purchase %s: got %s, want next month", cutover, d.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		}
	}
}

func TestCurrentCycle(t *testing.T) {
	tests := []struct {
		name    string
		cutover int
		ref     time.Time
		want    Cycle
	}{
		{"after cutover", 10, day(2025, 3, 15), Cycle{day(2025, 3, 10), day(2025, 4, 9)}},
		{"on cutover", 10, day(2025, 3, 10), Cycle{day(2025, 3, 10), day(2025, 4, 9)}},
		{"before cutover", 10, day(2025, 3, 5), Cycle{day(2025, 2, 10), day(2025, 3, 9)}},
		{"january rolls back the year", 10, day(2025, 1, 3), Cycle{day(2024, 12, 10), day(2025, 1, 9)}},
		{"cutover 31 in february", 31, day(2025, 2, 28), Cycle{day(2025, 2, 28), day(2025, 3, 30)}},
		{"cutover 31 mid february", 31, day(2025, 2, 15), Cycle{day(2025, 1, 31), day(2025, 2, 27)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CurrentCycle(tt.cutover, tt.ref)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Contains(tt.ref))
		})
	}
}

func TestCycleForInvoiceMonth(t *testing.T) {
	tests := []struct {
		name    string
		cutover int
		month   time.Month
		year    int
		want    Cycle
	}{
		{"mid month cutover", 10, time.April, 2025, Cycle{day(2025, 2, 10), day(2025, 3, 9)}},
		{"cutover on the first", 1, time.April, 2025, Cycle{day(2025, 2, 1), day(2025, 2, 28)}},
		{"january reaches into last year", 15, time.January, 2025, Cycle{day(2024, 11, 15), day(2024, 12, 14)}},
		{"february reaches into last year", 25, time.February, 2025, Cycle{day(2024, 12, 25), day(2025, 1, 24)}},
		{"cutover clamped", 31, time.April, 2025, Cycle{day(2025, 2, 28), day(2025, 3, 30)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CycleForInvoiceMonth(tt.cutover, tt.month, tt.year))
		})
	}
}

func TestCycleContains(t *testing.T) {
	c := Cycle{Start: day(2025, 2, 10), End: day(2025, 3, 9)}

	assert.False(t, c.Contains(at(2025, 2, 9, 23)))
	assert.True(t, c.Contains(at(2025, 2, 10, 0)))
	assert.True(t, c.Contains(at(2025, 3, 9, 23)))
	assert.False(t, c.Contains(day(2025, 3, 10)))
}

func TestDueDateForMonth(t *testing.T) {
	c := testCard("c1", 10, 31)

	assert.Equal(t, day(2025, 2, 28), DueDateForMonth(c, refMonth(2025, time.February)))
	assert.Equal(t, day(2025, 3, 31), DueDateForMonth(c, refMonth(2025, time.March)))
}

func TestCycleMemo(t *testing.T) {
	memo := NewCycleMemo()
	m := refMonth(2025, time.April)

	first := memo.ForInvoiceMonth(10, m)
	assert.Equal(t, CycleForInvoiceMonth(10, time.April, 2025), first)
	assert.Len(t, memo.cycles, 1)

	memo.ForInvoiceMonth(10, m)
	assert.Len(t, memo.cycles, 1)

	memo.ForInvoiceMonth(11, m)
	assert.Len(t, memo.cycles, 2)

	var nilMemo *CycleMemo
	assert.Equal(t, first, nilMemo.ForInvoiceMonth(10, m))
}

func TestCivilHelpersUsedByCycles(t *testing.T) {
	assert.Equal(t, day(2025, 2, 28), civil.Date(2025, time.February, 31))
	assert.Equal(t, day(2026, 1, 5), civil.Date(2025, 13, 5))
	assert.Equal(t, 10, civil.DaysBetween(day(2025, 4, 17), at(2025, 4, 27, 18)))
}
