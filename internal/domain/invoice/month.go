package invoice

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"carteira/internal/shared/civil"
)

// ReferenceMonth identifies the calendar month whose charges an invoice
// aggregates. Invoices are keyed by this month, which is also their due month.
type ReferenceMonth struct {
	Year  int
	Month time.Month
}

// MonthOf returns the reference month containing t.
func MonthOf(t time.Time) ReferenceMonth {
	return ReferenceMonth{Year: t.Year(), Month: t.Month()}
}

// ParseReferenceMonth parses "YYYY-MM".
func ParseReferenceMonth(s string) (ReferenceMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return ReferenceMonth{}, fmt.Errorf("invalid reference month %q (expected YYYY-MM): %w", s, err)
	}
	return MonthOf(t), nil
}

// String formats the month as "YYYY-MM".
func (m ReferenceMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether the month is unset.
func (m ReferenceMonth) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// First returns the first day of the month.
func (m ReferenceMonth) First() time.Time {
	return civil.Date(m.Year, m.Month, 1)
}

// AddMonths moves the month by n, rolling the year as needed.
func (m ReferenceMonth) AddMonths(n int) ReferenceMonth {
	return MonthOf(m.First().AddDate(0, n, 0))
}

// Contains reports whether the calendar day of t lies in the month.
func (m ReferenceMonth) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Before reports whether m is strictly earlier than o.
func (m ReferenceMonth) Before(o ReferenceMonth) bool {
	return m.index() < o.index()
}

// After reports whether m is strictly later than o.
func (m ReferenceMonth) After(o ReferenceMonth) bool {
	return m.index() > o.index()
}

func (m ReferenceMonth) index() int {
	return m.Year*12 + int(m.Month) - 1
}

// Value implements driver.Valuer; months are stored as TEXT "YYYY-MM".
func (m ReferenceMonth) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *ReferenceMonth) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ReferenceMonth", src)
	}
	parsed, err := ParseReferenceMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalJSON encodes the month as "YYYY-MM".
func (m ReferenceMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes "YYYY-MM".
func (m *ReferenceMonth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseReferenceMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
