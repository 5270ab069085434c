// Package civil holds calendar-date helpers. Billing works on calendar days, so
// every date produced here is midnight UTC regardless of the input location.
package civil

import "time"

// Date returns midnight UTC of the given day. Days past the end of the month are
// clamped to the month's last day, so Date(2025, 2, 31) is 2025-02-28.
// Months outside 1..12 are normalized first (month 13 is January of next year).
func Date(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if day < 1 {
		day = 1
	}
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Day truncates t to its calendar day, read in t's own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonths moves t by n months keeping the day of month where possible.
// Jan 31 + 1 month is Feb 28/29, not Mar 3.
func AddMonths(t time.Time, n int) time.Time {
	return Date(t.Year(), t.Month()+time.Month(n), t.Day())
}

// DaysBetween returns the whole number of days from a to b (floor).
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
