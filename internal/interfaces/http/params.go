package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"carteira/internal/domain/invoice"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD and returns midnight UTC of that day.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseInstant accepts RFC3339 or YYYY-MM-DD.
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return parseDate(s)
}

func queryInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

// invoiceFilterFromQuery reads cardId, status (repeated or comma separated),
// from, to, limit and offset.
func invoiceFilterFromQuery(q url.Values) (invoice.InvoiceFilter, error) {
	filter := invoice.InvoiceFilter{CardID: q.Get("cardId")}

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, invoice.Status(s))
			}
		}
	}

	for _, bound := range []struct {
		key string
		dst **invoice.ReferenceMonth
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(bound.key)
		if raw == "" {
			continue
		}
		m, err := invoice.ParseReferenceMonth(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s: %w", bound.key, err)
		}
		*bound.dst = &m
	}

	var err error
	if filter.Limit, err = queryInt(q, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(q, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}
