// Package messages holds the user-facing push notification texts. They can be
// overridden from a JSON file so copy changes need no release.
package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render replaces {name} placeholders in Title and Body.
func (m MessageText) Render(vars map[string]string) MessageText {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return MessageText{Title: r.Replace(m.Title), Body: r.Replace(m.Body)}
}

type Messages struct {
	// InvoicePaid accepts {month}, {amount} and {card}.
	InvoicePaid MessageText `json:"invoice_paid"`
}

// Default returns the built-in texts.
func Default() *Messages {
	return &Messages{
		InvoicePaid: MessageText{
			Title: "Fatura paga",
			Body:  "Fatura de {month} quitada: R$ {amount}",
		},
	}
}

// Load reads the JSON file at path over the defaults. Texts missing from the
// file keep their default; an empty path returns the defaults.
func Load(path string) (*Messages, error) {
	msgs := Default()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}

	var file Messages
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}

	if file.InvoicePaid.Title != "" {
		msgs.InvoicePaid.Title = file.InvoicePaid.Title
	}
	if file.InvoicePaid.Body != "" {
		msgs.InvoicePaid.Body = file.InvoicePaid.Body
	}
	return msgs, nil
}
