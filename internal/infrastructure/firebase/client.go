package firebase

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"carteira/internal/domain/invoice"
	"carteira/internal/shared/messages"
)

// sender is the part of *messaging.Client the notifier uses.
type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client implements invoice.Notifier using Firebase Cloud Messaging.
// Each user's devices subscribe to the topic "user-<id>".
type Client struct {
	msgClient sender
	messages  *messages.Messages
}

// NewClient initializes a Firebase app and returns an FCM client. A nil msgs
// uses the built-in texts.
func NewClient(ctx context.Context, credentialsFile string, msgs *messages.Messages) (*Client, error) {
	if msgs == nil {
		msgs = messages.Default()
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient, messages: msgs}, nil
}

// UserTopic returns the FCM topic of a user's devices.
func UserTopic(userID int64) string {
	return "user-" + strconv.FormatInt(userID, 10)
}

// InvoicePaid tells the owner's devices that an invoice was paid in full.
func (c *Client) InvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	msg := c.invoicePaidMessage(inv)

	id, err := c.msgClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	log.Debug().Str("message_id", id).Str("topic", msg.Topic).Str("invoice_id", inv.ID).Msg("Invoice paid push sent")
	return nil
}

func (c *Client) invoicePaidMessage(inv *invoice.Invoice) *messaging.Message {
	text := c.messages.InvoicePaid.Render(map[string]string{
		"month":  inv.ReferenceMonth.String(),
		"amount": inv.PaidAmount.StringFixed(2),
		"card":   inv.CardID,
	})
	return &messaging.Message{
		Topic: UserTopic(inv.UserID),
		Notification: &messaging.Notification{
			Title: text.Title,
			Body:  text.Body,
		},
		Data: map[string]string{
			"type":            "invoice_paid",
			"invoice_id":      inv.ID,
			"card_id":         inv.CardID,
			"reference_month": inv.ReferenceMonth.String(),
			"paid_amount":     inv.PaidAmount.StringFixed(2),
		},
	}
}
