package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
	"carteira/internal/domain/invoice"
	"carteira/internal/infrastructure/firebase"
	"carteira/internal/infrastructure/sqlstore"
	httphandlers "carteira/internal/interfaces/http"
	"carteira/internal/shared/config"
	"carteira/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *sqlstore.DB

	// Repositories (for the scheduler job provider)
	CardRepo *sqlstore.CardRepository

	// Services
	InvoiceService *invoice.Service

	Handlers httphandlers.Handlers
	Clock    func() time.Time
}

// NewDependencies opens and migrates the database and builds the services.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlstore.Open(dialect, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", string(dialect)).Str("database", cfg.Database.Redacted()).Msg("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	clock, err := cfg.Billing.Clock()
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize repositories
	cardRepo := sqlstore.NewCardRepository(db)
	accountRepo := sqlstore.NewAccountRepository(db)
	invoiceRepo := sqlstore.NewInvoiceRepository(db)

	// Push notifications are optional
	var notifier invoice.Notifier
	if cfg.Firebase.CredentialsFile != "" {
		msgs, err := messages.Load(cfg.Firebase.MessagesFile)
		if err != nil {
			db.Close()
			return nil, err
		}
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, msgs)
		if err != nil {
			log.Warn().Err(err).Msg("Firebase disabled, invoice-paid pushes will not be sent")
		} else {
			notifier = fcm
			log.Info().Msg("Firebase notifier enabled")
		}
	}

	// Initialize domain services
	cardService := card.NewService(cardRepo)
	accountService := account.NewService(accountRepo)
	invoiceService := invoice.NewService(invoiceRepo, cardRepo, accountRepo, invoice.ServiceConfig{
		HorizonMonths: cfg.Billing.HorizonMonths,
		Notifier:      notifier,
		Clock:         clock,
	})

	return &Dependencies{
		DB:             db,
		CardRepo:       cardRepo,
		InvoiceService: invoiceService,
		Handlers: httphandlers.Handlers{
			Invoices: httphandlers.NewInvoiceHandler(invoiceService, clock),
			Cards:    httphandlers.NewCardHandler(cardService),
			Accounts: httphandlers.NewAccountHandler(accountService, cardService),
			Cycles:   httphandlers.NewCycleHandler(),
			Health:   httphandlers.NewHealthHandler(db),
		},
		Clock: clock,
	}, nil
}

// ReconcileUser runs one reconciliation and reports per card/month failures
// as an error.
func (d *Dependencies) ReconcileUser(ctx context.Context, userID int64) error {
	res, err := d.InvoiceService.ReconcileInvoices(ctx, userID)
	if err != nil {
		return err
	}
	return res.Err()
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
