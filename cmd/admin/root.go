package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"carteira/internal/domain/invoice"
	"carteira/internal/infrastructure/sqlstore"
	"carteira/internal/shared/config"
	"carteira/internal/shared/logger"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	timeout  time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Carteira admin CLI",
	Long: `Management commands for the carteira billing engine.

Examples:
  admin migrate
  admin reconcile --user-id=1,2,3
  admin reconcile --all --workers=8
  admin pay --user-id=1 --invoice-id=<id> --amount=500.00
  admin interest --user-id=1 --invoice-id=<id> --at=2025-06-16`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnvFile()
		if cfgFile == "" {
			cfgFile = os.Getenv("CONFIG_FILE")
		}

		var err error
		if cfg, err = config.LoadFile(cfgFile); err != nil {
			return err
		}
		logger.Setup(logLevel, "console")
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "timeout for the operation")
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func openDatabase(ctx context.Context) (*sqlstore.DB, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.Open(dialect, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// services bundles what the billing commands need.
type services struct {
	db       *sqlstore.DB
	cards    *sqlstore.CardRepository
	invoices *invoice.Service
	clock    func() time.Time
}

func openServices(ctx context.Context) (*services, error) {
	db, err := openDatabase(ctx)
	if err != nil {
		return nil, err
	}
	clock, err := cfg.Billing.Clock()
	if err != nil {
		db.Close()
		return nil, err
	}

	cards := sqlstore.NewCardRepository(db)
	svc := invoice.NewService(sqlstore.NewInvoiceRepository(db), cards, sqlstore.NewAccountRepository(db), invoice.ServiceConfig{
		HorizonMonths: cfg.Billing.HorizonMonths,
		Clock:         clock,
	})
	return &services{db: db, cards: cards, invoices: svc, clock: clock}, nil
}

func (s *services) Close() {
	s.db.Close()
}

// parseUserIDs parses a comma separated list of positive ids.
func parseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user ID %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
