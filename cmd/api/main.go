package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"

	"carteira/internal/infrastructure/listener"
	"carteira/internal/infrastructure/sqlstore"
	"carteira/internal/interfaces/scheduler"
	"carteira/internal/shared/config"
	"carteira/internal/shared/logger"
	"carteira/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Application error")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	config.LoadEnvFile()
	holder, err := config.NewHolder(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	defer holder.Stop()
	cfg := holder.Get()

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				log.Error().Err(err).Msg("Telemetry shutdown failed")
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Periodic reconciliation of every user with an active card
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Interval:      cfg.Scheduler.Interval,
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			JobTimeout:    cfg.Scheduler.JobTimeout,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.ReconcileJobProvider(deps.CardRepo, deps.InvoiceService),
		})
		if err != nil {
			return err
		}
		sched.Start()
	} else {
		log.Info().Msg("Scheduler is disabled")
	}

	// Change notifications only exist on PostgreSQL
	var lst *listener.BillingListener
	if cfg.Listener.Enabled && deps.DB.Dialect() == sqlstore.Postgres {
		lst = listener.NewBillingListener(listener.Config{
			ConnStr:  cfg.Database.ConnectionString(),
			Channel:  cfg.Listener.Channel,
			Debounce: cfg.Listener.Debounce,
		}, deps.ReconcileUser)
		lst.Start(ctx)
	}

	if holder.Path() != "" {
		holder.OnChange(func(c *config.Config) {
			logger.SetLevel(c.Logging.Level)
			if sched != nil && c.Scheduler.Interval != sched.Interval() {
				sched.SetInterval(c.Scheduler.Interval)
			}
		})
		if err := holder.WatchFile(); err != nil {
			log.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}

	srv := StartServer(SetupRoutes(deps, cfg), cfg.Server)

	<-ctx.Done()
	GracefulShutdown(srv, sched, lst, cfg.Server.ShutdownTimeout)
	return nil
}
