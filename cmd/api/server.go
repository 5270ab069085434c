package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"carteira/internal/infrastructure/listener"
	"carteira/internal/interfaces/scheduler"
	"carteira/internal/shared/config"
)

// StartServer creates the HTTP server and starts it in the background.
func StartServer(handler http.Handler, cfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	return srv
}

// GracefulShutdown stops background work first so no reconciliation starts
// against a closing server, then drains HTTP requests.
func GracefulShutdown(srv *http.Server, sched *scheduler.Scheduler, lst *listener.BillingListener, timeout time.Duration) {
	log.Info().Msg("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if lst != nil {
		lst.Stop()
	}

	if sched != nil {
		sched.Shutdown(timeout)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	log.Info().Msg("Server stopped")
}
