package main

import (
	"net/http"

	httphandlers "carteira/internal/interfaces/http"
	"carteira/internal/shared/config"
	"carteira/internal/shared/middleware"
)

// SetupRoutes returns the API handler, wrapped with otelhttp when telemetry
// is enabled.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	var handler http.Handler = httphandlers.NewRouter(deps.Handlers)

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	return handler
}
