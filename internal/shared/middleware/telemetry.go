package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps an http.Handler with otelhttp instrumentation: a server
// span per request plus the standard request duration and size metrics.
func Telemetry(next http.Handler) http.Handler {
	return otelhttp.NewMiddleware("carteira-api")(next)
}
