// Package server builds the HTTP and gRPC servers of the service.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bangazon/checkout/pkg/config"
	"github.com/bangazon/checkout/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPServer returns a server listening on cfg.Port.
// Every request runs inside an OpenTelemetry server span named operation.
func NewHTTPServer(cfg config.HTTPConfig, operation string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(handler, operation),
		ReadTimeout:       cfg.Timeout.Read,
		ReadHeaderTimeout: cfg.Timeout.ReadHeader,
		WriteTimeout:      cfg.Timeout.Write,
		IdleTimeout:       cfg.Timeout.Idle,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

type routerOptions struct {
	metrics        http.Handler
	requestTimeout time.Duration
}

// RouterOption customizes the router built by NewChiRouter.
type RouterOption func(*routerOptions)

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) RouterOption {
	return func(o *routerOptions) { o.metrics = h }
}

// WithRequestTimeout cancels the request context after d.
func WithRequestTimeout(d time.Duration) RouterOption {
	return func(o *routerOptions) { o.requestTimeout = d }
}

// NewChiRouter returns a router that assigns request ids, logs and recovers every request.
func NewChiRouter(logger *slog.Logger, opts ...RouterOption) *chi.Mux {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.CleanPath)
	mux.Use(web.StructuredLogger(logger), web.Recoverer(logger))
	if o.requestTimeout > 0 {
		mux.Use(middleware.Timeout(o.requestTimeout))
	}
	if o.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", o.metrics)
	}
	return mux
}
