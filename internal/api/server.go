// Package api provides the HTTP API exposing the state of the polling loop.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/status"
)

// StatusProvider exposes the state of the polling loop
type StatusProvider interface {
	Status() status.CycleStatus
	Ready() bool
}

// SnapshotProvider exposes the last persisted snapshot
type SnapshotProvider interface {
	LastSnapshot() state.Snapshot
}

// ServerOption configures the API server
type ServerOption func(*serverOptions)

type serverOptions struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
}

// WithMiddlewares installs mw in front of every route, in order
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(o *serverOptions) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// WithMetricsHandler serves handler on /metrics. A nil handler leaves the route unset.
func WithMetricsHandler(handler http.Handler) ServerOption {
	return func(o *serverOptions) {
		o.metricsHandler = handler
	}
}

// NewServer builds the router of the status API:
//
//	GET /health, /readiness, /version, /metrics
//	GET /v1/status, /v1/images, /v1/images/{user}/{name}?tag=
func NewServer(statusProvider StatusProvider, snapshots SnapshotProvider, opts ...ServerOption) *chi.Mux {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	routes := &Routes{status: statusProvider, snapshots: snapshots}

	r := chi.NewRouter()
	r.Use(o.middlewares...)

	r.Get("/health", healthHandler)
	r.Get("/readiness", routes.readinessHandler)
	r.Get("/version", versionHandler)
	if o.metricsHandler != nil {
		r.Handle("/metrics", o.metricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/status", routes.getStatus)
		v1.Get("/images", routes.listImages)
		v1.Get("/images/{user}/{name}", routes.getImage)
	})

	return r
}

// LoggingMiddleware logs every request at debug level and server errors at warn level
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			slog.Log(r.Context(), level, "Served request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
