// Package api serves the clearinghouse HTTP API: blotter, positions and
// alarms queries, trade file ingestion and the live alert stream.
package api

import (
	"context"
	"net/http"
	"time"

	"portfolio-clearinghouse/internal/ingest"
	"portfolio-clearinghouse/internal/metrics"
	"portfolio-clearinghouse/internal/portfolio"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Version is reported by /health.
const Version = "1.0.0"

// Deps are the collaborators the API serves.
type Deps struct {
	Engine *portfolio.Engine
	Ingest *ingest.Service
	Store  metrics.Pinger // probed by /health

	// Stream serves GET /api/alerts/stream (optional).
	Stream http.Handler
	// Alerts backs GET /api/alerts/latest (optional).
	Alerts LatestAlerts

	Auth    *Authenticator
	Metrics *metrics.Metrics // optional
}

// LatestAlerts looks up the most recent alert event raised for an account.
// It returns nil when the account has none.
type LatestAlerts interface {
	Latest(ctx context.Context, accountID string) ([]byte, error)
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(traceMiddleware)
	r.Use(loggingMiddleware)
	if d.Metrics != nil {
		r.Use(metricsMiddleware(d.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Middleware)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/blotter", h.blotter)
			r.Get("/positions", h.positions)
			r.Get("/alarms", h.alarms)
			r.Post("/ingest", h.ingest)
			if d.Alerts != nil {
				r.Get("/alerts/latest", h.latestAlert)
			}
		})

		if d.Stream != nil {
			r.Get("/alerts/stream", d.Stream.ServeHTTP)
		}
	})

	return r
}
