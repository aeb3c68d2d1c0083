package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certpass/internal/platform/middleware"
)

// HealthCheck probes one dependency, keyed by component name.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects everything the router needs.
type RouterConfig struct {
	Handler     *Handler
	AdminJWTKey string
	Logger      *slog.Logger
	Health      map[string]HealthCheck
}

// NewRouter wires all endpoints. The verify endpoint is public; the sync
// trigger and status endpoints require an admin token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)

	cfg.Handler.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(cfg.AdminJWTKey, cfg.Logger))
		cfg.Handler.RegisterAdmin(r)
	})

	r.Get("/healthz", handleHealth(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		body := `{"status":"ok"}`
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = `{"status":"degraded","component":"` + name + `"}`
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}
