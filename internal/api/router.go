// Package api serves the operational endpoints of the article service:
// liveness, readiness and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/example/article-cqrs/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ReadyFunc reports whether dependencies are reachable
type ReadyFunc func(ctx context.Context) error

type RouterConfig struct {
	Gatherer prometheus.Gatherer
	Ready    ReadyFunc
	Log      zerolog.Logger
	// ReadyTimeout bounds a readiness check; defaults to 2s
	ReadyTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(cfg.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(req.Context(), cfg.ReadyTimeout)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
