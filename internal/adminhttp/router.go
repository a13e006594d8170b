// Package adminhttp exposes the daemon's admin HTTP surface: a health
// probe, a Prometheus scrape endpoint, and generated API docs, grounded on
// the teacher's internal/api router (mux-based router with global
// middleware and a documentation route).
package adminhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// HealthReporter supplies the liveness/readiness signal for /healthz.
type HealthReporter interface {
	Healthy() (bool, string)
}

// Config bundles the admin router's collaborators.
type Config struct {
	Health HealthReporter
	Logger *slog.Logger
}

// NewRouter builds the admin HTTP surface: /healthz, /metrics, /docs.
//
// @title Self-Modifying Daemon Admin API
// @version 1.0
// @BasePath /
func NewRouter(cfg Config) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	router := mux.NewRouter()
	router.Use(loggingMiddleware(cfg.Logger))

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthzHandler(cfg.Health)).Methods(http.MethodGet)
	router.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)

	return router
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("adminhttp: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

type healthzResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func healthzHandler(health HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			writeJSON(w, http.StatusOK, healthzResponse{Status: "ok"})
			return
		}
		ok, msg := health.Healthy()
		resp := healthzResponse{Status: "ok", Message: msg}
		status := http.StatusOK
		if !ok {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
