package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saqib-21/WellandCanalStatus/internal/observability"
)

// RouterConfig holds the per-route middleware settings for NewRouter.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // 0 disables the handler deadline
}

// NewRouter wires handlers and middleware:
//
//	GET /api/bridges/{source}, /api/bridges, /api/markers  (rate limit, timeout, gzip)
//	GET /health, /healthz, /metrics
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.Use(GzipMiddleware)
	api.HandleFunc("/bridges", h.GetCombined).Methods(http.MethodGet)
	api.HandleFunc("/bridges/{source}", h.GetSource).Methods(http.MethodGet)
	api.HandleFunc("/markers", h.GetMarkers).Methods(http.MethodGet)
	return router
}
