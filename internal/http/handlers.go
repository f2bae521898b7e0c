package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/saqib-21/WellandCanalStatus/internal/lifecycle"
	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/observability"
	"github.com/saqib-21/WellandCanalStatus/internal/reconcile"
	"github.com/saqib-21/WellandCanalStatus/internal/service"
	"github.com/saqib-21/WellandCanalStatus/internal/validation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	bridges   *service.BridgeService
	canonical []reconcile.CanonicalBridge
	logger    *zap.Logger
}

// NewHandler returns a new Handler serving markers for the compiled-in bridge list.
func NewHandler(bridges *service.BridgeService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bridges:   bridges,
		canonical: reconcile.CanonicalBridges(),
		logger:    logger,
	}
}

type bridgesResponse struct {
	Bridges []models.BridgeStatus `json:"bridges"`
}

type markersResponse struct {
	Markers []reconcile.Marker `json:"markers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetSource handles GET /api/bridges/{source}.
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	key, err := validation.ValidateSourceKey(mux.Vars(r)["source"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bridges, err := h.bridges.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bridgesResponse{Bridges: bridges})
}

// GetCombined handles GET /api/bridges.
func (h *Handler) GetCombined(w http.ResponseWriter, r *http.Request) {
	bridges, err := h.bridges.GetCombined(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bridgesResponse{Bridges: bridges})
}

// GetMarkers handles GET /api/markers: the combined feed matched onto the canonical bridges.
func (h *Handler) GetMarkers(w http.ResponseWriter, r *http.Request) {
	bridges, err := h.bridges.GetCombined(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markersResponse{Markers: reconcile.Reconcile(bridges, h.canonical)})
}

// GetHealth handles GET /health and /healthz.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if lifecycle.IsShuttingDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps service errors: unknown source is 404, anything else 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrUnknownSource) {
		status = http.StatusNotFound
	}
	observability.LoggerFromContext(r.Context()).Debug("request failed", zap.Int("status", status), zap.Error(err))
	writeError(w, status, err.Error())
}
