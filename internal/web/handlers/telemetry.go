package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/frame-curator/internal/constants"
	"github.com/kozaktomas/frame-curator/internal/telemetry"
)

// TelemetryHandler serves agent reports from a telemetry store.
type TelemetryHandler struct {
	store *telemetry.Store
}

// NewTelemetryHandler creates a new telemetry handler.
func NewTelemetryHandler(store *telemetry.Store) *TelemetryHandler {
	return &TelemetryHandler{store: store}
}

// TelemetryListResponse represents the list of latest reports.
type TelemetryListResponse struct {
	Count  int                 `json:"count"`
	Agents []telemetry.Metrics `json:"agents"`
}

// Report stores the posted metrics as the agent's latest report.
func (h *TelemetryHandler) Report(w http.ResponseWriter, r *http.Request) {
	var m telemetry.Metrics
	if err := decodeJSONBody(w, r, constants.MaxTelemetryBodySize, &m); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	stored := h.store.Put(m)
	log.Printf("Telemetry from %s: cpu=%.1f%% ram=%.1f%% disk=%.1f%% users=%d",
		sanitizeForLog(stored.AgentID), stored.CPUPercent, stored.RAMPercent, stored.RootUsagePercent, stored.Users)

	respondJSON(w, http.StatusOK, stored)
}

// List returns the latest report of every agent.
func (h *TelemetryHandler) List(w http.ResponseWriter, r *http.Request) {
	agents := h.store.List()
	respondJSON(w, http.StatusOK, TelemetryListResponse{
		Count:  len(agents),
		Agents: agents,
	})
}

// Get returns the latest report of one agent.
func (h *TelemetryHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	m, ok := h.store.Get(agentID)
	if !ok {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// Reset drops every stored report.
func (h *TelemetryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.store.Reset()
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
