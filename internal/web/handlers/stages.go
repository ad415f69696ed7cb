package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/frame-curator/internal/stage"
)

// StagesHandler exposes pipeline stage status files.
type StagesHandler struct {
	tracker *stage.Tracker
}

// NewStagesHandler creates a new stages handler.
func NewStagesHandler(tracker *stage.Tracker) *StagesHandler {
	return &StagesHandler{tracker: tracker}
}

// List returns every stage status found in the stage directory.
func (h *StagesHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.tracker.List()
	if err != nil {
		log.Printf("Failed to list stages: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list stages")
		return
	}
	respondJSON(w, http.StatusOK, statuses)
}

// Get returns one stage status.
func (h *StagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := h.tracker.Get(name)
	if errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusNotFound, "stage not found")
		return
	}
	if err != nil {
		log.Printf("Failed to read stage %s: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "failed to read stage")
		return
	}
	respondJSON(w, http.StatusOK, status)
}
