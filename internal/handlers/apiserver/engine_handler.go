package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"pronet-go/internal/engine"
	"pronet-go/internal/models"
)

// EngineHandler exposes the engine's views, search controls, and command
// dispatcher to the UI.
type EngineHandler struct {
	engine *engine.Engine
}

// NewEngineHandler creates a new EngineHandler.
func NewEngineHandler(eng *engine.Engine) *EngineHandler {
	return &EngineHandler{engine: eng}
}

// GetViewHandler handles GET /api/v1/views/{kind}
func (h *EngineHandler) GetViewHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.ViewKind(mux.Vars(r)["kind"])
	view, ok := h.engine.ViewOf(kind)
	if !ok {
		writeJSONError(w, "unknown view kind", http.StatusNotFound)
		return
	}
	if view.Records == nil {
		view.Records = []*models.RelationshipRecord{}
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// RefreshViewHandler handles POST /api/v1/views/{kind}/refresh — the retry
// action behind a failed view load.
func (h *EngineHandler) RefreshViewHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.ViewKind(mux.Vars(r)["kind"])
	if _, ok := h.engine.ViewOf(kind); !ok {
		writeJSONError(w, "unknown view kind", http.StatusNotFound)
		return
	}
	h.engine.RefreshView(kind)
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"message": "refresh scheduled"})
}

// SearchQueryPayload is the body for PUT /api/v1/search.
type SearchQueryPayload struct {
	Query string `json:"query"`
}

// SetSearchQueryHandler handles PUT /api/v1/search
func (h *EngineHandler) SetSearchQueryHandler(w http.ResponseWriter, r *http.Request) {
	var payload SearchQueryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.engine.SetSearchQuery(payload.Query); err != nil {
		log.Printf("api: setting search query: %v", err)
		writeJSONError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"query": h.engine.SearchQuery()})
}

// GlobalSearchHandler handles GET /api/v1/search/global
func (h *EngineHandler) GlobalSearchHandler(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.GlobalSearchResults()
	if err != nil {
		if errors.Is(err, engine.ErrAuthRequired) {
			writeJSONError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"query":   h.engine.SearchQuery(),
		"results": results,
	})
}

// CommandPayload is the body for POST /api/v1/commands.
type CommandPayload struct {
	Command        engine.Command `json:"command"`
	CounterpartyID string         `json:"counterpartyId"`
}

// DispatchCommandHandler handles POST /api/v1/commands
func (h *EngineHandler) DispatchCommandHandler(w http.ResponseWriter, r *http.Request) {
	var payload CommandPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.CounterpartyID == "" {
		writeJSONError(w, "missing counterpartyId", http.StatusBadRequest)
		return
	}

	// The command's remote call and settle run on the engine's lifetime,
	// not this request's; the 202 below does not abort them.
	err := h.engine.Dispatch(payload.Command, payload.CounterpartyID)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusAccepted, map[string]string{"message": "command accepted"})
	case errors.Is(err, engine.ErrConflictingAction):
		// Neutral "already processing" rather than an error state.
		writeJSONResponse(w, http.StatusConflict, map[string]string{"message": "already processing"})
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrUnknownCommand):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrNoRecord):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("api: dispatching %s for %s: %v", payload.Command, payload.CounterpartyID, err)
		writeJSONError(w, "failed to dispatch command", http.StatusInternalServerError)
	}
}

// GetActionErrorHandler handles GET /api/v1/commands/{counterpartyID}/error
// — the inline error shown next to a counterparty after a rollback.
func (h *EngineHandler) GetActionErrorHandler(w http.ResponseWriter, r *http.Request) {
	counterpartyID := mux.Vars(r)["counterpartyID"]
	if msg, ok := h.engine.ActionError(counterpartyID); ok {
		writeJSONResponse(w, http.StatusOK, map[string]string{"error": msg})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{})
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("api: writing JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}
