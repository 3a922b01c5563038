// Package api provides HTTP handlers for the convopilot API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/akulov/convopilot/internal/session"
	"github.com/akulov/convopilot/internal/store"
)

// Handler provides the conversation API endpoints.
type Handler struct {
	repo   store.Repository
	engine *session.Manager
	events Publisher
}

// Publisher receives completed turn events for fan-out to operator UIs.
type Publisher interface {
	Publish(ev TurnEvent)
}

// NewHandler creates a new Handler. events may be nil when no stream is
// attached.
func NewHandler(repo store.Repository, engine *session.Manager, events Publisher) *Handler {
	return &Handler{
		repo:   repo,
		engine: engine,
		events: events,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
