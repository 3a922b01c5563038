package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/identity"
	"github.com/akulov/convopilot/internal/llm"
	"github.com/akulov/convopilot/internal/session"
	"github.com/akulov/convopilot/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TurnEvent is the JSON event broadcast to operator UIs after every
// completed turn.
type TurnEvent struct {
	TurnID     string `json:"turn_id"`
	TargetID   int64  `json:"target_id"`
	SubTarget  string `json:"sub_target,omitempty"`
	SessionID  string `json:"session_id"`
	Output     string `json:"output"`
	NewSession bool   `json:"new_session"`
	Timestamp  int64  `json:"ts"`
}

type turnRequest struct {
	TargetID      int64  `json:"target_id"`
	SubTarget     string `json:"sub_target,omitempty"`
	CrossPlatform bool   `json:"cross_platform,omitempty"`
	Message       string `json:"message"`
	MessageID     int64  `json:"message_id,omitempty"`
}

type turnResponse struct {
	TurnID     string `json:"turn_id"`
	SessionID  string `json:"session_id"`
	Output     string `json:"output"`
	NewSession bool   `json:"new_session"`
}

// RegisterRoutes registers the conversation endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/turn", h.Turn)
	r.Get("/api/sessions", h.Sessions)
	r.Delete("/api/targets/{targetID}/session", h.EndSession)
	r.Get("/api/health", h.Health)
}

// Turn runs one conversational turn.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetID <= 0 {
		Error(w, http.StatusBadRequest, "target_id is required")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	operatorID := identity.OperatorIDFromContext(r.Context())
	result, err := h.engine.Turn(r.Context(), session.TurnRequest{
		OperatorID:    operatorID,
		TargetID:      req.TargetID,
		SubTarget:     req.SubTarget,
		CrossPlatform: req.CrossPlatform,
		Message:       req.Message,
		MessageID:     req.MessageID,
	})
	if err != nil {
		slog.Error("turn failed", "operator_id", operatorID, "target_id", req.TargetID, "error", err)
		switch {
		case errors.Is(err, store.ErrStorageUnavailable):
			Error(w, http.StatusServiceUnavailable, "storage unavailable")
		case errors.Is(err, llm.ErrSessionAPI):
			Error(w, http.StatusBadGateway, "session api unavailable")
		default:
			Error(w, http.StatusInternalServerError, "turn failed")
		}
		return
	}

	turnID := uuid.New().String()
	if h.events != nil {
		h.events.Publish(TurnEvent{
			TurnID:     turnID,
			TargetID:   result.Key.TargetID,
			SubTarget:  result.Key.SubTarget,
			SessionID:  result.SessionID,
			Output:     result.Output,
			NewSession: result.NewSession,
			Timestamp:  time.Now().Unix(),
		})
	}

	JSON(w, http.StatusOK, turnResponse{
		TurnID:     turnID,
		SessionID:  result.SessionID,
		Output:     result.Output,
		NewSession: result.NewSession,
	})
}

// Sessions lists the live session states.
func (h *Handler) Sessions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": h.engine.States()})
}

// EndSession ends the conversation for one identity, clearing its session
// state.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "targetID"), 10, 64)
	if err != nil || targetID <= 0 {
		Error(w, http.StatusBadRequest, "invalid target id")
		return
	}

	key := domain.ConversationKey{
		TargetID:  targetID,
		SubTarget: r.URL.Query().Get("sub_target"),
	}
	if err := h.engine.End(r.Context(), key); err != nil {
		slog.Error("end session failed", "key", key.String(), "error", err)
		Error(w, http.StatusServiceUnavailable, "failed to end session")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// Health reports storage readiness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "storage unreachable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
