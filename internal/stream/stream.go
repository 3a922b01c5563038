// Package stream fans out completed turn events to connected operator UIs
// over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/akulov/convopilot/internal/api"
	"github.com/coder/websocket"
)

const (
	// clientQueueSize bounds the per-client event queue; slow consumers
	// drop events rather than stalling turn handling.
	clientQueueSize = 32

	writeTimeout = 10 * time.Second
)

type client struct {
	events chan api.TurnEvent
}

// Handler accepts WebSocket subscribers and broadcasts turn events to them.
type Handler struct {
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHandler creates a suggestion-stream handler.
func NewHandler(allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
		clients:       make(map[*client]struct{}),
	}
}

// Publish queues the event for every connected client. Never blocks: a
// client with a full queue misses the event.
func (h *Handler) Publish(ev api.TurnEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.events <- ev:
		default:
			h.logger.Debug("dropping turn event for slow stream client", "turn_id", ev.TurnID)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Handler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams turn events until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	c := &client{events: make(chan api.TurnEvent, clientQueueSize)}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain reads so close frames are processed; subscribers send nothing.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("failed to encode turn event", "error", err)
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				h.logger.Debug("stream write failed", "error", err)
				return
			}
		}
	}
}

func (h *Handler) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
