// Package session maintains continuity of external LLM sessions across
// turns.
//
// Storage is the source of truth: every mutation persists first and mirrors
// into the in-memory cache second. A crash between the two leaves the cache
// stale, which the storage fallback on cache miss resolves.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/akulov/convopilot/internal/assembly"
	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/llm"
	"github.com/akulov/convopilot/internal/store"
)

// ContextBuilder assembles the full context blob for a first turn.
type ContextBuilder interface {
	Build(ctx context.Context, req assembly.ResolveRequest) (*assembly.BuiltContext, error)
}

// TurnRequest is one inbound conversational turn.
type TurnRequest struct {
	OperatorID    string
	TargetID      int64
	SubTarget     string
	CrossPlatform bool

	// Message is the new inbound text for this turn.
	Message string

	// MessageID is the platform-native id of the inbound message; persisted
	// as the conversation's high-water mark.
	MessageID int64
}

// Key returns the conversation identity for the request. Cross-platform
// turns collapse onto the aggregate key.
func (r TurnRequest) Key() domain.ConversationKey {
	if r.CrossPlatform {
		return domain.ConversationKey{TargetID: r.TargetID}
	}
	return domain.ConversationKey{TargetID: r.TargetID, SubTarget: r.SubTarget}
}

// TurnResult is the outcome of one successful turn.
type TurnResult struct {
	Key        domain.ConversationKey `json:"key"`
	SessionID  string                 `json:"session_id"`
	Output     string                 `json:"output"`
	NewSession bool                   `json:"new_session"`
}

// Manager owns the conversation-identity to session-handle mapping. At most
// one live session exists per identity; turns for one identity are
// serialized through a per-key lock.
type Manager struct {
	repo    store.Repository
	client  llm.Client
	builder ContextBuilder
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[domain.ConversationKey]domain.SessionState
	locks map[domain.ConversationKey]*sync.Mutex
}

// NewManager creates a continuity manager.
func NewManager(repo store.Repository, client llm.Client, builder ContextBuilder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:    repo,
		client:  client,
		builder: builder,
		logger:  logger,
		cache:   make(map[domain.ConversationKey]domain.SessionState),
		locks:   make(map[domain.ConversationKey]*sync.Mutex),
	}
}

// Warm rebuilds the cache from persisted state. Called once at process
// start; a cache miss at call time still falls back to storage, so warming
// is an optimization, not a correctness requirement.
func (m *Manager) Warm(ctx context.Context) error {
	states, err := m.repo.ListSessionStates(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, st := range states {
		m.cache[st.Key] = st
	}
	m.mu.Unlock()

	m.logger.Info("session cache warmed", "sessions", len(states))
	return nil
}

// Turn processes one inbound turn: first turns build full context and open
// a new external session, subsequent turns continue the existing one. A
// failed turn commits nothing; the prior state stays valid for a retry.
func (m *Manager) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	key := req.Key()

	unlock := m.lockKey(key)
	defer unlock()

	state, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return m.firstTurn(ctx, key, req)
	}
	return m.nextTurn(ctx, key, *state, req)
}

func (m *Manager) firstTurn(ctx context.Context, key domain.ConversationKey, req TurnRequest) (*TurnResult, error) {
	built, err := m.builder.Build(ctx, assembly.ResolveRequest{
		OperatorID:    req.OperatorID,
		TargetID:      req.TargetID,
		SubTarget:     req.SubTarget,
		CrossPlatform: req.CrossPlatform,
	})
	if err != nil {
		return nil, err
	}

	input := built.Text
	if req.Message != "" {
		input += "\n=== NEW MESSAGE ===\n" + req.Message + "\n"
	}

	res, err := m.client.CreateSession(ctx, input)
	if err != nil {
		return nil, err
	}

	state := domain.SessionState{Key: key, Handle: res.SessionID, LastMessageID: req.MessageID}
	if err := m.repo.PutSessionState(ctx, &state); err != nil {
		// The external session may be orphaned; its own expiry reclaims it.
		return nil, err
	}
	m.mirror(state)

	m.logger.Info("session opened", "key", key.String(), "handle", res.SessionID, "dialogs", len(built.DialogIDs))
	return &TurnResult{Key: key, SessionID: res.SessionID, Output: res.Output, NewSession: true}, nil
}

func (m *Manager) nextTurn(ctx context.Context, key domain.ConversationKey, state domain.SessionState, req TurnRequest) (*TurnResult, error) {
	res, err := m.client.ContinueSession(ctx, state.Handle, req.Message)
	if err != nil {
		return nil, err
	}

	// The external API may rotate handles; persist whatever it returned.
	state.Handle = res.SessionID
	state.LastMessageID = req.MessageID
	if err := m.repo.PutSessionState(ctx, &state); err != nil {
		return nil, err
	}
	m.mirror(state)

	return &TurnResult{Key: key, SessionID: res.SessionID, Output: res.Output}, nil
}

// End clears the conversation's session state, returning the identity to
// uninitialized. Operator action; sessions are never ended automatically.
func (m *Manager) End(ctx context.Context, key domain.ConversationKey) error {
	unlock := m.lockKey(key)
	defer unlock()

	if err := m.repo.DeleteSessionState(ctx, key); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()

	m.logger.Info("session ended", "key", key.String())
	return nil
}

// States returns a snapshot of the cached session states.
func (m *Manager) States() []domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]domain.SessionState, 0, len(m.cache))
	for _, st := range m.cache {
		states = append(states, st)
	}
	return states
}

// lookup consults the cache first and falls back to storage on miss.
func (m *Manager) lookup(ctx context.Context, key domain.ConversationKey) (*domain.SessionState, error) {
	m.mu.Lock()
	st, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return &st, nil
	}
	return m.repo.GetSessionState(ctx, key)
}

func (m *Manager) mirror(state domain.SessionState) {
	m.mu.Lock()
	m.cache[state.Key] = state
	m.mu.Unlock()
}

// lockKey serializes turn processing per conversation identity. Without it
// two concurrent first turns could open two external sessions for one
// identity.
func (m *Manager) lockKey(key domain.ConversationKey) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
