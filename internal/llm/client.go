// Package llm provides the HTTP client for the external session API.
//
// The external API retains conversation state server-side: create opens a
// session from a full context blob, continue appends one message to an
// existing session. Both calls may rotate the session handle.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSessionAPI wraps every create/continue failure so the continuity
// manager can classify external-API errors without inspecting transport
// details.
var ErrSessionAPI = errors.New("session api error")

// SessionResult is the outcome of one session call.
type SessionResult struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
}

// Client is the external session API consumed by the continuity manager.
type Client interface {
	// CreateSession opens a new server-side session seeded with the full
	// context text and returns its handle plus the first model output.
	CreateSession(ctx context.Context, input string) (*SessionResult, error)

	// ContinueSession appends input to an existing session. The returned
	// handle may differ from the one passed in.
	ContinueSession(ctx context.Context, sessionID, input string) (*SessionResult, error)
}

// Config holds HTTP client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// HTTPClient implements Client against a JSON-over-HTTP session API.
type HTTPClient struct {
	cfg    Config
	client *http.Client
}

// NewHTTPClient creates a session API client. The request timeout lives
// here, not in the callers.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("session api base URL is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

type sessionRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

// CreateSession opens a new session seeded with the full context text.
func (c *HTTPClient) CreateSession(ctx context.Context, input string) (*SessionResult, error) {
	return c.post(ctx, "/v1/sessions", sessionRequest{Model: c.cfg.Model, Input: input})
}

// ContinueSession appends input to an existing session.
func (c *HTTPClient) ContinueSession(ctx context.Context, sessionID, input string) (*SessionResult, error) {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	return c.post(ctx, path, sessionRequest{Input: input})
}

func (c *HTTPClient) post(ctx context.Context, path string, payload sessionRequest) (*SessionResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrSessionAPI, err)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrSessionAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionAPI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrSessionAPI, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result SessionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrSessionAPI, err)
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("%w: response missing session_id", ErrSessionAPI)
	}
	return &result, nil
}
