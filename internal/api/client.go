// internal/api/client.go
// HTTP client for the relay-chain discussion backend.
// All requests carry the bearer credential; streaming endpoints return the
// raw response body for the stream reader to consume.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// SessionIDHeader carries the session identifier on streaming responses.
const SessionIDHeader = "X-Session-ID"

// maxErrorBody limits how much of an error response we keep for messages.
const maxErrorBody = 2048

// Client talks to one backend instance.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         *slog.Logger
	requestTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRequestTimeout bounds non-streaming requests. Streaming endpoints
// are unaffected; they stay open for the life of a discussion round.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// New creates a client for the backend at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// No overall timeout: streaming responses stay open for the
			// lifetime of a discussion round. Per-request deadlines come
			// from the caller's context.
			Timeout: 0,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamHandle is an open streaming response.
type StreamHandle struct {
	SessionID string
	Body      io.ReadCloser
}

// StartDiscussion opens the initial discussion stream for a topic and group.
// The returned handle's SessionID may be empty when the backend embeds the
// identifier in the event stream instead of the response header.
func (c *Client) StartDiscussion(ctx context.Context, topic, groupID string) (*StreamHandle, error) {
	body := map[string]string{
		"topic":    topic,
		"group_id": groupID,
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/discussions", body)
	if err != nil {
		return nil, err
	}
	return &StreamHandle{
		SessionID: resp.Header.Get(SessionIDHeader),
		Body:      resp.Body,
	}, nil
}

// ContinueDiscussion opens a continuation stream for an existing session.
func (c *Client) ContinueDiscussion(ctx context.Context, sessionID string) (*StreamHandle, error) {
	path := fmt.Sprintf("/api/discussions/%s/continue", url.PathEscape(sessionID))
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	return &StreamHandle{
		SessionID: resp.Header.Get(SessionIDHeader),
		Body:      resp.Body,
	}, nil
}

// DiscussionStatus fetches the backend's view of a session.
func (c *Client) DiscussionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	path := fmt.Sprintf("/api/discussions/%s/status", url.PathEscape(sessionID))
	var st SessionStatus
	if err := c.getJSON(ctx, path, &st); err != nil {
		return nil, err
	}
	if st.SessionID == "" {
		st.SessionID = sessionID
	}
	return &st, nil
}

// SubmitHumanInput delivers a human message for the named agent.
// A 404 maps to ErrSessionGone: the session is unrecoverable.
func (c *Client) SubmitHumanInput(ctx context.Context, sessionID, agentName, message string) error {
	path := fmt.Sprintf("/api/discussions/%s/input", url.PathEscape(sessionID))
	body := map[string]string{
		"agent_name": agentName,
		"message":    message,
	}
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("submit human input: %w", ErrSessionGone)
		}
		return err
	}
	resp.Body.Close()
	return nil
}

// HumanRoles lists the human-controlled roles participating in a session.
func (c *Client) HumanRoles(ctx context.Context, sessionID string) ([]HumanRole, error) {
	path := fmt.Sprintf("/api/discussions/%s/human_roles", url.PathEscape(sessionID))
	var roles []HumanRole
	if err := c.getJSON(ctx, path, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ActiveSessions lists sessions the backend still considers live.
func (c *Client) ActiveSessions(ctx context.Context) ([]SessionStatus, error) {
	var sessions []SessionStatus
	if err := c.getJSON(ctx, "/api/discussions/active", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Summary fetches the final summary of an ended session, if one exists.
func (c *Client) Summary(ctx context.Context, sessionID string) (string, error) {
	path := fmt.Sprintf("/api/discussions/%s/summary", url.PathEscape(sessionID))
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// ListGroups returns the configured discussion groups.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.getJSON(ctx, "/api/groups", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ListRoles returns the configured roles.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := c.getJSON(ctx, "/api/roles", &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListModels returns the registered models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	if err := c.getJSON(ctx, "/api/models", &models); err != nil {
		return nil, err
	}
	return models, nil
}

// ListRelayConfigs returns the configured relay chains.
func (c *Client) ListRelayConfigs(ctx context.Context) ([]RelayConfig, error) {
	var configs []RelayConfig
	if err := c.getJSON(ctx, "/api/configurations", &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// do issues a request and returns the response with the body still open.
// Non-2xx responses are drained and returned as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		c.logger.Warn("backend request failed",
			"method", method, "path", path,
			"status", resp.StatusCode, "elapsed", time.Since(start))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	c.logger.Debug("backend request",
		"method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

// requestCtx applies the request timeout for non-streaming calls.
func (c *Client) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// getJSON issues a GET and decodes the response body into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
