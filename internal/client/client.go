// Package client talks to a chasesim HTTP API. A Client satisfies
// engine.Env, so the local Runner and policies can play a remote episode.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
)

var (
	// ErrRateLimited is returned when the server answers 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrRunnerActive is returned when the server's episode is being played
	// by its own runner and refuses remote control.
	ErrRunnerActive = errors.New("episode is driven by a local runner")
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Initialized      bool  `json:"initialized"`
	Seed             int64 `json:"seed"`
	Steps            int   `json:"steps"`
	Terminated       bool  `json:"terminated"`
	AdversariesAlive int   `json:"adversaries_alive"`
	ArenaSize        int   `json:"arena_size"`
	StreamClients    int   `json:"stream_clients"`
}

// APIError is a non-200 response. It unwraps to the matching engine or
// arena error where the status code identifies one.
type APIError struct {
	Method, Path string
	StatusCode   int
	Body         string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		if strings.Contains(e.Body, engine.ErrInvalidAction.Error()) {
			return engine.ErrInvalidAction
		}
	case http.StatusConflict:
		if strings.Contains(e.Body, engine.ErrEpisodeTerminated.Error()) {
			return engine.ErrEpisodeTerminated
		}
		if strings.Contains(e.Body, ErrRunnerActive.Error()) {
			return ErrRunnerActive
		}
		return engine.ErrUninitializedEpisode
	case http.StatusUnprocessableEntity:
		if strings.Contains(e.Body, arena.ErrCapacityExceeded.Error()) {
			return arena.ErrCapacityExceeded
		}
		return arena.ErrInvalidConfig
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Client calls the observation and admin endpoints.
type Client struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

var _ engine.Env = (*Client)(nil)

// New creates a Client targeting the given API base URL with admin auth.
func New(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches GET /api/v1/status.
func (c *Client) Status() (Status, error) {
	var st Status
	err := c.do(http.MethodGet, "/api/v1/status", nil, &st)
	return st, err
}

// State fetches the canonical state.
func (c *Client) State() (arena.GameState, error) {
	var s arena.GameState
	err := c.do(http.MethodGet, "/api/v1/state", nil, &s)
	return s, err
}

// CurrentState is State under the name render.Source expects.
func (c *Client) CurrentState() (arena.GameState, error) {
	return c.State()
}

// Render fetches the text grid.
func (c *Client) Render() (string, error) {
	var sb strings.Builder
	if err := c.do(http.MethodGet, "/api/v1/render", nil, &sb); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Reset starts a new episode from seed.
func (c *Client) Reset(seed int64) (arena.GameState, error) {
	var s arena.GameState
	err := c.do(http.MethodPost, "/api/v1/reset", map[string]int64{"seed": seed}, &s)
	return s, err
}

// Step plays a on the server, or projects it.
func (c *Client) Step(a engine.Action, project bool) (engine.Outcome, error) {
	var out engine.Outcome
	body := map[string]any{"action": a, "project": project}
	err := c.do(http.MethodPost, "/api/v1/step", body, &out)
	return out, err
}

// Project asks the server what a would do.
func (c *Client) Project(a engine.Action) (engine.Outcome, error) {
	return c.Step(a, true)
}

// WaitReady polls the status endpoint with exponential backoff until it
// responds or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	maxBackoff := 30 * time.Second

	for {
		_, err := c.Status()
		if err == nil {
			slog.Info("chasesim API is ready", "url", c.BaseURL)
			return nil
		}
		slog.Info("chasesim not ready, retrying...", "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", c.BaseURL, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// do sends a request and decodes a JSON response into target, or copies the
// body when target is an io.Writer.
func (c *Client) do(method, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Authorization", "Bearer "+c.AdminKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(b)}
	}

	if w, ok := target.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
