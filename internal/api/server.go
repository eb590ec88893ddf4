// Package api provides the HTTP API for observing and driving an episode.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
	"github.com/talgya/chase/internal/persistence"
	"github.com/talgya/chase/internal/render"
)

// ErrRunnerActive is returned by the admin endpoints while a local Runner
// drives the episode.
var ErrRunnerActive = errors.New("episode is driven by a local runner")

// Server serves one Episode over HTTP.
type Server struct {
	Episode      *engine.Episode
	DB           *persistence.DB // optional; run endpoints return 503 without it
	Hub          *Hub
	Port         int
	AdminKey     string // Bearer token for POST endpoints. Empty = POST disabled.
	StepsPerHour int    // per client IP; 0 = unlimited

	srv  *http.Server
	busy atomic.Bool
}

// SetRunnerActive marks the episode as owned by a local Runner. While set,
// reset and step requests are refused with 409 and observation stays open.
func (s *Server) SetRunnerActive(active bool) {
	s.busy.Store(active)
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	if s.Hub == nil {
		s.Hub = NewHub()
	}
	var stepLimiter *RateLimiter
	if s.StepsPerHour > 0 {
		stepLimiter = NewRateLimiter(s.StepsPerHour, time.Hour)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/render", s.handleRender)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}/trace.csv", s.handleTrace)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.exclusive(s.handleReset)))
	mux.HandleFunc("/api/v1/step", s.adminOnly(RateLimitMiddleware(stepLimiter, s.exclusive(s.handleStep))))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "trace_store", s.DB != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CHASE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Episode.Status()
	writeJSON(w, map[string]any{
		"initialized":       st.Initialized,
		"seed":              st.Seed,
		"steps":             st.Steps,
		"terminated":        st.Terminated,
		"adversaries_alive": st.AdversariesAlive,
		"arena_size":        s.Episode.Config().Size,
		"stream_clients":    s.Hub.Count(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Episode.CurrentState()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, state)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	text, err := render.Current(s.Episode)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, text)
}

// ResetRequest is the body of POST /api/v1/reset. An empty body resets with
// the default seed.
type ResetRequest struct {
	Seed *int64 `json:"seed,omitempty"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	seed := engine.DefaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	state, err := s.Episode.Reset(seed)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("episode reset via API", "seed", seed)
	s.Hub.Publish(resetMessage(nil, seed, state))
	writeJSON(w, state)
}

// StepRequest is the body of POST /api/v1/step. Action is required.
type StepRequest struct {
	Action  *engine.Action `json:"action"`
	Project bool           `json:"project"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Action == nil {
		writeError(w, fmt.Errorf("%w: missing action", engine.ErrInvalidAction))
		return
	}
	a := *req.Action

	out, err := s.Episode.Step(a, req.Project)
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.Project {
		s.Hub.Publish(stepMessage(nil, a, out))
	}
	writeJSON(w, out)
}

// exclusive refuses requests that would change the episode while a local
// Runner owns it.
func (s *Server) exclusive(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.busy.Load() {
			writeError(w, ErrRunnerActive)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "trace store disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be 1-500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "trace store disabled", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")

	var buf bytes.Buffer
	if err := s.DB.ExportCSV(&buf, id); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "chase-"+id+".csv"))
	buf.WriteTo(w)
}

// decodeBody decodes JSON into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUninitializedEpisode), errors.Is(err, engine.ErrEpisodeTerminated),
		errors.Is(err, ErrRunnerActive):
		return http.StatusConflict
	case errors.Is(err, arena.ErrCapacityExceeded), errors.Is(err, arena.ErrInvalidConfig),
		errors.Is(err, arena.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, persistence.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("API request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
