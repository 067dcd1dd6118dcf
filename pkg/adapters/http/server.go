// Package http exposes a parley engine over a JSON HTTP API with server-sent events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
)

// Engine is the engine surface the server needs.
type Engine interface {
	ports.TurnEngine
	Watch(ctx context.Context) (<-chan string, error)
}

// Server serves the HTTP API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// TurnBody is the body of POST /sessions/{id}/turns and /match.
type TurnBody struct {
	Input       domain.TurnInput `json:"input"`
	CurrentPage string           `json:"current_page,omitempty"`
	Parameters  map[string]any   `json:"parameters,omitempty"`
}

// FulfillBody is the body of POST /sessions/{id}/fulfill.
type FulfillBody struct {
	TurnBody
	Match domain.Match `json:"match"`
}

// MatchResponse is returned by POST /sessions/{id}/match.
type MatchResponse struct {
	Matches []domain.Match `json:"matches"`
	Error   string         `json:"error,omitempty"`
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/agent", s.GetAgent)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Delete("/", s.DeleteSession)
		r.Post("/turns", s.ProcessTurn)
		r.Post("/match", s.Match)
		r.Post("/fulfill", s.Fulfill)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProcessTurn handles POST /sessions/{id}/turns.
func (s *Server) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r, &TurnBody{})
	if !ok {
		return
	}
	res, err := s.Engine.ProcessTurn(r.Context(), req)
	s.respondTurn(w, req, res, err)
}

// Match handles POST /sessions/{id}/match.
func (s *Server) Match(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r, &TurnBody{})
	if !ok {
		return
	}
	matches, err := s.Engine.MatchOnly(r.Context(), req)
	resp := MatchResponse{Matches: matches}
	if err != nil {
		if !errors.Is(err, domain.ErrMatcherUnavailable) || len(matches) == 0 {
			s.fail(w, "Match", err)
			return
		}
		resp.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Fulfill handles POST /sessions/{id}/fulfill.
func (s *Server) Fulfill(w http.ResponseWriter, r *http.Request) {
	body := &FulfillBody{}
	req, ok := s.decodeTurn(w, r, body)
	if !ok {
		return
	}
	if body.Match.Type == "" {
		http.Error(w, "Missing match", http.StatusBadRequest)
		return
	}
	res, err := s.Engine.FulfillMatch(r.Context(), req, body.Match)
	s.respondTurn(w, req, res, err)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.Engine.ResetSession(r.Context(), sessionID); err != nil {
		s.fail(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAgent handles GET /agent.
func (s *Server) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.Engine.Inspect()
	if err != nil {
		s.fail(w, "Inspect", err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if _, err := s.Engine.Inspect(); err != nil {
		status, code = "agent not loaded", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"app":     "parley-http",
		"version": strings.TrimSpace(parley.Version),
	}
	if agent, err := s.Engine.Inspect(); err == nil {
		resp["agent"] = agent.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeTurn(w http.ResponseWriter, r *http.Request, body any) (domain.TurnRequest, bool) {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		return domain.TurnRequest{}, false
	}

	var tb *TurnBody
	switch b := body.(type) {
	case *TurnBody:
		tb = b
	case *FulfillBody:
		tb = &b.TurnBody
	}

	// Sanitize Input (Global Policy)
	for _, field := range []*string{&tb.Input.Text, &tb.Input.DTMF} {
		if *field == "" {
			continue
		}
		clean, err := runner.SanitizeInput(*field)
		if err != nil {
			http.Error(w, "Invalid input: "+err.Error(), http.StatusBadRequest)
			s.logger.Warn("Input rejected", "err", err, "size", len(*field))
			return domain.TurnRequest{}, false
		}
		*field = clean
	}

	return domain.TurnRequest{
		SessionID:   chi.URLParam(r, "sessionID"),
		Input:       tb.Input,
		CurrentPage: tb.CurrentPage,
		Parameters:  tb.Parameters,
	}, true
}

// respondTurn writes the result. A fatal turn still answers 200 with the fallback
// result; the error is in its diagnostics.
func (s *Server) respondTurn(w http.ResponseWriter, req domain.TurnRequest, res *domain.TurnResult, err error) {
	if err != nil && res == nil {
		s.fail(w, "Turn", err)
		return
	}
	if err != nil {
		s.logger.Error("Turn failed", "session_id", req.SessionID, "err", err)
	} else {
		s.broadcast(req.SessionID, res)
	}
	s.writeJSON(w, http.StatusOK, res)
}

// broadcast publishes the turn's state change to session subscribers.
func (s *Server) broadcast(sessionID string, res *domain.TurnResult) {
	diff := &domain.StateDiff{SessionID: sessionID, Parameters: res.Diagnostics.ParameterDelta}
	if len(res.Diagnostics.Transitions) > 0 {
		diff.Flow = &res.Flow
		diff.Page = &res.Page
	}
	if res.Closed {
		diff.Closed = &res.Closed
	}
	if diff.IsEmpty() {
		return
	}
	if bytes, err := json.Marshal(diff); err == nil {
		s.Streams.Broadcast(sessionID, string(bytes))
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	http.Error(w, err.Error(), code)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPageNotFound), errors.Is(err, domain.ErrFlowNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAgentNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
