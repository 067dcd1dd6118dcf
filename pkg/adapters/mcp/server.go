package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
)

// AgentURI is the resource exposing the active agent definition.
const AgentURI = "parley://agent"

// TurnArgs are the arguments of the process_turn and match tools.
type TurnArgs struct {
	SessionID   string         `json:"session_id"`
	Text        string         `json:"text,omitempty"`
	Intent      string         `json:"intent,omitempty"`
	Event       string         `json:"event,omitempty"`
	DTMF        string         `json:"dtmf,omitempty"`
	Language    string         `json:"language,omitempty"`
	CurrentPage string         `json:"current_page,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// SessionArgs identify a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// MatchResponse lists candidate matches, best first.
type MatchResponse struct {
	Matches []domain.Match `json:"matches" jsonschema_description:"Candidate matches, best first"`
}

// Server wraps the turn engine and exposes it as an MCP Server.
type Server struct {
	engine    ports.TurnEngine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.TurnEngine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("parley-mcp", strings.TrimSpace(parley.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for in-process transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Handle("/sse", sseServer.SSEHandler())
	r.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func turnToolOptions(description string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
		mcp.WithString("text", mcp.Description("Free text typed or spoken by the user")),
		mcp.WithString("intent", mcp.Description("Intent id to trigger directly, bypassing matching")),
		mcp.WithString("event", mcp.Description("Event name to raise")),
		mcp.WithString("dtmf", mcp.Description("DTMF digits")),
		mcp.WithString("language", mcp.Description("Language code; defaults to the agent's")),
		mcp.WithString("current_page", mcp.Description("Reposition the session on this page first")),
		mcp.WithObject("parameters", mcp.Description("Session parameters to merge before the turn; null clears")),
	}
}

func (s *Server) registerTools() {
	// TOOL: process_turn
	s.mcpServer.AddTool(mcp.NewTool("process_turn", append(
		turnToolOptions("Send one user turn to the agent and return its responses."),
		mcp.WithOutputSchema[domain.TurnResult](),
	)...), mcp.NewStructuredToolHandler(s.handleProcessTurn))

	// TOOL: match
	s.mcpServer.AddTool(mcp.NewTool("match", append(
		turnToolOptions("Classify the input without advancing the session."),
		mcp.WithOutputSchema[MatchResponse](),
	)...), mcp.NewStructuredToolHandler(s.handleMatch))

	// TOOL: get_session
	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Return the stored state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
		mcp.WithOutputSchema[domain.State](),
	), mcp.NewStructuredToolHandler(s.handleGetSession))

	// TOOL: reset_session
	s.mcpServer.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Discard a session; the next turn starts over."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("session_id", "")
		if id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		if err := s.engine.ResetSession(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
		}
		return mcp.NewToolResultText("session " + id + " reset"), nil
	})

	// TOOL: inspect_agent
	s.mcpServer.AddTool(mcp.NewTool("inspect_agent",
		mcp.WithDescription("Get the active agent definition for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.agentJSON()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) request(args TurnArgs) (domain.TurnRequest, error) {
	if args.SessionID == "" {
		return domain.TurnRequest{}, errors.New("session_id is required")
	}
	text, err := runner.SanitizeInput(args.Text)
	if err != nil {
		s.logger.Warn("MCP: input rejected", "err", err, "size", len(args.Text))
		return domain.TurnRequest{}, fmt.Errorf("input rejected: %w", err)
	}
	return domain.TurnRequest{
		SessionID: args.SessionID,
		Input: domain.TurnInput{
			Text:     text,
			Intent:   args.Intent,
			Event:    args.Event,
			DTMF:     args.DTMF,
			Language: args.Language,
		},
		CurrentPage: args.CurrentPage,
		Parameters:  args.Parameters,
	}, nil
}

func (s *Server) handleProcessTurn(ctx context.Context, _ mcp.CallToolRequest, args TurnArgs) (domain.TurnResult, error) {
	req, err := s.request(args)
	if err != nil {
		return domain.TurnResult{}, err
	}
	res, err := s.engine.ProcessTurn(ctx, req)
	if err != nil && res == nil {
		return domain.TurnResult{}, fmt.Errorf("turn failed: %w", err)
	}
	if err != nil {
		// The fallback result is still a valid answer for the caller.
		s.logger.Error("MCP: turn failed", "session_id", req.SessionID, "err", err)
	}
	return *res, nil
}

func (s *Server) handleMatch(ctx context.Context, _ mcp.CallToolRequest, args TurnArgs) (MatchResponse, error) {
	req, err := s.request(args)
	if err != nil {
		return MatchResponse{}, err
	}
	matches, err := s.engine.MatchOnly(ctx, req)
	if err != nil && len(matches) == 0 {
		return MatchResponse{}, fmt.Errorf("match failed: %w", err)
	}
	return MatchResponse{Matches: matches}, nil
}

func (s *Server) handleGetSession(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (domain.State, error) {
	st, err := s.engine.Session(ctx, args.SessionID)
	if err != nil {
		return domain.State{}, err
	}
	return *st, nil
}

func (s *Server) agentJSON() ([]byte, error) {
	agent, err := s.engine.Inspect()
	if err != nil {
		return nil, err
	}
	return json.Marshal(agent)
}

func (s *Server) registerResources() {
	// EXPOSE: parley://agent
	s.mcpServer.AddResource(mcp.NewResource(AgentURI, "Active Agent Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.agentJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to inspect agent: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      AgentURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
