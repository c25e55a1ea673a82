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

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/bower"
	"github.com/aretw0/bower/pkg/domain"
	"github.com/aretw0/bower/pkg/session"
)

// Host is the slice of the bower Host the MCP tools drive.
type Host interface {
	CreateSession(ctx context.Context, id string) (*session.Session, error)
	GetSession(id string) (*session.Session, error)
	Sessions() []session.Info
	RequestExpiration(id string) error
	CleanupSessions(ctx context.Context) (int, error)
}

// Server exposes session administration as MCP tools.
type Server struct {
	host      Host
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server over the host.
func NewServer(host Host) *Server {
	s := &Server{
		host:      host,
		mcpServer: server.NewMCPServer("bower-admin", strings.TrimSpace(bower.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

// sessionInfo is the JSON shape of one session in tool results.
type sessionInfo struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title,omitempty"`
	Connections         int     `json:"connections"`
	IdleSeconds         float64 `json:"idle_seconds"`
	ExpirationRequested bool    `json:"expiration_requested"`
	Revision            int64   `json:"revision"`
}

func toSessionInfo(info session.Info) sessionInfo {
	return sessionInfo{
		ID:                  info.ID,
		Title:               info.Title,
		Connections:         info.Connections,
		IdleSeconds:         info.IdleFor.Seconds(),
		ExpirationRequested: info.ExpirationRequested,
		Revision:            info.DocumentRevision,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List all live sessions with their connection counts and idle times."),
	), s.handleListSessions)

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the stats of a single session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID to look up")),
	), s.handleGetSession)

	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a session. Mints an ID when none is given; returns the existing session if the ID is already live."),
		mcp.WithString("session_id", mcp.Description("The session ID to create (optional)")),
	), s.handleCreateSession)

	s.mcpServer.AddTool(mcp.NewTool("expire_session",
		mcp.WithDescription("Mark a session for expiration. The next cleanup sweep discards it once its connections drop to zero."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The session ID to expire")),
	), s.handleExpireSession)

	s.mcpServer.AddTool(mcp.NewTool("run_cleanup",
		mcp.WithDescription("Run a cleanup sweep now and report how many sessions were discarded."),
	), s.handleRunCleanup)

	s.mcpServer.AddTool(mcp.NewTool("server_stats",
		mcp.WithDescription("Aggregate stats: session count, total connections, pending expirations."),
	), s.handleServerStats)
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.host.Sessions()
	out := make([]sessionInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSessionInfo(info))
	}
	return jsonResult(out), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.host.GetSession(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get session: %v", err)), nil
	}
	return jsonResult(toSessionInfo(sess.Info())), nil
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("session_id", "")
	if id == "" {
		id = session.GenerateID()
	}

	sess, err := s.host.CreateSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create session: %v", err)), nil
	}
	return jsonResult(toSessionInfo(sess.Info())), nil
}

func (s *Server) handleExpireSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.host.RequestExpiration(id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("session %q not found", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("expire session: %v", err)), nil
	}
	return jsonResult(map[string]string{"status": "expiration requested"}), nil
}

func (s *Server) handleRunCleanup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	discarded, err := s.host.CleanupSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cleanup: %v", err)), nil
	}
	return jsonResult(map[string]int{"discarded": discarded}), nil
}

func (s *Server) handleServerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.host.Sessions()

	stats := struct {
		Version             string `json:"version"`
		Sessions            int    `json:"sessions"`
		Connections         int    `json:"connections"`
		ExpirationRequested int    `json:"expiration_requested"`
	}{
		Version:  strings.TrimSpace(bower.Version),
		Sessions: len(infos),
	}
	for _, info := range infos {
		stats.Connections += info.Connections
		if info.ExpirationRequested {
			stats.ExpirationRequested++
		}
	}
	return jsonResult(stats), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("bower://sessions", "Live Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos := s.host.Sessions()
		out := make([]sessionInfo, 0, len(infos))
		for _, info := range infos {
			out = append(out, toSessionInfo(info))
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "bower://sessions",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
