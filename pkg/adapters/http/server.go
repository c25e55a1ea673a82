package http

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

	"github.com/aretw0/bower"
	"github.com/aretw0/bower/pkg/domain"
	"github.com/aretw0/bower/pkg/session"
)

// Host is the slice of the bower Host the admin server drives.
type Host interface {
	CreateSession(ctx context.Context, id string) (*session.Session, error)
	GetSession(id string) (*session.Session, error)
	Sessions() []session.Info
	RequestExpiration(id string) error
	CleanupSessions(ctx context.Context) (int, error)
}

// Server exposes session administration over HTTP.
type Server struct {
	host    Host
	streams *StreamManager
	log     *slog.Logger
	metrics http.Handler
}

type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStreams attaches an externally owned StreamManager, letting the caller
// wire its Events() into the Host before the server exists.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.streams = sm
		}
	}
}

// WithMetrics mounts the given handler at GET /metrics, typically
// promhttp.Handler().
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer creates an admin server for the host.
func NewServer(host Host, opts ...Option) *Server {
	s := &Server{
		host: host,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager()
	}
	return s
}

// Streams returns the server's event fan-out.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Handler builds the chi router for the admin surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLog)

	r.Get("/healthz", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/sessions", s.listSessions)
	r.Post("/sessions", s.createSession)
	r.Get("/sessions/{id}", s.getSession)
	r.Delete("/sessions/{id}", s.expireSession)
	r.Post("/cleanup", s.runCleanup)
	r.Get("/events", s.subscribeEvents)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

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

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start),
		)
	})
}

// sessionJSON is the wire shape of one session's stats.
type sessionJSON struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title,omitempty"`
	Connections         int     `json:"connections"`
	IdleSeconds         float64 `json:"idle_seconds"`
	ExpirationRequested bool    `json:"expiration_requested"`
	Revision            int64   `json:"revision"`
}

func toSessionJSON(info session.Info) sessionJSON {
	return sessionJSON{
		ID:                  info.ID,
		Title:               info.Title,
		Connections:         info.Connections,
		IdleSeconds:         info.IdleFor.Seconds(),
		ExpirationRequested: info.ExpirationRequested,
		Revision:            info.DocumentRevision,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("admin response encode failed", "error", err)
	}
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "bower-admin",
		"version": strings.TrimSpace(bower.Version),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.host.Sessions()
	out := make([]sessionJSON, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSessionJSON(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.host.GetSession(id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("get session: %v", err), http.StatusInternalServerError)
		s.log.Error("admin get session failed", "session_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionJSON(sess.Info()))
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			s.log.Warn("admin create session: invalid body", "error", err)
			return
		}
	}
	if body.ID == "" {
		body.ID = session.GenerateID()
	}

	sess, err := s.host.CreateSession(r.Context(), body.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("create session: %v", err), http.StatusInternalServerError)
		s.log.Error("admin create session failed", "session_id", body.ID, "error", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionJSON(sess.Info()))
}

func (s *Server) expireSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.host.RequestExpiration(id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("expire session: %v", err), http.StatusInternalServerError)
		s.log.Error("admin expire session failed", "session_id", id, "error", err)
		return
	}

	// The discard itself happens on the next cleanup sweep.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "expiration requested"})
}

func (s *Server) runCleanup(w http.ResponseWriter, r *http.Request) {
	discarded, err := s.host.CleanupSessions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("cleanup: %v", err), http.StatusInternalServerError)
		s.log.Error("admin cleanup failed", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"discarded": discarded})
}

// subscribeEvents handles the GET /events request (SSE). An optional
// ?event=a,b filter keeps only the named event types.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		s.log.Error("admin sse: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var filter []string
	if raw := r.URL.Query().Get("event"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			filter = append(filter, strings.TrimSpace(f))
		}
	}

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("admin sse client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(filter) > 0 && !matchesFilter(msg, filter) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesFilter(msg string, filter []string) bool {
	var payload struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		return true
	}
	for _, f := range filter {
		if payload.Event == f {
			return true
		}
	}
	return false
}
