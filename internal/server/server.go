// Package server exposes the chat agent over HTTP and WebSocket for
// `nao chat --serve`.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/getnao/nao-cli/internal/mode"
	"github.com/getnao/nao-cli/internal/session"
)

// Chatter answers a message within a named session.
type Chatter interface {
	ProcessDirect(ctx context.Context, key, input string) (string, error)
}

// Server is the chat HTTP API server.
type Server struct {
	addr    string
	token   string
	mode    mode.Mode
	version string
	agent   Chatter
	logger  *log.Logger
	lanes   *lanes

	// WebSocket
	wsConns map[*wsConn]bool
	wsMu    sync.Mutex

	// Load stats
	activeRequests atomic.Int64
	totalRequests  atomic.Int64
	startTime      time.Time

	mux *http.ServeMux
	srv *http.Server
}

// Config configures the Server.
type Config struct {
	Host    string
	Port    int
	Token   string
	Mode    mode.Mode
	Version string
	Agent   Chatter
	Logger  *log.Logger
}

// New creates a new chat server.
func New(cfg Config) *Server {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{
		addr:      net.JoinHostPort(host, fmt.Sprint(cfg.Port)),
		token:     cfg.Token,
		mode:      cfg.Mode,
		version:   cfg.Version,
		agent:     cfg.Agent,
		logger:    logger,
		lanes:     newLanes(),
		wsConns:   make(map[*wsConn]bool),
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/chat", s.withAuth(s.handleChat))
	s.mux.HandleFunc("/ws", s.withAuth(s.handleWS))
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("chat server listening", "http", "http://"+ln.Addr().String(), "ws", "ws://"+ln.Addr().String()+"/ws")

	go s.heartbeatLoop(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.closeAllWS()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", "err", err)
		}
	}()

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

// --- Auth middleware ---

func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+s.token && r.URL.Query().Get("token") != s.token {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		handler(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":         "ok",
		"mode":           s.mode.String(),
		"version":        s.version,
		"uptime":         int(time.Since(s.startTime).Seconds()),
		"activeRequests": s.activeRequests.Load(),
		"totalRequests":  s.totalRequests.Load(),
	})
}

// chatRequest is the JSON body for /api/chat.
type chatRequest struct {
	Message string `json:"message"`
	Session string `json:"session"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, "message is required", http.StatusBadRequest)
		return
	}

	reply, err := s.chat(r.Context(), req.Session, req.Message)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"reply": reply})
}

// chat runs one exchange. Exchanges on the same session are serialized.
func (s *Server) chat(ctx context.Context, key, message string) (string, error) {
	if s.agent == nil {
		return "", errors.New("no agent configured")
	}
	if key == "" {
		key = "api:" + session.DefaultKey
	}

	s.activeRequests.Add(1)
	defer func() {
		s.activeRequests.Add(-1)
		s.totalRequests.Add(1)
	}()

	unlock, err := s.lanes.acquire(ctx, key)
	if err != nil {
		return "", err
	}
	defer unlock()

	start := time.Now()
	reply, err := s.agent.ProcessDirect(ctx, key, message)
	if err != nil {
		s.logger.Warn("chat failed", "session", key, "err", err)
		return "", err
	}
	s.logger.Debug("chat answered", "session", key, "elapsed", time.Since(start))
	return reply, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
