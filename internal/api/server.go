// Package api exposes the wallet matcher over HTTP and WebSocket:
// token search, holder search with ticker disambiguation, two-holding
// verification and a streaming search with per-page progress.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/observability"
)

// Server timeouts. Writes are allowed to run as long as a full holder scan.
const (
	ReadTimeout  = 15 * time.Second
	WriteTimeout = 5 * time.Minute
	IdleTimeout  = 60 * time.Second
)

// TokenDirectory lists the tokens trading under a ticker, most liquid first.
type TokenDirectory interface {
	SearchByTicker(ctx context.Context, ticker string) ([]*domain.TokenInfo, error)
}

// Server is the HTTP front end of the matcher.
type Server struct {
	matcher  *matcher.Matcher
	tokens   TokenDirectory
	backend  string
	logger   *log.Logger
	mux      *http.ServeMux
	server   *http.Server
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.Mutex
	searches int
	verifies int
	failures int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBackend names the holder ledger backend reported by /status.
func WithBackend(name string) Option {
	return func(s *Server) {
		s.backend = name
	}
}

// NewServer creates a server listening on addr with all routes registered.
func NewServer(addr string, m *matcher.Matcher, tokens TokenDirectory, opts ...Option) *Server {
	s := &Server{
		matcher: m,
		tokens:  tokens,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withRequestID(s.mux),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	s.registerRoutes()
	return s
}

// registerRoutes configures all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/tokens", s.instrument("tokens", s.handleTokens))
	s.mux.HandleFunc("/api/find", s.instrument("find", s.handleFind))
	s.mux.HandleFunc("/api/verify", s.instrument("verify", s.handleVerify))
	s.mux.HandleFunc("/ws/find", s.instrument("ws_find", s.handleWSFind))

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", observability.Handler())
}

// Handler returns the root handler, request ID middleware included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	Started        time.Time `json:"started"`
	Backend        string    `json:"backend"`
	Tolerance      float64   `json:"tolerance"`
	MaxHolderPages int       `json:"max_holder_pages"`
	PageSize       int       `json:"page_size"`
	Searches       int       `json:"searches"`
	Verifications  int       `json:"verifications"`
	Failures       int       `json:"failures"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.matcher.Config()

	s.mu.Lock()
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
		Started:        s.started,
		Backend:        s.backend,
		Tolerance:      cfg.Tolerance,
		MaxHolderPages: cfg.MaxHolderPages,
		PageSize:       cfg.PageSize,
		Searches:       s.searches,
		Verifications:  s.verifies,
		Failures:       s.failures,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) count(counter *int) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
