package web

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithVersion sets the application version string reported by the API.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// WithRetrySetup installs the background retry hook for entries whose
// device was unreachable at create time. The daemon passes its
// setup-with-backoff loop here; without it such entries stay inactive
// until a manual retry.
func WithRetrySetup(fn func(entry *store.Entry)) ServerOption {
	return func(s *Server) {
		s.retrySetup = fn
	}
}

// Server is the HTTP config-flow API: it manages config entries and streams
// integration events over WebSocket.
type Server struct {
	manager        *integration.Manager
	store          store.Store
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	version        string
	retrySetup     func(entry *store.Entry)
	wg             sync.WaitGroup
	unsubEvents    func()
}

// EntryView is the API view of a config entry plus its live status.
type EntryView struct {
	*store.Entry
	Status string `json:"status"`
}

// NewServer creates the API server.
func NewServer(manager *integration.Manager, st store.Store, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	s := &Server{
		manager: manager,
		store:   st,
		logger:  logger.With("component", "web"),
		mux:     http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	// Subscribe to all integration events and broadcast via WebSocket
	s.unsubEvents = manager.Events().OnAll(func(event integration.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	return s, nil
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/entries", s.handleAPIListEntries)
	s.mux.HandleFunc("POST /api/entries", s.handleAPICreateEntry)
	s.mux.HandleFunc("GET /api/entries/{id}", s.handleAPIGetEntry)
	s.mux.HandleFunc("DELETE /api/entries/{id}", s.handleAPIDeleteEntry)
	s.mux.HandleFunc("POST /api/entries/{id}/retry", s.handleAPIRetryEntry)
	s.mux.HandleFunc("GET /api/device-types", s.handleAPIDeviceTypes)
	s.mux.HandleFunc("GET /api/status", s.handleAPIStatus)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if s.apiKey != "" {
		// Only require the API key for /api/ endpoints; browsers cannot send
		// custom headers on WS upgrade.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write json", "err", err)
	}
}

func (s *Server) entryView(entry *store.Entry) EntryView {
	return EntryView{Entry: entry, Status: s.manager.Status(entry.ID)}
}
