package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

// maxValueSize bounds a PUT body.
const maxValueSize = 1 << 20

// NodeView is the read-only side of a node the API exposes.
type NodeView interface {
	Snapshot() *chord.Snapshot
	Stats() chord.StatsSnapshot
}

// KeyClient stores and loads keys through the ring.
type KeyClient interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	wsHub      *WebSocketHub
	node       NodeView
	keys       KeyClient
	logger     *pkg.Logger
	port       int
}

// Config holds the HTTP server configuration.
type Config struct {
	HTTPPort int
}

// NewServer creates a new HTTP API server.
func NewServer(cfg *Config, node NodeView, keys KeyClient, logger *pkg.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if keys == nil {
		return nil, fmt.Errorf("key client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Server{
		logger: logger.WithFields(pkg.Fields{"component": "http_api"}),
		wsHub:  NewWebSocketHub(logger),
		node:   node,
		keys:   keys,
		port:   cfg.HTTPPort,
	}, nil
}

// Hub returns the WebSocket hub; register it as the node's broadcaster.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/node", s.nodeHandler)
	mux.HandleFunc("GET /api/stats", s.statsHandler)
	mux.HandleFunc("PUT /api/keys/{key}", s.putKeyHandler)
	mux.HandleFunc("GET /api/keys/{key}", s.getKeyHandler)

	// WebSocket endpoint for live updates
	mux.HandleFunc("GET /api/ws", s.wsHub.HandleWebSocket)

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.wsHub.Start()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().
		Int("port", s.port).
		Msg("Starting HTTP API server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping HTTP API server")

	if s.wsHub != nil {
		s.wsHub.Stop()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info().Msg("HTTP API server stopped")
	return nil
}

// healthHandler handles health check requests.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) nodeHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.node.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Stats())
}

func (s *Server) putKeyHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	err = s.keys.Put(r.Context(), key, value)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "status": "stored"})
	case errors.Is(err, pkg.ErrKeyExists):
		writeError(w, http.StatusConflict, "key already exists")
	default:
		s.writeClientError(w, key, err)
	}
}

func (s *Server) getKeyHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := s.keys.Get(r.Context(), key)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(value)
	case errors.Is(err, pkg.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "key not found")
	default:
		s.writeClientError(w, key, err)
	}
}

func (s *Server) writeClientError(w http.ResponseWriter, key string, err error) {
	if errors.Is(err, pkg.ErrTimeout) {
		writeError(w, http.StatusGatewayTimeout, "ring did not answer in time")
		return
	}
	s.logger.Warn().Err(err).Str("key", key).Msg("Key request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}
