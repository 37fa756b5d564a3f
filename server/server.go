package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bosley/voxlog/journal"
	"github.com/bosley/voxlog/library"
	"github.com/bosley/voxlog/scribe"
	"github.com/bosley/voxlog/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const defaultAddr = "localhost:8444"

type Config struct {
	// HTTP server address
	Addr string

	// Certificate files for TLS; plain HTTP when empty
	CertFile string
	KeyFile  string

	// Bearer token required on every request when set
	Token string
}

// Lister is the read side of the interaction journal.
type Lister interface {
	List(ctx context.Context, limit int) ([]journal.Interaction, error)
}

// Server exposes the recording pipeline over HTTP and a websocket stream.
type Server struct {
	cfg      Config
	pipe     *session.Pipeline
	catalog  *library.Catalog
	journal  Lister
	hub      *hub
	upgrader websocket.Upgrader
	server   *http.Server
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func New(cfg Config, pipe *session.Pipeline, catalog *library.Catalog, journal Lister) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	s := &Server{
		cfg:     cfg,
		pipe:    pipe,
		catalog: catalog,
		journal: journal,
		hub:     newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	pipe.Scribe.OnResult(s.broadcastTranscript)
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			slog.Info("Serving HTTPS", "address", s.cfg.Addr)
			err = s.server.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			slog.Warn("Serving plain HTTP. This should not be used beyond localhost!", "address", s.cfg.Addr)
			err = s.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.authenticate)

	router.HandleFunc("/api/session", s.handleSnapshot).Methods("GET")
	router.HandleFunc("/api/session/start", s.handleStart).Methods("POST")
	router.HandleFunc("/api/session/stop", s.handleStop).Methods("POST")
	router.HandleFunc("/api/session/reset", s.handleReset).Methods("POST")
	router.HandleFunc("/api/session/save", s.handleSave).Methods("POST")
	router.HandleFunc("/api/recordings", s.handleRecordings).Methods("GET")
	router.HandleFunc("/api/interactions", s.handleInteractions).Methods("GET")
	router.HandleFunc("/ws/session", s.handleWebSocket)

	return router
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			slog.Warn("Invalid token received", "remoteAddr", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) broadcastTranscript(res scribe.Result) {
	payload := map[string]interface{}{
		"file":     res.File,
		"text":     res.Text,
		"complete": res.Complete,
	}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}

	data, err := json.Marshal(WebSocketMessage{
		Type:      "transcription",
		Timestamp: res.FinishedAt,
		Payload:   payload,
	})
	if err != nil {
		slog.Error("Failed to marshal message", "error", err)
		return
	}
	s.hub.Broadcast(data)
}
