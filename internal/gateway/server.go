package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/telemetry"
)

// maxPayloadBytes caps webhook request bodies. GitHub's own delivery limit
// is well below this.
const maxPayloadBytes = 5 << 20

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	// Host is the network interface to bind to (e.g., "127.0.0.1" or "0.0.0.0").
	Host string `yaml:"host"`
	// Port is the TCP port number to listen on.
	Port int `yaml:"port"`
}

// Server exposes the webhook endpoint plus health and metrics. Server is
// safe for concurrent use.
type Server struct {
	config  *ServerConfig
	gateway *Gateway
	server  *http.Server
	log     *slog.Logger
	mu      sync.RWMutex
	running bool
}

// NewServer creates the HTTP server around a gateway. The server is not
// started until Start is called.
func NewServer(config *ServerConfig, gw *Gateway) *Server {
	return &Server{
		config:  config,
		gateway: gw,
		log:     logging.WithComponent("gateway"),
	}
}

// Start starts the server and blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", s.handleGithubWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", telemetry.Handler())

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Gateway starting", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server with a 30-second timeout, then
// waits for in-flight jobs to drain.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.gateway.Wait()
	return err
}

// handleGithubWebhook receives webhook deliveries from GitHub. The body is
// verified before any parsing; the response is written as soon as the job is
// registered, execution continues in the background.
func (s *Server) handleGithubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if !VerifySignature(body, r.Header.Get(HeaderSignature), s.gateway.secret) {
		telemetry.SignatureRejects.Inc()
		s.log.Warn("webhook signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if !VerifyTimestamp(r.Header.Get(HeaderTimestamp), s.gateway.now()) {
		telemetry.SignatureRejects.Inc()
		s.log.Warn("webhook outside replay window")
		http.Error(w, "Stale delivery", http.StatusUnauthorized)
		return
	}

	event := r.Header.Get(HeaderEvent)
	telemetry.WebhooksReceived.WithLabelValues(event).Inc()

	if err := s.gateway.dispatch(r.Context(), event, body); err != nil {
		s.log.Error("webhook dispatch failed",
			slog.String("event", event),
			slog.Any("error", err))
		http.Error(w, "Bad payload", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
