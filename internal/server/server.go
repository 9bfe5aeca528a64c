// Package server is the loopback HTTP bridge between a web host UI and the
// classification shell.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is the vlmshell HTTP bridge.
type Server struct {
	port      int
	version   string
	startTime time.Time
	host      Host
	hub       *SSEHub
	validator *requestValidator
	logger    *slog.Logger
}

// New creates a Server. It fails only if the embedded API document is invalid.
func New(port int, version string, host Host, logger *slog.Logger) (*Server, error) {
	v, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Server{
		port:      port,
		version:   version,
		startTime: time.Now(),
		host:      host,
		hub:       NewSSEHub(logger),
		validator: v,
		logger:    logger,
	}, nil
}

// Hub returns the event hub behind GET /api/events.
func (s *Server) Hub() *SSEHub { return s.hub }

// Handler returns the bridge's routes.
func (s *Server) Handler() http.Handler {
	h := &Handlers{
		Version:   s.version,
		StartTime: s.startTime,
		Host:      s.host,
		Logger:    s.logger,
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/health", h.GetHealth)
	api.HandleFunc("POST /api/backend/start", h.StartBackend)
	api.HandleFunc("POST /api/classify", h.ClassifyImage)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.validator.middleware(api))

	// SSE endpoint bypasses validation; the stream never completes a body.
	mux.Handle("GET /api/events", s.hub)

	mux.HandleFunc("GET /api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapiYAML)
	})
	return mux
}

// Run starts the HTTP server on the loopback interface and blocks until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start listener so we can log the actual port.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.logger.Info("bridge server started", "addr", ln.Addr().String())

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
