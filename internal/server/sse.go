package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultKeepalive = 20 * time.Second

// SSEHub fans out classification events to connected SSE clients.
type SSEHub struct {
	logger    *slog.Logger
	keepalive time.Duration

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEHub creates an empty SSEHub.
func NewSSEHub(logger *slog.Logger) *SSEHub {
	return &SSEHub{
		logger:    logger,
		keepalive: defaultKeepalive,
		clients:   make(map[chan []byte]struct{}),
	}
}

// Publish sends v, encoded as JSON, to every connected client.
func (h *SSEHub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("sse: failed to encode event", "err", err)
		return
	}
	h.broadcast(data)
}

// Clients returns the number of connected clients.
func (h *SSEHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *SSEHub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Slow client; drop this event.
		}
	}
}

func (h *SSEHub) addClient(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}
}

func (h *SSEHub) removeClient(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
	close(ch)
}

// ServeHTTP implements http.Handler for SSE connections.
func (h *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan []byte, 32)
	h.addClient(ch)
	defer h.removeClient(ch)

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case data := <-ch:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
