package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/shahar-caura/vlmshell/internal/failure"
	"github.com/shahar-caura/vlmshell/internal/result"
)

// Host is the command surface the bridge exposes.
type Host interface {
	StartBackendService(ctx context.Context) (string, error)
	WaitReady(ctx context.Context) error
	ClassifyImage(ctx context.Context, imagePath string) (*result.Result, error)
	BackendPID() int
}

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int    `json:"uptime_seconds"`
	BackendPID    int    `json:"backend_pid"`
}

type AckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ClassifyRequest struct {
	ImagePath string `json:"image_path"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Handlers serves the JSON endpoints.
type Handlers struct {
	Version   string
	StartTime time.Time
	Host      Host
	Logger    *slog.Logger
}

func (h *Handlers) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       h.Version,
		UptimeSeconds: int(time.Since(h.StartTime).Seconds()),
		BackendPID:    h.Host.BackendPID(),
	})
}

func (h *Handlers) StartBackend(w http.ResponseWriter, r *http.Request) {
	var wait *bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	msg, err := h.Host.StartBackendService(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if wait != nil && *wait {
		if err := h.Host.WaitReady(r.Context()); err != nil {
			writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})
			return
		}
		msg = "backend ready"
	}
	writeJSON(w, http.StatusOK, AckResponse{Status: "ok", Message: msg})
}

func (h *Handlers) ClassifyImage(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	res, err := h.Host.ClassifyImage(r.Context(), req.ImagePath)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	status := statusFor(err)
	h.Logger.Warn("request failed", "kind", kind, "status", status, "error", err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind.String()})
}

// statusFor maps a failure kind onto an HTTP status.
func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.InputNotFound, failure.ScriptNotFound, failure.BackendNotFound:
		return http.StatusNotFound
	case failure.ScriptFailed, failure.LaunchFailed:
		return http.StatusBadGateway
	case failure.ParseFailed:
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
