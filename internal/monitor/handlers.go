// Package monitor serves the supervisor and host metrics over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"movielib/internal/hostmetrics"
	"movielib/internal/supervisor"
)

type MetricsSource interface {
	Collect(ctx context.Context) (hostmetrics.Snapshot, error)
}

type Handler struct {
	sup             *supervisor.Supervisor
	metrics         MetricsSource
	metricsInterval time.Duration
	stopTimeout     time.Duration
	upgrader        websocket.Upgrader
	logger          zerolog.Logger
}

func NewHandler(sup *supervisor.Supervisor, metrics MetricsSource, metricsInterval, stopTimeout time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		sup:             sup,
		metrics:         metrics,
		metricsInterval: metricsInterval,
		stopTimeout:     stopTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

type StatusResponse struct {
	Processes []supervisor.Status `json:"processes"`
}

type StopAllResponse struct {
	Stopped []string `json:"stopped"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Processes: h.sup.Statuses()})
}

func (h *Handler) StartProcess(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.sup.Start(name); err != nil {
		h.writeSupervisorError(w, err, name)
		return
	}

	h.writeProcessStatus(w, name)
}

func (h *Handler) StopProcess(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), h.stopTimeout)
	defer cancel()

	if err := h.sup.Stop(ctx, name); err != nil {
		h.writeSupervisorError(w, err, name)
		return
	}

	h.writeProcessStatus(w, name)
}

func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.stopTimeout)
	defer cancel()

	stopped, err := h.sup.StopAll(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to stop processes")
		writeError(w, http.StatusInternalServerError, "STOP_FAILED", err.Error())
		return
	}

	if stopped == nil {
		stopped = []string{}
	}
	writeJSON(w, http.StatusOK, StopAllResponse{Stopped: stopped})
}

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	path, ok := h.logPath(w, r)
	if !ok {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "LOG_NOT_FOUND", "Log file not found")
			return
		}
		h.logger.Error().Err(err).Str("path", path).Msg("failed to open log")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Error reading log file")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeContent(w, r, "", time.Time{}, file)
}

func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	app := r.URL.Query().Get("app")
	if app == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "app is required")
		return
	}

	if err := h.sup.ClearLog(app); err != nil {
		h.writeSupervisorError(w, err, app)
		return
	}

	h.logger.Info().Str("process", app).Msg("log cleared")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Log file cleared successfully"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.metrics.Collect(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("some host metrics unavailable")
	}

	writeJSON(w, http.StatusOK, snap)
}

// MetricsSocket pushes a snapshot every metrics interval until the client
// goes away.
func (h *Handler) MetricsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("metrics client connected")

	// Reads only serve to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.metricsInterval)
	defer ticker.Stop()

	for {
		snap, err := h.metrics.Collect(r.Context())
		if err != nil {
			h.logger.Debug().Err(err).Msg("some host metrics unavailable")
		}
		if err := conn.WriteJSON(snap); err != nil {
			h.logger.Info().Err(err).Msg("metrics client write failed")
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			h.logger.Info().Str("remote", r.RemoteAddr).Msg("metrics client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) logPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	app := r.URL.Query().Get("app")
	if app == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "app is required")
		return "", false
	}

	path, err := h.sup.LogPath(app)
	if err != nil {
		h.writeSupervisorError(w, err, app)
		return "", false
	}

	return path, true
}

func (h *Handler) writeProcessStatus(w http.ResponseWriter, name string) {
	st, err := h.sup.Status(name)
	if err != nil {
		h.writeSupervisorError(w, err, name)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) writeSupervisorError(w http.ResponseWriter, err error, name string) {
	switch {
	case errors.Is(err, supervisor.ErrUnknownProcess):
		writeError(w, http.StatusNotFound, "UNKNOWN_PROCESS", err.Error())
	case errors.Is(err, supervisor.ErrLogNotFound):
		writeError(w, http.StatusNotFound, "LOG_NOT_FOUND", "Log file not found")
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrNotRunning):
		writeError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	default:
		h.logger.Error().Err(err).Str("process", name).Msg("supervisor request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
