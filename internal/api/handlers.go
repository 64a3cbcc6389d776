package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"movielib/internal/media"
	"movielib/internal/sse"
	"movielib/internal/storage"
	"movielib/internal/streaming"
)

const Version = "1.0.0"

type Handler struct {
	storage          *storage.SQLiteStorage
	scanner          *media.Scanner
	enricher         *media.Enricher
	streamer         *streaming.Handler
	validate         *validator.Validate
	logger           zerolog.Logger
	defaultVideoPath string
}

func NewHandler(store *storage.SQLiteStorage, scanner *media.Scanner, enricher *media.Enricher, logger zerolog.Logger, defaultVideoPath string) *Handler {
	return &Handler{
		storage:          store,
		scanner:          scanner,
		enricher:         enricher,
		streamer:         streaming.NewHandler(logger),
		validate:         validator.New(),
		logger:           logger,
		defaultVideoPath: defaultVideoPath,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusInternalServerError, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.VideoFilter{Query: query.Get("q")}

	if raw := query.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "year must be a number")
			return
		}
		filter.Year = &year
	}

	if raw := query.Get("missingOmdb"); raw != "" {
		missing, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "missingOmdb must be a boolean")
			return
		}
		filter.MissingOmdb = missing
	}

	videos, err := h.storage.ListVideos(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list videos")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list videos")
		return
	}

	writeJSON(w, http.StatusOK, VideoListResponse{Videos: videos})
}

func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	video, err := h.storage.GetVideo(r.Context(), videoID)
	if err != nil {
		h.writeStoreError(w, err, videoID)
		return
	}

	writeJSON(w, http.StatusOK, video)
}

func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req VideoRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	video := &storage.Video{
		ID:          uuid.NewString(),
		DateCreated: time.Now(),
	}
	req.apply(video)

	inserted, err := h.storage.InsertVideoIfAbsent(r.Context(), video)
	if err != nil {
		h.logger.Error().Err(err).Str("name", video.Name).Msg("failed to create video")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create video")
		return
	}
	if !inserted {
		writeError(w, http.StatusConflict, "DUPLICATE_VIDEO", "A video with this name, alt name and year already exists")
		return
	}

	created, err := h.storage.GetVideo(r.Context(), video.ID)
	if err != nil {
		h.writeStoreError(w, err, video.ID)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	var req VideoRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	video, err := h.storage.GetVideo(r.Context(), videoID)
	if err != nil {
		h.writeStoreError(w, err, videoID)
		return
	}
	req.apply(video)

	updated, err := h.storage.UpdateVideo(r.Context(), video)
	if err != nil {
		h.writeStoreError(w, err, videoID)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	if err := h.storage.DeleteVideo(r.Context(), videoID); err != nil {
		h.writeStoreError(w, err, videoID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	video, err := h.storage.GetVideo(r.Context(), videoID)
	if err != nil {
		h.writeStoreError(w, err, videoID)
		return
	}

	settings, err := h.storage.GetSettings(r.Context(), h.defaultVideoPath)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load settings for streaming")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load settings")
		return
	}

	filePath, ok := streaming.ResolvePath(settings.VideoBasePath, video.Filepath)
	if !ok {
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found")
		return
	}

	h.streamer.ServeFile(w, r, filePath)
}

// Scan imports the configured base path and reports each file as a
// server-sent event.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := h.storage.GetSettings(ctx, h.defaultVideoPath)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load settings for scan")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load settings")
		return
	}

	if h.scanner.IsScanning(settings.VideoBasePath) {
		writeError(w, http.StatusConflict, "SCAN_IN_PROGRESS", "Scan already in progress")
		return
	}

	stream := sse.NewStream(w)
	result, err := h.scanner.Scan(ctx, settings.VideoBasePath, func(p media.ScanProgress) error {
		return stream.Send(p)
	})

	switch {
	case errors.Is(err, media.ErrScanInProgress) && !stream.Started():
		writeError(w, http.StatusConflict, "SCAN_IN_PROGRESS", "Scan already in progress")
	case ctx.Err() != nil:
		h.logger.Info().Str("path", settings.VideoBasePath).Msg("scan client disconnected")
	case err != nil:
		h.logger.Error().Err(err).Str("path", settings.VideoBasePath).Msg("scan failed")
		h.logStreamErr(stream.Error(ErrorEvent{Error: err.Error()}))
	default:
		h.logStreamErr(stream.End(ScanEndEvent{
			Message:    "Videos scanned and inserted successfully",
			ScanResult: result,
		}))
	}
}

// FetchOMDBData runs an enrichment pass, one event per updated video.
func (h *Handler) FetchOMDBData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.enricher.IsRunning() {
		writeError(w, http.StatusConflict, "ENRICH_IN_PROGRESS", "OMDB fetch already in progress")
		return
	}

	stream := sse.NewStream(w)
	result, err := h.enricher.Run(ctx, func(p media.EnrichProgress) error {
		return stream.Send(p)
	})

	switch {
	case errors.Is(err, media.ErrEnrichInProgress) && !stream.Started():
		writeError(w, http.StatusConflict, "ENRICH_IN_PROGRESS", "OMDB fetch already in progress")
	case ctx.Err() != nil:
		h.logger.Info().Msg("omdb client disconnected")
	case err != nil:
		h.logger.Error().Err(err).Msg("omdb enrichment failed")
		h.logStreamErr(stream.Error(ErrorEvent{Error: err.Error()}))
	case result.RateLimited:
		h.logStreamErr(stream.End(EnrichEndEvent{
			Message:      fmt.Sprintf("OMDB API request limit reached. Updated %d videos.", result.UpdatedCount),
			EnrichResult: result,
		}))
	default:
		h.logStreamErr(stream.End(EnrichEndEvent{
			Message:      fmt.Sprintf("OMDB data fetched and updated successfully for %d videos.", result.UpdatedCount),
			EnrichResult: result,
		}))
	}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.storage.GetSettings(r.Context(), h.defaultVideoPath)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get settings")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	settings, err := h.storage.UpdateSettings(r.Context(), req.VideoBasePath)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update settings")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update settings")
		return
	}

	h.logger.Info().Str("video_base_path", settings.VideoBasePath).Msg("settings updated")
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", fmt.Sprintf("Invalid body: %s", err.Error()))
		return false
	}

	return true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, videoID string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "VIDEO_NOT_FOUND", "Video not found")
	case errors.Is(err, storage.ErrDuplicateVideo):
		writeError(w, http.StatusConflict, "DUPLICATE_VIDEO", "A video with this name, alt name and year already exists")
	default:
		h.logger.Error().Err(err).Str("id", videoID).Msg("video store failure")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to access video")
	}
}

func (h *Handler) logStreamErr(err error) {
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to write terminal event")
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
