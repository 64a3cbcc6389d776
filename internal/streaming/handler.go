package streaming

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"movielib/internal/media"
)

type Handler struct {
	logger zerolog.Logger
}

func NewHandler(logger zerolog.Logger) *Handler {
	return &Handler{logger: logger}
}

// ResolvePath joins a stored relative filepath onto the base path. It
// returns false when the result would escape basePath.
func ResolvePath(basePath, relPath string) (string, bool) {
	base := filepath.Clean(basePath)
	full := filepath.Join(base, relPath)

	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}

	return full, true
}

// ServeFile writes filePath to w, honouring a single byte Range request.
// A range starting at or past the end of the file gets 416.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("path", filePath).Msg("failed to open video")
		http.Error(w, "Cannot read file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Cannot read file", http.StatusInternalServerError)
		return
	}
	if stat.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	contentType := media.GetContentType(filePath)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	// Range requests are served even when the client sends validators
	http.ServeContent(w, r, filepath.Base(filePath), time.Time{}, file)
}
