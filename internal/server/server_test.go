package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"movielib/internal/config"
	"movielib/internal/media"
	"movielib/internal/storage"
)

func newTestServer(t *testing.T) (*Server, afero.Fs) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "library.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fsys := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Library.DefaultVideoPath = "/movies"

	srv := New(cfg, zerolog.Nop(), store,
		media.NewScanner(store, fsys, zerolog.Nop()),
		media.NewEnricher(store, nil, zerolog.Nop()),
	)
	return srv, fsys
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/api/health-check", "", http.StatusOK},
		{http.MethodGet, "/api/videos", "", http.StatusOK},
		{http.MethodPost, "/api/videos", `{"name":"Heat","filepath":"heat.mkv"}`, http.StatusCreated},
		{http.MethodGet, "/api/videos/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/videos/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/stream/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/app-settings", "", http.StatusOK},
		{http.MethodPut, "/api/app-settings", `{"videoBasePath":"/srv"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusNotFound},
		{http.MethodPatch, "/api/videos/unknown", "", http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestScanStreamsThroughMiddleware(t *testing.T) {
	srv, fsys := newTestServer(t)
	require.NoError(t, fsys.MkdirAll("/movies", 0755))
	require.NoError(t, afero.WriteFile(fsys, "/movies/Heat (Al Pacino, 1995).mkv", []byte("x"), 0644))

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, "/api/scan", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, rec.Flushed, "events must be flushed through the logging wrapper")
		assert.Contains(t, rec.Body.String(), "event: end\n")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/videos", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Range")
}
