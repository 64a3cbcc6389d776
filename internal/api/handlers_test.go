package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"movielib/internal/media"
	"movielib/internal/omdb"
	"movielib/internal/storage"
)

type fakeLookup struct {
	calls     int
	failAfter int
	failWith  error
}

func (f *fakeLookup) Lookup(_ context.Context, title string, _ *int) (*storage.OmdbData, error) {
	f.calls++
	if f.failWith != nil && f.calls > f.failAfter {
		return nil, f.failWith
	}
	return &storage.OmdbData{Title: title, Response: "True"}, nil
}

type testEnv struct {
	handler *Handler
	store   *storage.SQLiteStorage
	fs      afero.Fs
	lookup  *fakeLookup
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "library.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fsys := afero.NewMemMapFs()
	lookup := &fakeLookup{}
	handler := NewHandler(
		store,
		media.NewScanner(store, fsys, zerolog.Nop()),
		media.NewEnricher(store, lookup, zerolog.Nop()),
		zerolog.Nop(),
		"/movies",
	)

	return &testEnv{handler: handler, store: store, fs: fsys, lookup: lookup}
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type sseEvent struct {
	name string
	data string
}

func parseEvents(body string) []sseEvent {
	var events []sseEvent
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(frame, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				ev.name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				ev.data = v
			}
		}
		events = append(events, ev)
	}
	return events
}

func (e *testEnv) createVideo(t *testing.T, body string) storage.Video {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.CreateVideo(rec, jsonRequest(http.MethodPost, "/api/videos", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[storage.Video](t, rec)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health-check", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	require.NoError(t, env.store.Close())

	rec = httptest.NewRecorder()
	env.handler.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health-check", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.NotEmpty(t, resp.Error)
}

func TestCreateVideo(t *testing.T) {
	env := newTestEnv(t)

	video := env.createVideo(t, `{"name":"Heat","actors":["Al Pacino"],"movieYear":1995,"filepath":"Heat (Al Pacino, 1995).mkv"}`)
	assert.NotEmpty(t, video.ID)
	assert.Equal(t, "Heat", video.Name)
	assert.Equal(t, []string{"Al Pacino"}, video.Actors)
	assert.False(t, video.DateCreated.IsZero())

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"duplicate triple", `{"name":"Heat","movieYear":1995,"filepath":"other.mp4"}`, http.StatusConflict, "DUPLICATE_VIDEO"},
		{"missing name", `{"filepath":"x.mp4"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing filepath", `{"name":"X"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad year", `{"name":"X","movieYear":95,"filepath":"x.mp4"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"invalid json", `{"name":`, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.handler.CreateVideo(rec, jsonRequest(http.MethodPost, "/api/videos", tc.body))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode[ErrorResponse](t, rec).Error.Code)
		})
	}
}

func TestGetUpdateDeleteVideo(t *testing.T) {
	env := newTestEnv(t)
	video := env.createVideo(t, `{"name":"Heat","movieYear":1995,"filepath":"heat.mkv"}`)

	rec := httptest.NewRecorder()
	env.handler.GetVideo(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "VIDEO_NOT_FOUND", decode[ErrorResponse](t, rec).Error.Code)

	rec = httptest.NewRecorder()
	body := `{"name":"Heat","altName":"Director's Cut","actors":["Al Pacino","Robert De Niro"],"movieYear":1995,"filepath":"heat-dc.mkv"}`
	env.handler.UpdateVideo(rec, withID(jsonRequest(http.MethodPut, "/", body), video.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[storage.Video](t, rec)
	require.NotNil(t, updated.AltName)
	assert.Equal(t, "Director's Cut", *updated.AltName)
	assert.Equal(t, "heat-dc.mkv", updated.Filepath)
	assert.Len(t, updated.Actors, 2)

	rec = httptest.NewRecorder()
	env.handler.UpdateVideo(rec, withID(jsonRequest(http.MethodPut, "/", body), "missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.DeleteVideo(rec, withID(httptest.NewRequest(http.MethodDelete, "/", nil), video.ID))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.DeleteVideo(rec, withID(httptest.NewRequest(http.MethodDelete, "/", nil), video.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateVideoIntoExistingTripleConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.createVideo(t, `{"name":"Heat","movieYear":1995,"filepath":"heat.mkv"}`)
	alien := env.createVideo(t, `{"name":"Alien","movieYear":1979,"filepath":"alien.mkv"}`)

	rec := httptest.NewRecorder()
	env.handler.UpdateVideo(rec, withID(jsonRequest(http.MethodPut, "/", `{"name":"Heat","movieYear":1995,"filepath":"alien.mkv"}`), alien.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListVideos(t *testing.T) {
	env := newTestEnv(t)
	env.createVideo(t, `{"name":"Heat","movieYear":1995,"filepath":"heat.mkv"}`)
	env.createVideo(t, `{"name":"Alien","movieYear":1979,"filepath":"alien.mkv"}`)

	rec := httptest.NewRecorder()
	env.handler.ListVideos(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[VideoListResponse](t, rec)
	require.Len(t, all.Videos, 2)
	assert.Equal(t, "Alien", all.Videos[0].Name)

	rec = httptest.NewRecorder()
	env.handler.ListVideos(rec, httptest.NewRequest(http.MethodGet, "/api/videos?year=1995", nil))
	filtered := decode[VideoListResponse](t, rec)
	require.Len(t, filtered.Videos, 1)
	assert.Equal(t, "Heat", filtered.Videos[0].Name)

	rec = httptest.NewRecorder()
	env.handler.ListVideos(rec, httptest.NewRequest(http.MethodGet, "/api/videos?year=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ListVideos(rec, httptest.NewRequest(http.MethodGet, "/api/videos?missingOmdb=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.GetSettings(rec, httptest.NewRequest(http.MethodGet, "/api/app-settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/movies", decode[storage.AppSettings](t, rec).VideoBasePath)

	rec = httptest.NewRecorder()
	env.handler.UpdateSettings(rec, jsonRequest(http.MethodPut, "/api/app-settings", `{"videoBasePath":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.UpdateSettings(rec, jsonRequest(http.MethodPut, "/api/app-settings", `{"videoBasePath":"/srv/films"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.GetSettings(rec, httptest.NewRequest(http.MethodGet, "/api/app-settings", nil))
	assert.Equal(t, "/srv/films", decode[storage.AppSettings](t, rec).VideoBasePath)
}

func TestScanStreamsProgressThenEnd(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.fs.MkdirAll("/movies", 0755))
	for _, name := range []string{"Heat (Al Pacino, 1995).mkv", "Alien (Sigourney Weaver, 1979).mp4", "readme.txt"} {
		require.NoError(t, afero.WriteFile(env.fs, "/movies/"+name, []byte("x"), 0644))
	}

	rec := httptest.NewRecorder()
	env.handler.Scan(rec, httptest.NewRequest(http.MethodPost, "/api/scan", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseEvents(rec.Body.String())
	require.Len(t, events, 3)
	assert.Empty(t, events[0].name)
	assert.Empty(t, events[1].name)
	assert.Equal(t, "end", events[2].name)

	var progress media.ScanProgress
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &progress))
	assert.Equal(t, 2, progress.TotalProcessed)
	assert.Equal(t, 2, progress.TotalFound)

	var end struct {
		Message       string `json:"message"`
		TotalInserted int    `json:"totalInserted"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &end))
	assert.Equal(t, "Videos scanned and inserted successfully", end.Message)
	assert.Equal(t, 2, end.TotalInserted)
}

func TestScanMissingDirectoryEndsWithError(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.Scan(rec, httptest.NewRequest(http.MethodPost, "/api/scan", nil))

	events := parseEvents(rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
	assert.Contains(t, events[0].data, "directory not found")
}

// blockingRecorder parks the first body write until release is closed.
type blockingRecorder struct {
	*httptest.ResponseRecorder
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRecorder) Write(p []byte) (int, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.ResponseRecorder.Write(p)
}

func TestScanRejectsSecondTriggerWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.fs.MkdirAll("/movies", 0755))
	require.NoError(t, afero.WriteFile(env.fs, "/movies/Heat (Al Pacino, 1995).mkv", []byte("x"), 0644))

	first := &blockingRecorder{
		ResponseRecorder: httptest.NewRecorder(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.handler.Scan(first, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	}()
	<-first.entered

	second := httptest.NewRecorder()
	env.handler.Scan(second, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "SCAN_IN_PROGRESS", decode[ErrorResponse](t, second).Error.Code)

	close(first.release)
	<-done

	events := parseEvents(first.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "end", events[1].name)
}

func TestFetchOMDBData(t *testing.T) {
	tests := []struct {
		name      string
		failAfter int
		failWith  error
		progress  int
		terminal  string
		contains  string
	}{
		{name: "all updated", progress: 3, terminal: "end", contains: "updated successfully for 3 videos"},
		{name: "rate limited", failAfter: 1, failWith: omdb.ErrRateLimited, progress: 1, terminal: "end", contains: "request limit reached. Updated 1 videos"},
		{name: "provider failure", failAfter: 2, failWith: errors.New("upstream exploded"), progress: 2, terminal: "error", contains: "upstream exploded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.lookup.failAfter = tc.failAfter
			env.lookup.failWith = tc.failWith
			env.createVideo(t, `{"name":"Alien","filepath":"a.mp4"}`)
			env.createVideo(t, `{"name":"Heat","filepath":"h.mp4"}`)
			env.createVideo(t, `{"name":"Zodiac","filepath":"z.mp4"}`)

			rec := httptest.NewRecorder()
			env.handler.FetchOMDBData(rec, httptest.NewRequest(http.MethodGet, "/api/getOMDBData", nil))

			events := parseEvents(rec.Body.String())
			require.Len(t, events, tc.progress+1)
			last := events[len(events)-1]
			assert.Equal(t, tc.terminal, last.name)
			assert.Contains(t, last.data, tc.contains)
		})
	}
}

func TestStreamVideo(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "heat.mp4"), []byte("0123456789"), 0644))

	rec := httptest.NewRecorder()
	env.handler.UpdateSettings(rec, jsonRequest(http.MethodPut, "/api/app-settings", `{"videoBasePath":"`+dir+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	video := env.createVideo(t, `{"name":"Heat","filepath":"heat.mp4"}`)
	gone := env.createVideo(t, `{"name":"Gone","filepath":"gone.mp4"}`)

	tests := []struct {
		name         string
		id           string
		rangeHeader  string
		status       int
		body         string
		contentRange string
	}{
		{name: "full file", id: video.ID, status: http.StatusOK, body: "0123456789"},
		{name: "middle range", id: video.ID, rangeHeader: "bytes=2-4", status: http.StatusPartialContent, body: "234", contentRange: "bytes 2-4/10"},
		{name: "last byte", id: video.ID, rangeHeader: "bytes=9-", status: http.StatusPartialContent, body: "9", contentRange: "bytes 9-9/10"},
		{name: "start at size", id: video.ID, rangeHeader: "bytes=10-", status: http.StatusRequestedRangeNotSatisfiable},
		{name: "unknown video", id: "missing", status: http.StatusNotFound},
		{name: "missing file", id: gone.ID, status: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := withID(httptest.NewRequest(http.MethodGet, "/api/stream/"+tc.id, nil), tc.id)
			if tc.rangeHeader != "" {
				req.Header.Set("Range", tc.rangeHeader)
			}

			rec := httptest.NewRecorder()
			env.handler.StreamVideo(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
				assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
				assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
			}
			if tc.contentRange != "" {
				assert.Equal(t, tc.contentRange, rec.Header().Get("Content-Range"))
			}
		})
	}
}
