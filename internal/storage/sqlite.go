package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const settingsRowID = 1

var videoColumns = []string{
	"id", "date_created", "name", "alt_name", "actors", "movie_year", "filepath", "omdb_data",
}

type SQLiteStorage struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

func NewSQLiteStorage(dbPath string, logger zerolog.Logger) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s.logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Videos

// InsertVideoIfAbsent inserts v unless a video with the same dedup triple
// already exists, in which case the existing row is left untouched and
// inserted is false. The check and the insert are one statement.
func (s *SQLiteStorage) InsertVideoIfAbsent(ctx context.Context, v *Video) (bool, error) {
	row := rowFromVideo(v)
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO videos (id, date_created, name, alt_name, actors, movie_year, filepath, omdb_data)
		VALUES (:id, :date_created, :name, :alt_name, :actors, :movie_year, :filepath, :omdb_data)
		ON CONFLICT DO NOTHING
	`, row)
	if err != nil {
		return false, fmt.Errorf("insert video %q: %w", v.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (s *SQLiteStorage) GetVideo(ctx context.Context, id string) (*Video, error) {
	query, args, err := sq.Select(videoColumns...).From("videos").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var row videoRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	v := row.toVideo()
	return &v, nil
}

// ListVideos returns the videos matching f ordered by name then year.
func (s *SQLiteStorage) ListVideos(ctx context.Context, f VideoFilter) ([]Video, error) {
	builder := sq.Select(videoColumns...).From("videos").OrderBy("name", "movie_year", "id")

	if f.Year != nil {
		builder = builder.Where(sq.Eq{"movie_year": *f.Year})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		builder = builder.Where(sq.Or{sq.Like{"name": like}, sq.Like{"alt_name": like}})
	}
	if f.MissingOmdb {
		builder = builder.Where(sq.Eq{"omdb_data": nil})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list videos query: %w", err)
	}

	var rows []videoRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	videos := make([]Video, len(rows))
	for i := range rows {
		videos[i] = rows[i].toVideo()
	}

	return videos, nil
}

// ListVideosWithoutOmdb returns every video that has never been enriched.
func (s *SQLiteStorage) ListVideosWithoutOmdb(ctx context.Context) ([]Video, error) {
	return s.ListVideos(ctx, VideoFilter{MissingOmdb: true})
}

// UpdateVideo replaces the editable fields of the video with v.ID.
func (s *SQLiteStorage) UpdateVideo(ctx context.Context, v *Video) (*Video, error) {
	row := rowFromVideo(v)
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE videos SET
			name = :name,
			alt_name = :alt_name,
			actors = :actors,
			movie_year = :movie_year,
			filepath = :filepath,
			omdb_data = :omdb_data
		WHERE id = :id
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateVideo
		}
		return nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return s.GetVideo(ctx, v.ID)
}

func (s *SQLiteStorage) DeleteVideo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// SetOmdbData stores enrichment data for a video that has none yet.
// updated is false when the video is missing or was already enriched.
func (s *SQLiteStorage) SetOmdbData(ctx context.Context, id string, data *OmdbData) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE videos SET omdb_data = ? WHERE id = ? AND omdb_data IS NULL",
		NewJSONColumn(*data), id,
	)
	if err != nil {
		return false, fmt.Errorf("store omdb data for %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// Settings

// GetSettings returns the settings row, creating it with defaultBasePath
// on first use.
func (s *SQLiteStorage) GetSettings(ctx context.Context, defaultBasePath string) (*AppSettings, error) {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, video_base_path, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, settingsRowID, defaultBasePath, now, now); err != nil {
		return nil, fmt.Errorf("create default settings: %w", err)
	}

	return s.readSettings(ctx)
}

func (s *SQLiteStorage) UpdateSettings(ctx context.Context, videoBasePath string) (*AppSettings, error) {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, video_base_path, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_base_path = excluded.video_base_path,
			updated_at = excluded.updated_at
	`, settingsRowID, videoBasePath, now, now); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}

	return s.readSettings(ctx)
}

func (s *SQLiteStorage) readSettings(ctx context.Context) (*AppSettings, error) {
	var settings AppSettings
	err := s.db.GetContext(ctx, &settings, `
		SELECT id, video_base_path, created_at, updated_at
		FROM app_settings WHERE id = ?
	`, settingsRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &settings, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), v...)
}
