package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"movielib/internal/storage"
)

var ErrScanInProgress = errors.New("a scan of this directory is already in progress")

type VideoInserter interface {
	InsertVideoIfAbsent(ctx context.Context, v *storage.Video) (bool, error)
}

// FileError records a file that could not be imported during a scan.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// ScanProgress is reported once per processed file.
type ScanProgress struct {
	File           string      `json:"file"`
	TotalFound     int         `json:"totalFound"`
	TotalProcessed int         `json:"totalProcessed"`
	TotalInserted  int         `json:"totalInserted"`
	Errors         []FileError `json:"errors"`
}

type ScanResult struct {
	TotalFound     int         `json:"totalFound"`
	TotalProcessed int         `json:"totalProcessed"`
	TotalInserted  int         `json:"totalInserted"`
	Errors         []FileError `json:"errors"`
}

type Scanner struct {
	store  VideoInserter
	fs     afero.Fs
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

func NewScanner(store VideoInserter, fs afero.Fs, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:  store,
		fs:     fs,
		logger: logger,
		now:    time.Now,
		active: make(map[string]struct{}),
	}
}

// IsScanning reports whether a scan of basePath is running.
func (s *Scanner) IsScanning(basePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[filepath.Clean(basePath)]
	return ok
}

func (s *Scanner) acquire(basePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[basePath]; ok {
		return false
	}
	s.active[basePath] = struct{}{}
	return true
}

func (s *Scanner) release(basePath string) {
	s.mu.Lock()
	delete(s.active, basePath)
	s.mu.Unlock()
}

// Scan imports every supported video directly inside basePath, one file at
// a time in directory order. Files whose name cannot be parsed or stored
// are collected in the result's error list; only a missing directory, a
// cancelled context, or a failing onProgress aborts the scan.
//
// onProgress is called after each file has been fully processed.
func (s *Scanner) Scan(ctx context.Context, basePath string, onProgress func(ScanProgress) error) (*ScanResult, error) {
	basePath = filepath.Clean(basePath)
	if !s.acquire(basePath) {
		return nil, ErrScanInProgress
	}
	defer s.release(basePath)

	s.logger.Info().Str("path", basePath).Msg("scanning library")

	files, err := ListMediaFiles(s.fs, basePath)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		TotalFound: len(files),
		Errors:     []FileError{},
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().
				Str("path", basePath).
				Int("processed", result.TotalProcessed).
				Msg("scan cancelled")
			return result, err
		}

		inserted, err := s.importFile(ctx, file)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", file).Msg("skipping file")
			result.Errors = append(result.Errors, FileError{File: file, Error: err.Error()})
		}
		if inserted {
			result.TotalInserted++
		}
		result.TotalProcessed++

		if onProgress != nil {
			progress := ScanProgress{
				File:           file,
				TotalFound:     result.TotalFound,
				TotalProcessed: result.TotalProcessed,
				TotalInserted:  result.TotalInserted,
				Errors:         result.Errors,
			}
			if err := onProgress(progress); err != nil {
				return result, fmt.Errorf("report scan progress: %w", err)
			}
		}
	}

	s.logger.Info().
		Str("path", basePath).
		Int("found", result.TotalFound).
		Int("inserted", result.TotalInserted).
		Int("errors", len(result.Errors)).
		Msg("scan completed")

	return result, nil
}

func (s *Scanner) importFile(ctx context.Context, file string) (bool, error) {
	parsed, err := ParseFilename(file)
	if err != nil {
		return false, err
	}

	video := &storage.Video{
		ID:          uuid.NewString(),
		DateCreated: s.now(),
		Name:        parsed.Name,
		AltName:     parsed.AltName,
		Actors:      parsed.Actors,
		MovieYear:   parsed.MovieYear,
		Filepath:    parsed.Filepath,
	}

	inserted, err := s.store.InsertVideoIfAbsent(ctx, video)
	if err != nil {
		return false, err
	}

	if inserted {
		s.logger.Debug().Str("name", video.Name).Str("file", file).Msg("added video")
	}

	return inserted, nil
}
