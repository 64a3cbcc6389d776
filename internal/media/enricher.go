package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"movielib/internal/omdb"
	"movielib/internal/storage"
)

var ErrEnrichInProgress = errors.New("an enrichment pass is already in progress")

type EnrichStore interface {
	ListVideosWithoutOmdb(ctx context.Context) ([]storage.Video, error)
	SetOmdbData(ctx context.Context, id string, data *storage.OmdbData) (bool, error)
}

type MovieLookup interface {
	Lookup(ctx context.Context, title string, year *int) (*storage.OmdbData, error)
}

// EnrichProgress is reported after each video has been updated.
type EnrichProgress struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	UpdatedCount int    `json:"updatedCount"`
	Total        int    `json:"total"`
}

type EnrichResult struct {
	UpdatedCount int  `json:"updatedCount"`
	Total        int  `json:"total"`
	RateLimited  bool `json:"rateLimited"`
}

// Enricher fills in OMDb data for videos that have none.
type Enricher struct {
	store  EnrichStore
	lookup MovieLookup
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
}

func NewEnricher(store EnrichStore, lookup MovieLookup, logger zerolog.Logger) *Enricher {
	return &Enricher{
		store:  store,
		lookup: lookup,
		logger: logger,
	}
}

func (e *Enricher) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run looks up every video lacking OMDb data, sequentially. Hitting the
// provider's rate limit ends the pass early without an error; the videos
// not reached keep a nil OmdbData and are picked up by the next pass.
func (e *Enricher) Run(ctx context.Context, onProgress func(EnrichProgress) error) (*EnrichResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrEnrichInProgress
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	videos, err := e.store.ListVideosWithoutOmdb(ctx)
	if err != nil {
		return nil, fmt.Errorf("list videos without omdb data: %w", err)
	}

	result := &EnrichResult{Total: len(videos)}
	e.logger.Info().Int("total", result.Total).Msg("starting omdb enrichment")

	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().Int("updated", result.UpdatedCount).Msg("enrichment cancelled")
			return result, err
		}

		data, err := e.lookup.Lookup(ctx, video.Name, video.MovieYear)
		if errors.Is(err, omdb.ErrRateLimited) {
			result.RateLimited = true
			e.logger.Warn().
				Int("updated", result.UpdatedCount).
				Int("total", result.Total).
				Msg("omdb request limit reached")
			return result, nil
		}
		if err != nil {
			return result, fmt.Errorf("look up %q: %w", video.Name, err)
		}

		updated, err := e.store.SetOmdbData(ctx, video.ID, data)
		if err != nil {
			return result, err
		}
		if !updated {
			// Enriched or deleted since the pass started
			e.logger.Debug().Str("id", video.ID).Msg("video no longer needs omdb data")
			continue
		}
		result.UpdatedCount++

		if onProgress != nil {
			progress := EnrichProgress{
				VideoID:      video.ID,
				Title:        video.Name,
				UpdatedCount: result.UpdatedCount,
				Total:        result.Total,
			}
			if err := onProgress(progress); err != nil {
				return result, fmt.Errorf("report enrichment progress: %w", err)
			}
		}
	}

	e.logger.Info().
		Int("updated", result.UpdatedCount).
		Int("total", result.Total).
		Msg("omdb enrichment completed")

	return result, nil
}
