package omdb

import (
	"context"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"movielib/internal/storage"
)

type Lookuper interface {
	Lookup(ctx context.Context, title string, year *int) (*storage.OmdbData, error)
}

// CachedLookup remembers answers by title and year so variants of one
// movie (a director's cut next to the theatrical release) cost a single
// request against the daily limit. Errors are never cached.
type CachedLookup struct {
	next  Lookuper
	cache *lru.Cache[string, *storage.OmdbData]
}

func NewCachedLookup(next Lookuper, size int) (*CachedLookup, error) {
	cache, err := lru.New[string, *storage.OmdbData](size)
	if err != nil {
		return nil, err
	}
	return &CachedLookup{next: next, cache: cache}, nil
}

func (c *CachedLookup) Lookup(ctx context.Context, title string, year *int) (*storage.OmdbData, error) {
	key := cacheKey(title, year)
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}

	data, err := c.next.Lookup(ctx, title, year)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, data)
	return data, nil
}

func (c *CachedLookup) Len() int {
	return c.cache.Len()
}

func cacheKey(title string, year *int) string {
	if year == nil {
		return title + "|"
	}
	return title + "|" + strconv.Itoa(*year)
}
