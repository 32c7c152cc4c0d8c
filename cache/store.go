package cache

import (
	"context"
	"errors"

	"github.com/use-agent/sitecrawl/models"
)

// Store errors. Backends return these so the Cache can classify failures.
var (
	ErrMissing = errors.New("cache: entry not found")
	ErrExists  = errors.New("cache: entry already exists")
)

// Store is a persistence backend for cache entries. Entries are immutable:
// Put fails with ErrExists when the id is taken.
type Store interface {
	Put(ctx context.Context, entry *models.CacheEntry) error
	Get(ctx context.Context, id string) (*models.CacheEntry, error)
	List(ctx context.Context) ([]models.CacheEntryInfo, error)
	Clear(ctx context.Context) error
}
