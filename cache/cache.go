package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/metrics"
	"github.com/use-agent/sitecrawl/models"
)

// Cache is the result cache. It assigns identifiers, orders listings and
// maps backend failures onto IO_FAILURE and NOT_FOUND errors.
type Cache struct {
	store  Store
	closer func() error
}

// New wraps a Store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Open builds the Cache selected by cfg.Backend: "fs", "redis" or "memory".
func Open(cfg config.CacheConfig) (*Cache, error) {
	switch cfg.Backend {
	case "fs", "":
		fs, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		slog.Info("result cache ready", "backend", "fs", "dir", cfg.Dir)
		return New(fs), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		slog.Info("result cache ready", "backend", "redis", "addr", cfg.RedisAddr)
		c := New(NewRedisStore(client, cfg.RedisPrefix))
		c.closer = client.Close
		return c, nil
	case "memory":
		slog.Info("result cache ready", "backend", "memory", "maxEntries", cfg.MaxEntries)
		return New(NewMemoryStore(cfg.MaxEntries)), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

// Save persists entry and returns its identifier. The identifier and page
// total are derived from the entry when unset.
func (c *Cache) Save(ctx context.Context, entry *models.CacheEntry) (string, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = models.NewCacheID(entry.Domain, entry.CreatedAt)
	}
	entry.TotalPages = len(entry.Results)

	if err := c.store.Put(ctx, entry); err != nil {
		metrics.ObserveCacheWrite(false)
		return "", models.NewCrawlError(models.ErrCodeIOFailure, "failed to write cache entry "+entry.ID, err)
	}
	metrics.ObserveCacheWrite(true)
	return entry.ID, nil
}

// List returns all entries, most recent first.
func (c *Cache) List(ctx context.Context) ([]models.CacheEntryInfo, error) {
	infos, err := c.store.List(ctx)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeIOFailure, "failed to list cache", err)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Load returns the entry with the given identifier.
func (c *Cache) Load(ctx context.Context, id string) (*models.CacheEntry, error) {
	if _, _, err := models.ParseCacheID(id); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeNotFound, "cache entry "+id+" not found", err)
	}
	entry, err := c.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrMissing):
		return nil, models.NewCrawlError(models.ErrCodeNotFound, "cache entry "+id+" not found", nil)
	case err != nil:
		return nil, models.NewCrawlError(models.ErrCodeIOFailure, "failed to read cache entry "+id, err)
	}
	return entry, nil
}

// Latest returns the most recent entry for domain.
func (c *Cache) Latest(ctx context.Context, domain string) (*models.CacheEntry, error) {
	infos, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Domain == domain {
			return c.Load(ctx, info.ID)
		}
	}
	return nil, models.NewCrawlError(models.ErrCodeNotFound, "no cache entry for "+domain, nil)
}

// Clear removes every entry. Clearing an empty cache succeeds.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return models.NewCrawlError(models.ErrCodeIOFailure, "failed to clear cache", err)
	}
	return nil
}

// Close releases backend connections.
func (c *Cache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
