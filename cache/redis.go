package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/sitecrawl/models"
)

// RedisStore keeps each entry as a JSON string under prefix+id and indexes
// ids in a sorted set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Put(ctx context.Context, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(entry.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	if !ok {
		return ErrExists
	}
	err = s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: entry.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("cache: redis index: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", id, err)
	}
	return &entry, nil
}

func (s *RedisStore) List(ctx context.Context) ([]models.CacheEntryInfo, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: redis index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	sizes := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		sizes[i] = pipe.StrLen(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache: redis sizes: %w", err)
	}

	infos := make([]models.CacheEntryInfo, 0, len(ids))
	for i, id := range ids {
		domain, created, err := models.ParseCacheID(id)
		if err != nil || sizes[i].Val() == 0 {
			continue
		}
		infos = append(infos, models.CacheEntryInfo{
			ID:        id,
			Domain:    domain,
			CreatedAt: created,
			SizeBytes: sizes[i].Val(),
		})
	}
	return infos, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("cache: redis index: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.indexKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: redis clear: %w", err)
	}
	return nil
}
