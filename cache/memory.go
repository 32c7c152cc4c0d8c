package cache

import (
	"context"
	"sync"

	"github.com/use-agent/sitecrawl/models"
)

// MemoryStore is an in-process Store for tests and ephemeral servers.
// When full, the oldest entry is evicted to make room.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*models.CacheEntry
	maxEntries int
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryStore{
		entries:    make(map[string]*models.CacheEntry),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStore) Put(_ context.Context, entry *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; ok {
		return ErrExists
	}
	if len(s.entries) >= s.maxEntries {
		var oldest *models.CacheEntry
		for _, e := range s.entries {
			if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) {
				oldest = e
			}
		}
		delete(s.entries, oldest.ID)
	}

	cp := *entry
	cp.Results = append([]models.PageResult(nil), entry.Results...)
	s.entries[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrMissing
	}
	cp := *e
	cp.Results = append([]models.PageResult(nil), e.Results...)
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.CacheEntryInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]models.CacheEntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		infos = append(infos, e.Info())
	}
	return infos, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]*models.CacheEntry)
	s.mu.Unlock()
	return nil
}
