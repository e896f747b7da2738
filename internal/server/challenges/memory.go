package challenges

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// MemoryStore is an in-process Store for single-instance deployments.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]models.Challenge
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{items: make(map[string]models.Challenge), now: now}
}

func (s *MemoryStore) Put(_ context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	s.items[c.ID] = *c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveLocked(id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveLocked(id)
	if !ok {
		return 0, common.ErrorNotFound
	}
	c.Attempts++
	s.items[id] = c
	return c.Attempts, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, id)
	return nil
}

func (s *MemoryStore) liveLocked(id string) (models.Challenge, bool) {
	c, ok := s.items[id]
	if !ok {
		return models.Challenge{}, false
	}
	if !s.now().Before(c.ExpiresAt) {
		delete(s.items, id)
		return models.Challenge{}, false
	}
	return c, true
}

// purgeLocked drops expired entries so abandoned logins do not accumulate.
func (s *MemoryStore) purgeLocked() {
	now := s.now()
	for id, c := range s.items {
		if !now.Before(c.ExpiresAt) {
			delete(s.items, id)
		}
	}
}
