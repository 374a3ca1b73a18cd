package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/carpool-match/internal/models"
)

var ErrNotFound = errors.New("commuter not found")

// CommuterStore defines persistence operations for commuter profiles.
type CommuterStore interface {
	Get(ctx context.Context, id string) (*models.Commuter, error)
	// ListPool returns every ACTIVE, onboarded commuter ordered by id.
	ListPool(ctx context.Context) ([]models.Commuter, error)
	// ListCandidates is ListPool without the subject.
	ListCandidates(ctx context.Context, subjectID string) ([]models.Commuter, error)
	Upsert(ctx context.Context, c *models.Commuter) error
}

type MemoryStore struct {
	mu        sync.RWMutex
	commuters map[string]models.Commuter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{commuters: make(map[string]models.Commuter)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Commuter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commuters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListPool(ctx context.Context) ([]models.Commuter, error) {
	return m.list(""), nil
}

func (m *MemoryStore) ListCandidates(ctx context.Context, subjectID string) ([]models.Commuter, error) {
	return m.list(subjectID), nil
}

func (m *MemoryStore) list(exclude string) []models.Commuter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Commuter, 0, len(m.commuters))
	for id, c := range m.commuters {
		if id == exclude || !InPool(c) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) Upsert(ctx context.Context, c *models.Commuter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.commuters[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.commuters[c.ID] = *c
	return nil
}

// InPool reports whether c may be offered to other commuters.
func InPool(c models.Commuter) bool {
	return c.Status == models.StatusActive && c.IsOnboarded
}

// ExcludeSubject filters the subject out of an id-ordered pool, keeping order.
func ExcludeSubject(pool []models.Commuter, subjectID string) []models.Commuter {
	out := make([]models.Commuter, 0, len(pool))
	for _, c := range pool {
		if c.ID != subjectID {
			out = append(out, c)
		}
	}
	return out
}
