package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/carpool-match/internal/models"
)

var ErrGroupNotFound = errors.New("carpool group not found")

// GroupStore persists carpool groups and their membership. Member ids come
// back in byte order.
type GroupStore interface {
	Get(ctx context.Context, id string) (*models.CarpoolGroup, error)
	// ListByMember returns the groups commuterID belongs to, oldest first.
	ListByMember(ctx context.Context, commuterID string) ([]models.CarpoolGroup, error)
	Create(ctx context.Context, g *models.CarpoolGroup) error
	Delete(ctx context.Context, id string) error
	// AddMember and RemoveMember are idempotent.
	AddMember(ctx context.Context, groupID, commuterID string) error
	RemoveMember(ctx context.Context, groupID, commuterID string) error
}

type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]models.CarpoolGroup
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[string]models.CarpoolGroup)}
}

func (m *MemoryGroupStore) Get(ctx context.Context, id string) (*models.CarpoolGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	g = cloneGroup(g)
	return &g, nil
}

func (m *MemoryGroupStore) ListByMember(ctx context.Context, commuterID string) ([]models.CarpoolGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CarpoolGroup
	for _, g := range m.groups {
		if hasMember(g, commuterID) {
			out = append(out, cloneGroup(g))
		}
	}
	sortGroups(out)
	return out, nil
}

func (m *MemoryGroupStore) Create(ctx context.Context, g *models.CarpoolGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.MemberIDs = normalizeMembers(g.MemberIDs)
	m.groups[g.ID] = cloneGroup(*g)
	return nil
}

func (m *MemoryGroupStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return ErrGroupNotFound
	}
	delete(m.groups, id)
	return nil
}

func (m *MemoryGroupStore) AddMember(ctx context.Context, groupID, commuterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	g.MemberIDs = normalizeMembers(append(g.MemberIDs, commuterID))
	m.groups[groupID] = g
	return nil
}

func (m *MemoryGroupStore) RemoveMember(ctx context.Context, groupID, commuterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	members := make([]string, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if id != commuterID {
			members = append(members, id)
		}
	}
	g.MemberIDs = members
	m.groups[groupID] = g
	return nil
}

func hasMember(g models.CarpoolGroup, commuterID string) bool {
	for _, id := range g.MemberIDs {
		if id == commuterID {
			return true
		}
	}
	return false
}

// normalizeMembers sorts and deduplicates member ids.
func normalizeMembers(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneGroup(g models.CarpoolGroup) models.CarpoolGroup {
	g.MemberIDs = append([]string(nil), g.MemberIDs...)
	if g.MemberIDs == nil {
		g.MemberIDs = []string{}
	}
	return g
}

func sortGroups(gs []models.CarpoolGroup) {
	sort.Slice(gs, func(i, j int) bool {
		if !gs[i].CreatedAt.Equal(gs[j].CreatedAt) {
			return gs[i].CreatedAt.Before(gs[j].CreatedAt)
		}
		return gs[i].ID < gs[j].ID
	})
}
