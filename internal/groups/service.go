// Package groups manages carpool groups: named sets of commuters who have
// agreed to ride together.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/observability"
	"github.com/example/carpool-match/internal/storage"
)

type Service struct {
	Groups    storage.GroupStore
	Commuters storage.CommuterStore
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// ForCommuter returns the groups commuterID belongs to with members
// resolved. Members whose profile has since disappeared are left out.
func (s *Service) ForCommuter(ctx context.Context, commuterID string) ([]models.GroupView, error) {
	if _, err := s.Commuters.Get(ctx, commuterID); err != nil {
		return nil, err
	}
	groups, err := s.Groups.ListByMember(ctx, commuterID)
	if err != nil {
		return nil, fmt.Errorf("list groups for %s: %w", commuterID, err)
	}

	// members shared across groups are fetched once
	seen := make(map[string]*models.Commuter)
	views := make([]models.GroupView, 0, len(groups))
	for _, g := range groups {
		view := models.GroupView{ID: g.ID, Name: g.Name, CreatedAt: g.CreatedAt, Members: []models.GroupMember{}}
		for _, id := range g.MemberIDs {
			c, ok := seen[id]
			if !ok {
				c, err = s.Commuters.Get(ctx, id)
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					return nil, fmt.Errorf("load member %s: %w", id, err)
				}
				seen[id] = c
			}
			if c == nil {
				continue
			}
			view.Members = append(view.Members, models.GroupMember{ID: c.ID, Commuter: c.Public()})
		}
		views = append(views, view)
	}
	return views, nil
}

// Create starts a group with creatorID as its only member.
func (s *Service) Create(ctx context.Context, creatorID, name string) (*models.CarpoolGroup, error) {
	if _, err := s.Commuters.Get(ctx, creatorID); err != nil {
		return nil, err
	}
	g := &models.CarpoolGroup{
		ID:        s.newID(),
		Name:      strings.TrimSpace(name),
		MemberIDs: []string{creatorID},
		CreatedAt: s.now(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := s.Groups.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	observability.GroupChangesTotal.WithLabelValues("create").Inc()
	s.logger().Info("carpool group created", "group_id", g.ID, "creator_id", creatorID)
	return g, nil
}

func (s *Service) Delete(ctx context.Context, groupID string) error {
	if err := s.Groups.Delete(ctx, groupID); err != nil {
		return err
	}
	observability.GroupChangesTotal.WithLabelValues("delete").Inc()
	s.logger().Info("carpool group deleted", "group_id", groupID)
	return nil
}

// AddMember joins commuterID to the group and returns the updated group.
func (s *Service) AddMember(ctx context.Context, groupID, commuterID string) (*models.CarpoolGroup, error) {
	if _, err := s.Commuters.Get(ctx, commuterID); err != nil {
		return nil, err
	}
	if err := s.Groups.AddMember(ctx, groupID, commuterID); err != nil {
		return nil, err
	}
	observability.GroupChangesTotal.WithLabelValues("add_member").Inc()
	return s.Groups.Get(ctx, groupID)
}

// RemoveMember drops commuterID from the group. The group survives even
// when it ends up empty.
func (s *Service) RemoveMember(ctx context.Context, groupID, commuterID string) (*models.CarpoolGroup, error) {
	if err := s.Groups.RemoveMember(ctx, groupID, commuterID); err != nil {
		return nil, err
	}
	observability.GroupChangesTotal.WithLabelValues("remove_member").Inc()
	return s.Groups.Get(ctx, groupID)
}
