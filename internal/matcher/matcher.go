// Package matcher turns stored commuter profiles into ranked carpool
// recommendations and fans profile changes out to the event stream and
// live sessions.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/carpool-match/internal/dispatch"
	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/observability"
	"github.com/example/carpool-match/internal/scoring"
	"github.com/example/carpool-match/internal/storage"
)

var ErrSubjectNotOnboarded = errors.New("commuter has not finished onboarding")

type Publisher interface {
	PublishProfile(ctx context.Context, ev models.ProfileEvent) error
}

type Feed interface {
	Push(commuterID string, feed models.RecommendationFeed) error
	// Sessions lists commuters currently connected.
	Sessions() []string
}

// Service wires the scoring engine to storage. Publisher and Feed are
// optional.
type Service struct {
	Store     storage.CommuterStore
	Publisher Publisher
	Feed      Feed
	Logger    *slog.Logger
	Now       func() time.Time
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

// Recommend ranks every other active, onboarded commuter for subjectID,
// best match first.
func (s *Service) Recommend(ctx context.Context, subjectID string) ([]models.RankedCommuter, error) {
	subject, err := s.Store.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !subject.IsOnboarded {
		return nil, ErrSubjectNotOnboarded
	}
	candidates, err := s.Store.ListCandidates(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	start := time.Now()
	ranking, err := scoring.RankCommuters(*subject, candidates)
	observability.ScoringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", subjectID, err)
	}
	for reason, n := range ranking.Excluded {
		observability.CandidatesExcluded.WithLabelValues(string(reason)).Add(float64(n))
	}
	observability.CandidatesScored.Add(float64(len(ranking.Recommendations)))
	observability.RecommendationsTotal.Inc()

	byID := make(map[string]models.Commuter, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	out := make([]models.RankedCommuter, 0, len(ranking.Recommendations))
	for _, rec := range ranking.Recommendations {
		out = append(out, models.RankedCommuter{ID: rec.ID, Score: rec.Score, Commuter: byID[rec.ID].Public()})
	}

	s.logger().Debug("scored candidate pool",
		"commuter_id", subjectID,
		"pool", len(candidates),
		"included", len(out),
	)
	return out, nil
}

// RecommendationFeed is Recommend stamped with the subject and time.
func (s *Service) RecommendationFeed(ctx context.Context, subjectID string) (models.RecommendationFeed, error) {
	recs, err := s.Recommend(ctx, subjectID)
	if err != nil {
		return models.RecommendationFeed{}, err
	}
	return models.RecommendationFeed{CommuterID: subjectID, Recommendations: recs, GeneratedAt: s.now()}, nil
}

// UpdateProfile validates and stores c. Publishing the change event and
// refreshing live feeds are best-effort. Every connected commuter gets a
// fresh feed, since a write can change anyone's candidate pool.
func (s *Service) UpdateProfile(ctx context.Context, c *models.Commuter) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.Store.Upsert(ctx, c); err != nil {
		return fmt.Errorf("store commuter %s: %w", c.ID, err)
	}

	if s.Publisher != nil {
		ev := models.ProfileEvent{CommuterID: c.ID, Status: c.Status, IsOnboarded: c.IsOnboarded, UpdatedAt: c.UpdatedAt}
		if err := s.Publisher.PublishProfile(ctx, ev); err != nil {
			observability.ProfileEventsTotal.WithLabelValues("publish", "error").Inc()
			s.logger().Warn("profile event publish failed", "commuter_id", c.ID, "error", err)
		} else {
			observability.ProfileEventsTotal.WithLabelValues("publish", "ok").Inc()
		}
	}

	if s.Feed != nil {
		s.refreshFeeds(ctx)
	}
	return nil
}

func (s *Service) refreshFeeds(ctx context.Context) {
	for _, id := range s.Feed.Sessions() {
		if ctx.Err() != nil {
			return
		}
		s.pushFeed(ctx, id)
	}
}

func (s *Service) pushFeed(ctx context.Context, commuterID string) {
	feed, err := s.RecommendationFeed(ctx, commuterID)
	switch {
	case errors.Is(err, ErrSubjectNotOnboarded), errors.Is(err, storage.ErrNotFound):
		s.logger().Debug("no feed for session", "commuter_id", commuterID, "error", err)
		return
	case err != nil:
		s.logger().Warn("recommendation refresh failed", "commuter_id", commuterID, "error", err)
		return
	}
	if err := s.Feed.Push(commuterID, feed); err != nil && !errors.Is(err, dispatch.ErrNoSession) {
		s.logger().Warn("recommendation push failed", "commuter_id", commuterID, "error", err)
	}
}
