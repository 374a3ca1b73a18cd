package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-match/internal/days"
	"github.com/example/carpool-match/internal/dispatch"
	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/storage"
)

type fakePublisher struct {
	events []models.ProfileEvent
	err    error
}

func (f *fakePublisher) PublishProfile(ctx context.Context, ev models.ProfileEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakeFeed struct {
	sessions []string
	pushed   map[string]models.RecommendationFeed
	err      error
}

func (f *fakeFeed) Sessions() []string { return f.sessions }

func (f *fakeFeed) Push(id string, feed models.RecommendationFeed) error {
	if f.err != nil {
		return f.err
	}
	if f.pushed == nil {
		f.pushed = map[string]models.RecommendationFeed{}
	}
	f.pushed[id] = feed
	return nil
}

var (
	home   = models.Coord{Lat: 42.34, Lon: -71.09}
	office = models.Coord{Lat: 42.35, Lon: -71.06}
)

func commuter(t *testing.T, id string, role models.Role, seats int, start models.Coord) models.Commuter {
	t.Helper()
	c, err := models.NewCommuterFromSkeleton(models.Skeleton{
		ID:           id,
		Role:         role,
		SeatAvail:    seats,
		CompanyCoord: office,
		StartCoord:   start,
		DaysWorking:  "0,1,1,1,1,1,0",
		StartTime:    "9:00",
		EndTime:      "17:00",
	})
	require.NoError(t, err)
	return c
}

func newService(t *testing.T, cs ...models.Commuter) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	for i := range cs {
		require.NoError(t, store.Upsert(context.Background(), &cs[i]))
	}
	return &Service{Store: store}, store
}

func TestRecommendRanksEligibleDrivers(t *testing.T) {
	svc, _ := newService(t,
		commuter(t, "r0", models.RoleRider, 0, home),
		commuter(t, "d2", models.RoleDriver, 2, models.Coord{Lat: home.Lat + 0.01, Lon: home.Lon}),
		commuter(t, "d1", models.RoleDriver, 1, home),
		commuter(t, "r1", models.RoleRider, 0, home),
		commuter(t, "full", models.RoleDriver, 0, home),
		commuter(t, "far", models.RoleDriver, 3, models.Coord{Lat: home.Lat + 0.2, Lon: home.Lon}),
	)

	recs, err := svc.Recommend(context.Background(), "r0")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "d1", recs[0].ID)
	assert.Equal(t, "d2", recs[1].ID)
	assert.InDelta(t, 0.0, recs[0].Score, 1e-9)
	assert.InDelta(t, 0.01*88/4*0.2, recs[1].Score, 1e-9)
	assert.Equal(t, "User d1", recs[0].Commuter.Name)
	assert.Equal(t, models.RoleDriver, recs[1].Commuter.Role)
}

func TestRecommendErrors(t *testing.T) {
	pending := commuter(t, "p", models.RoleRider, 0, home)
	pending.IsOnboarded = false
	broken := commuter(t, "b", models.RoleDriver, 1, home)
	broken.DaysWorking = "1,1,1"
	svc, _ := newService(t, commuter(t, "r0", models.RoleRider, 0, home), pending)

	_, err := svc.Recommend(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Recommend(context.Background(), "p")
	assert.ErrorIs(t, err, ErrSubjectNotOnboarded)

	require.NoError(t, svc.Store.Upsert(context.Background(), &broken))
	_, err = svc.Recommend(context.Background(), "r0")
	assert.ErrorIs(t, err, days.ErrMalformedMask)
}

func TestRecommendationFeedStamp(t *testing.T) {
	svc, _ := newService(t, commuter(t, "r0", models.RoleRider, 0, home))
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return at }

	feed, err := svc.RecommendationFeed(context.Background(), "r0")
	require.NoError(t, err)
	assert.Equal(t, "r0", feed.CommuterID)
	assert.Equal(t, at, feed.GeneratedAt)
	assert.Empty(t, feed.Recommendations)
}

func TestUpdateProfilePublishesAndPushes(t *testing.T) {
	svc, store := newService(t, commuter(t, "d1", models.RoleDriver, 1, home))
	pub := &fakePublisher{}
	feed := &fakeFeed{sessions: []string{"r0"}}
	svc.Publisher = pub
	svc.Feed = feed

	r := commuter(t, "r0", models.RoleRider, 0, home)
	require.NoError(t, svc.UpdateProfile(context.Background(), &r))

	stored, err := store.Get(context.Background(), "r0")
	require.NoError(t, err)
	assert.False(t, stored.UpdatedAt.IsZero())

	require.Len(t, pub.events, 1)
	assert.Equal(t, "r0", pub.events[0].CommuterID)
	assert.Equal(t, models.StatusActive, pub.events[0].Status)

	pushed, ok := feed.pushed["r0"]
	require.True(t, ok)
	require.Len(t, pushed.Recommendations, 1)
	assert.Equal(t, "d1", pushed.Recommendations[0].ID)
}

func TestUpdateProfileSideEffectsAreBestEffort(t *testing.T) {
	svc, _ := newService(t)
	svc.Publisher = &fakePublisher{err: errors.New("broker down")}
	svc.Feed = &fakeFeed{sessions: []string{"r0"}, err: dispatch.ErrNoSession}

	r := commuter(t, "r0", models.RoleRider, 0, home)
	assert.NoError(t, svc.UpdateProfile(context.Background(), &r))
}

func TestUpdateProfileRefreshesEveryLiveSession(t *testing.T) {
	idle := commuter(t, "idle", models.RoleRider, 0, home)
	idle.Status = models.StatusInactive
	pending := commuter(t, "pending", models.RoleRider, 0, home)
	pending.IsOnboarded = false
	svc, _ := newService(t, commuter(t, "r1", models.RoleRider, 0, home), idle, pending)
	feed := &fakeFeed{sessions: []string{"gone", "idle", "pending", "r1"}}
	svc.Feed = feed

	d := commuter(t, "d1", models.RoleDriver, 2, home)
	require.NoError(t, svc.UpdateProfile(context.Background(), &d))

	for _, id := range []string{"r1", "idle"} {
		got, ok := feed.pushed[id]
		require.True(t, ok, "no feed pushed to %s", id)
		require.Len(t, got.Recommendations, 1)
		assert.Equal(t, "d1", got.Recommendations[0].ID)
	}
	assert.NotContains(t, feed.pushed, "pending")
	assert.NotContains(t, feed.pushed, "gone")
	assert.NotContains(t, feed.pushed, "d1")
}

func TestUpdateProfileRejectsInvalid(t *testing.T) {
	svc, store := newService(t)
	pub := &fakePublisher{}
	svc.Publisher = pub

	r := commuter(t, "r0", models.RoleRider, 0, home)
	r.SeatAvail = 2
	err := svc.UpdateProfile(context.Background(), &r)
	assert.ErrorIs(t, err, models.ErrInvalidCommuter)
	assert.Empty(t, pub.events)

	_, err = store.Get(context.Background(), "r0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
