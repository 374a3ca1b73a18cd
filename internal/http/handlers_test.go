package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-match/internal/dispatch"
	"github.com/example/carpool-match/internal/groups"
	"github.com/example/carpool-match/internal/matcher"
	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ws := dispatch.NewWSRegistry(nil)
	svc := &matcher.Service{Store: store, Feed: ws}
	gs := &groups.Service{Groups: storage.NewMemoryGroupStore(), Commuters: store}
	return NewServer(svc, gs, ws, nil, nil), store
}

func skeleton(t *testing.T, id string, role models.Role, seats int, lat float64) models.Commuter {
	t.Helper()
	c, err := models.NewCommuterFromSkeleton(models.Skeleton{
		ID:           id,
		Role:         role,
		SeatAvail:    seats,
		CompanyCoord: models.Coord{Lat: 42.35, Lon: -71.06},
		StartCoord:   models.Coord{Lat: lat, Lon: -71.09},
		DaysWorking:  "0,1,1,1,1,1,0",
		StartTime:    "9:00",
		EndTime:      "17:00",
	})
	require.NoError(t, err)
	return c
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestPutThenRecommend(t *testing.T) {
	s, _ := newTestServer(t)

	for _, c := range []models.Commuter{
		skeleton(t, "r0", models.RoleRider, 0, 42.34),
		skeleton(t, "d1", models.RoleDriver, 2, 42.34),
		skeleton(t, "d2", models.RoleDriver, 1, 42.35),
		skeleton(t, "r1", models.RoleRider, 0, 42.34),
	} {
		rec := do(t, s, http.MethodPut, "/api/v1/commuters/"+c.ID, c)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, s, http.MethodGet, "/api/v1/commuters/r0/recommendations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var feed models.RecommendationFeed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, "r0", feed.CommuterID)
	require.Len(t, feed.Recommendations, 2)
	assert.Equal(t, "d1", feed.Recommendations[0].ID)
	assert.Equal(t, "d2", feed.Recommendations[1].ID)
	assert.Less(t, feed.Recommendations[0].Score, feed.Recommendations[1].Score)
}

func TestGetCommuterIsRedacted(t *testing.T) {
	s, store := newTestServer(t)
	c := skeleton(t, "d1", models.RoleDriver, 2, 42.34)
	require.NoError(t, store.Upsert(context.Background(), &c))

	rec := do(t, s, http.MethodGet, "/api/v1/commuters/d1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "User d1", body["name"])
	assert.NotContains(t, body, "start_coord")
	assert.NotContains(t, body, "company_address")
}

func TestErrorStatuses(t *testing.T) {
	s, store := newTestServer(t)
	pending := skeleton(t, "p", models.RoleRider, 0, 42.34)
	pending.IsOnboarded = false
	require.NoError(t, store.Upsert(context.Background(), &pending))

	rec := do(t, s, http.MethodGet, "/api/v1/commuters/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/commuters/missing/recommendations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/commuters/p/recommendations", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	bad := skeleton(t, "r9", models.RoleRider, 0, 42.34)
	bad.SeatAvail = 3
	rec = do(t, s, http.MethodPut, "/api/v1/commuters/r9", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "riders cannot offer seats")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/commuters/r9", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = do(t, s, http.MethodPut, "/api/v1/commuters/other", skeleton(t, "r9", models.RoleRider, 0, 42.34))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCommuterAssignsID(t *testing.T) {
	s, store := newTestServer(t)
	c := skeleton(t, "", models.RoleDriver, 1, 42.34)

	rec := do(t, s, http.MethodPost, "/api/v1/commuters", c)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Commuter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/v1/commuters/"+created.ID, rec.Header().Get("Location"))

	_, err := store.Get(context.Background(), created.ID)
	assert.NoError(t, err)
}

func TestGeoJSONExcludesCaller(t *testing.T) {
	s, store := newTestServer(t)
	for _, id := range []string{"a", "b"} {
		c := skeleton(t, id, models.RoleDriver, 1, 42.34)
		require.NoError(t, store.Upsert(context.Background(), &c))
	}
	inactive := skeleton(t, "z", models.RoleDriver, 1, 42.34)
	inactive.Status = models.StatusInactive
	require.NoError(t, store.Upsert(context.Background(), &inactive))

	rec := do(t, s, http.MethodGet, "/api/v1/commuters/geojson?exclude=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "b", fc.Features[0].Properties.ID)
	assert.Equal(t, [2]float64{-71.06, 42.35}, fc.Features[0].Geometry.Coordinates)
}

func TestHealthzAndRequestID(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWebSocketReceivesFeed(t *testing.T) {
	s, store := newTestServer(t)
	for _, c := range []models.Commuter{
		skeleton(t, "r0", models.RoleRider, 0, 42.34),
		skeleton(t, "d1", models.RoleDriver, 2, 42.34),
	} {
		require.NoError(t, store.Upsert(context.Background(), &c))
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/r0", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var feed models.RecommendationFeed
	require.NoError(t, conn.ReadJSON(&feed))
	assert.Equal(t, "r0", feed.CommuterID)
	require.Len(t, feed.Recommendations, 1)
	assert.Equal(t, "d1", feed.Recommendations[0].ID)
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFromError(storage.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFromError(matcher.ErrSubjectNotOnboarded))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFromError(models.ErrInvalidCommuter))
	assert.Equal(t, http.StatusNotFound, statusFromError(storage.ErrGroupNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFromError(models.ErrInvalidGroup))
	assert.Equal(t, http.StatusInternalServerError, statusFromError(assert.AnError))
}

func TestGroupLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	for _, c := range []models.Commuter{
		skeleton(t, "r0", models.RoleRider, 0, 42.34),
		skeleton(t, "d1", models.RoleDriver, 2, 42.34),
	} {
		rec := do(t, s, http.MethodPut, "/api/v1/commuters/"+c.ID, c)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, s, http.MethodPost, "/api/v1/commuters/r0/groups", map[string]string{"name": "Kendall crew"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g models.CarpoolGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	require.NotEmpty(t, g.ID)
	assert.Equal(t, []string{"r0"}, g.MemberIDs)

	rec = do(t, s, http.MethodPut, "/api/v1/groups/"+g.ID+"/members/d1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, []string{"d1", "r0"}, g.MemberIDs)

	rec = do(t, s, http.MethodGet, "/api/v1/commuters/d1/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []models.GroupView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Kendall crew", views[0].Name)
	require.Len(t, views[0].Members, 2)
	assert.NotContains(t, rec.Body.String(), "company_address")

	rec = do(t, s, http.MethodDelete, "/api/v1/groups/"+g.ID+"/members/r0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/commuters/r0/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, s, http.MethodDelete, "/api/v1/groups/"+g.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/groups/"+g.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupErrors(t *testing.T) {
	s, _ := newTestServer(t)
	c := skeleton(t, "r0", models.RoleRider, 0, 42.34)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/api/v1/commuters/r0", c).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"list for unknown commuter", http.MethodGet, "/api/v1/commuters/ghost/groups", nil, http.StatusNotFound},
		{"create for unknown commuter", http.MethodPost, "/api/v1/commuters/ghost/groups", map[string]string{"name": "x"}, http.StatusNotFound},
		{"blank name", http.MethodPost, "/api/v1/commuters/r0/groups", map[string]string{"name": " "}, http.StatusUnprocessableEntity},
		{"unknown field", http.MethodPost, "/api/v1/commuters/r0/groups", map[string]string{"title": "x"}, http.StatusBadRequest},
		{"add to unknown group", http.MethodPut, "/api/v1/groups/nope/members/r0", nil, http.StatusNotFound},
		{"remove from unknown group", http.MethodDelete, "/api/v1/groups/nope/members/r0", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
