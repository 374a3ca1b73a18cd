package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-match/internal/dispatch"
	"github.com/example/carpool-match/internal/groups"
	"github.com/example/carpool-match/internal/matcher"
	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/storage"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Matcher *matcher.Service
	Groups  *groups.Service
	Store   storage.CommuterStore
	WSReg   *dispatch.WSRegistry
	// Ready is checked by /healthz when set.
	Ready    Pinger
	NewRelic *newrelic.Application

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(m *matcher.Service, g *groups.Service, ws *dispatch.WSRegistry, logger *slog.Logger, nrApp *newrelic.Application) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Matcher:  m,
		Groups:   g,
		Store:    m.Store,
		WSReg:    ws,
		NewRelic: nrApp,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	// geojson must be registered before {id} or it is captured as an id.
	api.HandleFunc("/commuters/geojson", s.handleGeoJSON).Methods(http.MethodGet)
	api.HandleFunc("/commuters", s.handleCreateCommuter).Methods(http.MethodPost)
	api.HandleFunc("/commuters/{id}", s.handleGetCommuter).Methods(http.MethodGet)
	api.HandleFunc("/commuters/{id}", s.handlePutCommuter).Methods(http.MethodPut)
	api.HandleFunc("/commuters/{id}/recommendations", s.handleRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/commuters/{id}/groups", s.handleListGroups).Methods(http.MethodGet)
	api.HandleFunc("/commuters/{id}/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}", s.handleDeleteGroup).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/members/{commuter_id}", s.handleAddGroupMember).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}/members/{commuter_id}", s.handleRemoveGroupMember).Methods(http.MethodDelete)

	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{commuter_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready.Ping(r.Context()); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	feed, err := s.Matcher.RecommendationFeed(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleGetCommuter(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Public())
}

func (s *Server) handlePutCommuter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var c models.Commuter
	if err := decodeJSON(r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if c.ID != "" && c.ID != id {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "body id does not match path"})
		return
	}
	c.ID = id
	if err := s.Matcher.UpdateProfile(r.Context(), &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCommuter(w http.ResponseWriter, r *http.Request) {
	var c models.Commuter
	if err := decodeJSON(r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	c.ID = uuid.NewString()
	if err := s.Matcher.UpdateProfile(r.Context(), &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/commuters/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	pool, err := s.Store.ListPool(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if exclude := r.URL.Query().Get("exclude"); exclude != "" {
		pool = storage.ExcludeSubject(pool, exclude)
	}
	writeJSON(w, http.StatusOK, companyFeatures(pool))
}

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

// handleWS keeps one live recommendation feed per commuter. The first
// frame is the current feed; later frames follow profile updates.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["commuter_id"]
	if _, err := s.Store.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "commuter_id", id, "error", err)
		return
	}
	s.WSReg.Add(id, conn)

	if feed, err := s.Matcher.RecommendationFeed(r.Context(), id); err == nil {
		_ = s.WSReg.Push(id, feed)
	}

	go func() {
		defer func() {
			s.WSReg.Remove(id, conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFromError maps domain errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidCommuter), errors.Is(err, models.ErrInvalidGroup):
		return http.StatusUnprocessableEntity
	case errors.Is(err, matcher.ErrSubjectNotOnboarded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"route", routeTemplate(r),
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		if txn := newrelic.FromContext(r.Context()); txn != nil {
			txn.NoticeError(err)
		}
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
