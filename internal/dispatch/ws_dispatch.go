package dispatch

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/carpool-match/internal/models"
)

var ErrNoSession = errors.New("no ws session")

const writeWait = 5 * time.Second

// WSSession is one connected commuter.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(feed models.RecommendationFeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(feed)
}

// WSRegistry holds at most one live session per commuter.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

// Add registers conn for the commuter, closing any session it replaces.
func (r *WSRegistry) Add(commuterID string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.sessions[commuterID]
	r.sessions[commuterID] = &WSSession{conn: conn}
	r.mu.Unlock()
	if old != nil && old.conn != conn {
		_ = old.conn.Close()
	}
}

// Remove drops the session only if conn is still the registered one.
func (r *WSRegistry) Remove(commuterID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[commuterID]; ok && s.conn == conn {
		delete(r.sessions, commuterID)
	}
}

// Sessions lists the commuters with a live session, sorted by id.
func (r *WSRegistry) Sessions() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *WSRegistry) Push(commuterID string, feed models.RecommendationFeed) error {
	r.mu.RLock()
	s, ok := r.sessions[commuterID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(feed); err != nil {
		r.logger.Warn("ws send failed", "commuter_id", commuterID, "error", err)
		return err
	}
	return nil
}
