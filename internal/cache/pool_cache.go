package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/observability"
	"github.com/example/carpool-match/internal/storage"
)

const (
	PoolKey        = "carpool:pool:active"
	DefaultPoolTTL = 30 * time.Second
)

// Client is the subset of *redis.Client the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// PoolCache keeps the ACTIVE, onboarded commuter pool as one JSON value.
type PoolCache struct {
	client Client
	ttl    time.Duration
}

func NewPoolCache(client Client, ttl time.Duration) *PoolCache {
	if ttl <= 0 {
		ttl = DefaultPoolTTL
	}
	return &PoolCache{client: client, ttl: ttl}
}

// Get returns (nil, false, nil) on a miss.
func (p *PoolCache) Get(ctx context.Context) ([]models.Commuter, bool, error) {
	data, err := p.client.Get(ctx, PoolKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var pool []models.Commuter
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

func (p *PoolCache) Set(ctx context.Context, pool []models.Commuter) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, PoolKey, data, p.ttl).Err()
}

func (p *PoolCache) Invalidate(ctx context.Context) error {
	return p.client.Del(ctx, PoolKey).Err()
}

// CachedStore serves candidate pools from the cache and falls through to
// the wrapped store on a miss or a cache error.
//
// gen counts local writes. A pool read from the store is only left in the
// cache if no write landed while it was being read and stored; otherwise
// it is dropped again. Writes from other processes are handled by the
// profile event consumer.
type CachedStore struct {
	storage.CommuterStore
	cache  *PoolCache
	logger *slog.Logger
	gen    atomic.Uint64
}

func NewCachedStore(inner storage.CommuterStore, cache *PoolCache, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{CommuterStore: inner, cache: cache, logger: logger}
}

func (s *CachedStore) ListPool(ctx context.Context) ([]models.Commuter, error) {
	pool, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("pool cache read failed", "error", err)
	}
	if ok {
		observability.PoolCacheHits.Inc()
		return pool, nil
	}
	observability.PoolCacheMisses.Inc()

	gen := s.gen.Load()
	pool, err = s.CommuterStore.ListPool(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, pool); err != nil {
		s.logger.Warn("pool cache write failed", "error", err)
		return pool, nil
	}
	if s.gen.Load() != gen {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("stale pool invalidation failed", "error", err)
		}
	}
	return pool, nil
}

func (s *CachedStore) ListCandidates(ctx context.Context, subjectID string) ([]models.Commuter, error) {
	pool, err := s.ListPool(ctx)
	if err != nil {
		return nil, err
	}
	return storage.ExcludeSubject(pool, subjectID), nil
}

func (s *CachedStore) Upsert(ctx context.Context, c *models.Commuter) error {
	if err := s.CommuterStore.Upsert(ctx, c); err != nil {
		return err
	}
	s.gen.Add(1)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("pool cache invalidation failed", "commuter_id", c.ID, "error", err)
	}
	return nil
}
