package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"reveal-challenge-service/internal/domain"
)

const poolKey = "pool"

// EntityLoader fetches the entity pool from a backing store (e.g., Postgres).
type EntityLoader interface {
	LoadEntities(ctx context.Context) ([]domain.Entity, error)
}

// EntityRepository caches the entity pool with TTL to avoid repeated DB hits.
type EntityRepository struct {
	loader EntityLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	pool      []domain.Entity
	expiresAt time.Time
}

func NewEntityRepository(loader EntityLoader, ttl time.Duration) *EntityRepository {
	return &EntityRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ListEntities returns the cached pool, reloading it once it expires.
// Concurrent misses share a single load.
func (r *EntityRepository) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	if pool, ok := r.cached(r.clock()); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(poolKey, func() (interface{}, error) {
		now := r.clock()
		if pool, ok := r.cached(now); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadEntities(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		// an empty pool is returned but not kept, so a later start can see new rows
		if len(pool) > 0 {
			r.pool = pool
			r.expiresAt = now.Add(r.ttlWithJitter())
		}
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePool(result.([]domain.Entity)), nil
}

func (r *EntityRepository) cached(now time.Time) ([]domain.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pool != nil && r.expiresAt.After(now) {
		return clonePool(r.pool), true
	}
	return nil, false
}

func (r *EntityRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func clonePool(pool []domain.Entity) []domain.Entity {
	out := make([]domain.Entity, len(pool))
	copy(out, pool)
	return out
}

// StaticEntityLoader is a simple loader backed by a fixed slice (useful for tests/demos).
type StaticEntityLoader struct {
	entities []domain.Entity
}

func NewStaticEntityLoader(entities []domain.Entity) *StaticEntityLoader {
	return &StaticEntityLoader{entities: entities}
}

func (l *StaticEntityLoader) LoadEntities(_ context.Context) ([]domain.Entity, error) {
	return clonePool(l.entities), nil
}
