package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"reveal-challenge-service/internal/domain"
)

// EntityLoader fetches the entity pool from a backing store (e.g., Postgres).
type EntityLoader interface {
	LoadEntities(ctx context.Context) ([]domain.Entity, error)
}

// EntityRepository caches the entity pool in Redis as one JSON document and
// falls back to a loader on cache miss.
// Stored as: SET challenge:entities:{category} [{"id":..,"displayName":..,"rarity":..}]
type EntityRepository struct {
	client   *redis.Client
	loader   EntityLoader
	category string
	ttl      time.Duration
	sf       singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewEntityRepository(client *redis.Client, loader EntityLoader, category string, ttl time.Duration) *EntityRepository {
	return &EntityRepository{
		client:   client,
		loader:   loader,
		category: category,
		ttl:      ttl,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *EntityRepository) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	key := r.key()
	if pool, ok := r.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := r.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadEntities(ctx)
		if err != nil {
			return nil, err
		}
		if len(pool) == 0 {
			return pool, nil
		}

		raw, err := json.Marshal(pool)
		if err != nil {
			return nil, err
		}
		// best-effort fill; a failed write only costs another load
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Entity), nil
}

func (r *EntityRepository) cached(ctx context.Context, key string) ([]domain.Entity, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.Entity
	if err := json.Unmarshal(raw, &pool); err != nil || len(pool) == 0 {
		return nil, false
	}
	return pool, true
}

func (r *EntityRepository) key() string {
	return "challenge:entities:" + r.category
}

func (r *EntityRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
