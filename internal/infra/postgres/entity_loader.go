package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"reveal-challenge-service/internal/domain"
)

// EntityLoader loads the guessable entity pool from Postgres.
type EntityLoader struct {
	pool  *pgxpool.Pool
	limit int
}

func NewEntityLoader(pool *pgxpool.Pool, limit int) *EntityLoader {
	if limit <= 0 {
		limit = 120
	}
	return &EntityLoader{pool: pool, limit: limit}
}

// LoadEntities returns up to limit entities that have a display name.
// Rows with an unknown rarity are skipped.
func (l *EntityLoader) LoadEntities(ctx context.Context) ([]domain.Entity, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, display_name, rarity FROM entities WHERE display_name IS NOT NULL AND display_name <> '' ORDER BY id LIMIT $1`,
		l.limit)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()

	entities := make([]domain.Entity, 0, l.limit)
	for rows.Next() {
		var id, name, rawRarity string
		if err := rows.Scan(&id, &name, &rawRarity); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		rarity, err := domain.ParseRarity(rawRarity)
		if err != nil {
			continue
		}
		entities = append(entities, domain.Entity{ID: id, DisplayName: name, Rarity: rarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	return entities, nil
}
