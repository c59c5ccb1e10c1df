package cached

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"passport/internal/domain/models"
	"passport/internal/storage/postgres"
	redis2 "passport/internal/storage/redis"
)

// ScopeCachedRepository serves the scope catalog
type ScopeCachedRepository struct {
	db    *postgres.ExtPool
	cache *redis2.CacheWrapper
}

// NewScopeCachedRepository creates an instance of ScopeCachedRepository
func NewScopeCachedRepository(db *postgres.ExtPool, cache *redis2.CacheWrapper) *ScopeCachedRepository {
	return &ScopeCachedRepository{
		db:    db,
		cache: cache,
	}
}

// Scopes returns the whole catalog ordered by name
func (r *ScopeCachedRepository) Scopes(ctx context.Context) ([]models.Scope, error) {
	var scopes []models.Scope
	if err := r.cache.Get(ctx, scopesKey, &scopes); err == nil {
		return scopes, nil
	}

	rows, err := r.db.Query(ctx, `SELECT name, description, claims, hidden FROM scopes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Scope
		if err := rows.Scan(&s.Name, &s.Description, &s.Claims, &s.Hidden); err != nil {
			return nil, fmt.Errorf("scanning scope failed: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	_ = r.cache.Set(ctx, scopesKey, scopes).Err()
	return scopes, nil
}

// ValidateScope returns the requested scopes missing from the catalog
func (r *ScopeCachedRepository) ValidateScope(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	// pgx automatically converts []string to PostgreSQL array
	rows, err := r.db.Query(ctx, `SELECT name FROM scopes WHERE name = ANY($1)`, requested)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning scope name failed: %w", err)
		}
		known[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	var unknown []string
	for _, s := range requested {
		if _, ok := known[s]; !ok {
			unknown = append(unknown, s)
		}
	}
	return unknown, nil
}

// SaveScopes upserts catalog entries and drops the cached catalog
func (r *ScopeCachedRepository) SaveScopes(ctx context.Context, scopes []models.Scope) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, s := range scopes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO scopes (name, description, claims, hidden) VALUES ($1, $2, $3, $4)
				ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, claims = EXCLUDED.claims, hidden = EXCLUDED.hidden`,
				s.Name, s.Description, s.Claims, s.Hidden,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error while saving scopes: %w", err)
	}
	return r.cache.Invalidate(ctx, scopesKey)
}
