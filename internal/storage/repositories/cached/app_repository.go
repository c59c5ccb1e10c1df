package cached

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"passport/internal/domain/models"
	"passport/internal/storage"
	"passport/internal/storage/postgres"
	redis2 "passport/internal/storage/redis"
)

// Redis keys
// -- app: Application by client id
// -- scopes: Scope catalog
const (
	appKey    = "app"
	scopesKey = "scopes"
)

const appColumns = `client_id, secret_hash, name, icon, redirect_uri, scopes, published, created_at`

// appRecord keeps the secret hash that models.App hides from json
type appRecord struct {
	models.App
	SecretHash []byte `json:"secret_hash"`
}

// AppCachedRepository cached repository allows gets/sets starbase applications
type AppCachedRepository struct {
	db    *postgres.ExtPool
	cache *redis2.CacheWrapper
}

// NewAppCachedRepository creates an instance of AppCachedRepository
func NewAppCachedRepository(db *postgres.ExtPool, cache *redis2.CacheWrapper) *AppCachedRepository {
	return &AppCachedRepository{
		db:    db,
		cache: cache,
	}
}

// SaveApp registers a new application
func (r *AppCachedRepository) SaveApp(ctx context.Context, app *models.App) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO apps (client_id, secret_hash, name, icon, redirect_uri, scopes, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		app.ClientID, app.SecretHash, app.Name, app.Icon, app.RedirectURI, app.Scopes, app.Published,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return storage.ErrAppExists
		}
		return fmt.Errorf("error while saving app: %w", err)
	}
	return nil
}

// App gets application by client id
// LazyLoading support
func (r *AppCachedRepository) App(ctx context.Context, clientID string) (*models.App, error) {
	cacheKey := fmt.Sprintf("%s:%s", appKey, clientID)
	var rec appRecord
	if err := r.cache.Get(ctx, cacheKey, &rec); err == nil {
		rec.App.SecretHash = rec.SecretHash
		return &rec.App, nil
	}

	var app models.App
	err := r.db.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE client_id = $1`, clientID).Scan(
		&app.ClientID, &app.SecretHash, &app.Name, &app.Icon, &app.RedirectURI, &app.Scopes, &app.Published, &app.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAppNotFound
		}
		return nil, fmt.Errorf("error while getting app: %w", err)
	}

	// write to cache to further getting operations will provide by cache
	_ = r.cache.Set(ctx, cacheKey, appRecord{App: app, SecretHash: app.SecretHash}, appKey).Err()
	return &app, nil
}

// Apps lists every registered application
func (r *AppCachedRepository) Apps(ctx context.Context) ([]models.App, error) {
	rows, err := r.db.Query(ctx, `SELECT `+appColumns+` FROM apps ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	defer rows.Close()

	var apps []models.App
	for rows.Next() {
		var app models.App
		if err := rows.Scan(
			&app.ClientID, &app.SecretHash, &app.Name, &app.Icon, &app.RedirectURI, &app.Scopes, &app.Published, &app.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning app failed: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateAppSecret replaces the client secret hash and drops the cached app
func (r *AppCachedRepository) UpdateAppSecret(ctx context.Context, clientID string, secretHash []byte) error {
	tag, err := r.db.Exec(ctx, `UPDATE apps SET secret_hash = $2 WHERE client_id = $1`, clientID, secretHash)
	if err != nil {
		return fmt.Errorf("error while updating app secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAppNotFound
	}
	return r.cache.Invalidate(ctx, fmt.Sprintf("%s:%s", appKey, clientID))
}
