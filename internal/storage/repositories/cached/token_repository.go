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
// -- rt: Refresh token by jti
// -- authz: tag grouping refresh tokens of an authorization
const (
	refreshTokenKey  = "rt"
	authorizationTag = "authz"
)

// TokenCachedRepository cached repository allows gets/sets refresh tokens
type TokenCachedRepository struct {
	db    *postgres.ExtPool
	cache *redis2.CacheWrapper
}

// NewTokenCachedRepository creates an instance of TokenCachedRepository
func NewTokenCachedRepository(db *postgres.ExtPool, cache *redis2.CacheWrapper) *TokenCachedRepository {
	return &TokenCachedRepository{
		db:    db,
		cache: cache,
	}
}

// SaveRefreshToken persists a refresh token record
func (r *TokenCachedRepository) SaveRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refresh_tokens (id, authorization_urn, identity_urn, client_id, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.AuthorizationURN, t.IdentityURN, t.ClientID, t.Scope, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// RefreshToken gets refresh token record by jti
func (r *TokenCachedRepository) RefreshToken(ctx context.Context, id string) (*models.RefreshToken, error) {
	cacheKey := fmt.Sprintf("%s:%s", refreshTokenKey, id)
	var t models.RefreshToken
	if err := r.cache.Get(ctx, cacheKey, &t); err == nil {
		return &t, nil
	}

	err := r.db.QueryRow(ctx,
		`SELECT id, authorization_urn, identity_urn, client_id, scope, expires_at, created_at FROM refresh_tokens WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.AuthorizationURN, &t.IdentityURN, &t.ClientID, &t.Scope, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrTokenInvalid
		}
		return nil, fmt.Errorf("error while getting refresh token: %w", err)
	}

	_ = r.cache.Set(ctx, cacheKey, t, fmt.Sprintf("%s:%s", authorizationTag, t.AuthorizationURN)).Err()
	return &t, nil
}

// RevokeRefreshToken deletes a single refresh token
func (r *TokenCachedRepository) RevokeRefreshToken(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if err := r.cache.Invalidate(ctx, fmt.Sprintf("%s:%s", refreshTokenKey, id)); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrTokenInvalid
	}
	return nil
}

// RevokeAuthorizationTokens deletes every refresh token issued under an authorization
func (r *TokenCachedRepository) RevokeAuthorizationTokens(ctx context.Context, authorizationURN string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE authorization_urn = $1`, authorizationURN); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return r.cache.InvalidateByTag(ctx, fmt.Sprintf("%s:%s", authorizationTag, authorizationURN))
}
