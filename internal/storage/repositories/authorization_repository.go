package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"passport/internal/domain/models"
	"passport/internal/storage"
	"passport/internal/storage/postgres"
)

const authorizationColumns = `urn, identity_urn, client_id, scope, persona, created_at, updated_at`

// AuthorizationRepository stores the consent identities gave to applications
type AuthorizationRepository struct {
	db *postgres.ExtPool
}

// NewAuthorizationRepository creates new instance of AuthorizationRepository
func NewAuthorizationRepository(db *postgres.ExtPool) *AuthorizationRepository {
	return &AuthorizationRepository{
		db: db,
	}
}

// UpsertAuthorization records a grant; scopes accumulate across grants and persona data is replaced
func (r *AuthorizationRepository) UpsertAuthorization(ctx context.Context, a *models.Authorization) (*models.Authorization, error) {
	const op = "storage.repositories.UpsertAuthorization"

	row := r.db.QueryRow(ctx,
		`INSERT INTO authorizations (urn, identity_urn, client_id, scope, persona)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_urn, client_id) DO UPDATE SET
			scope = ARRAY(SELECT DISTINCT s FROM unnest(authorizations.scope || EXCLUDED.scope) AS s ORDER BY s),
			persona = EXCLUDED.persona,
			updated_at = now()
		RETURNING `+authorizationColumns,
		a.URN, a.IdentityURN, a.ClientID, a.Scope, a.Persona,
	)
	saved, err := scanAuthorization(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// Authorization gets the grant of an identity to a client
func (r *AuthorizationRepository) Authorization(ctx context.Context, identityURN, clientID string) (*models.Authorization, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE identity_urn = $1 AND client_id = $2`,
		identityURN, clientID,
	)
	a, err := scanAuthorization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAuthorizationNotFound
		}
		return nil, fmt.Errorf("error while getting authorization: %w", err)
	}
	return a, nil
}

// AuthorizationsByIdentity lists every application an identity authorized
func (r *AuthorizationRepository) AuthorizationsByIdentity(ctx context.Context, identityURN string) ([]models.Authorization, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE identity_urn = $1 ORDER BY created_at`,
		identityURN,
	)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Authorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning authorization failed: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

// DeleteAuthorization removes a grant; its refresh tokens go with it
func (r *AuthorizationRepository) DeleteAuthorization(ctx context.Context, identityURN, clientID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM authorizations WHERE identity_urn = $1 AND client_id = $2`,
		identityURN, clientID,
	)
	if err != nil {
		return fmt.Errorf("error while deleting authorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAuthorizationNotFound
	}
	return nil
}

func scanAuthorization(row pgx.Row) (*models.Authorization, error) {
	var a models.Authorization
	if err := row.Scan(&a.URN, &a.IdentityURN, &a.ClientID, &a.Scope, &a.Persona, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
