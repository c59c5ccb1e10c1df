package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"passport/internal/domain/models"
	"passport/internal/storage"
	"passport/internal/storage/postgres"
)

const accountColumns = `urn, identity_urn, type, identifier, alias, picture, pass_hash, profile, created_at`

// IdentityRepository stores identities and the accounts connected to them
type IdentityRepository struct {
	db *postgres.ExtPool
}

// NewIdentityRepository creates new instance of IdentityRepository
func NewIdentityRepository(db *postgres.ExtPool) *IdentityRepository {
	return &IdentityRepository{
		db: db,
	}
}

// CreateIdentity saves a new identity together with its first account
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *models.Identity, account *models.Account) error {
	const op = "storage.repositories.CreateIdentity"

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO identities (urn, display_name, picture) VALUES ($1, $2, $3)`,
			identity.URN, identity.DisplayName, identity.Picture,
		); err != nil {
			return err
		}
		return insertAccount(ctx, tx, account)
	})
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return storage.ErrAccountExists
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Identity gets identity by urn
func (r *IdentityRepository) Identity(ctx context.Context, urn string) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.QueryRow(ctx,
		`SELECT urn, display_name, picture, created_at FROM identities WHERE urn = $1`,
		urn,
	).Scan(&identity.URN, &identity.DisplayName, &identity.Picture, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("error while getting identity: %w", err)
	}
	return &identity, nil
}

// UpdateIdentityProfile sets display name and picture of an identity
func (r *IdentityRepository) UpdateIdentityProfile(ctx context.Context, urn, displayName, picture string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE identities SET display_name = $2, picture = $3 WHERE urn = $1`,
		urn, displayName, picture,
	)
	if err != nil {
		return fmt.Errorf("error while updating identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrIdentityNotFound
	}
	return nil
}

// SaveAccount connects a new account to an existing identity
func (r *IdentityRepository) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := insertAccount(ctx, r.db, account); err != nil {
		if postgres.IsUniqueViolation(err) {
			return storage.ErrAccountExists
		}
		return fmt.Errorf("error while saving account: %w", err)
	}
	return nil
}

// UpdateAccount refreshes the provider data of an account
func (r *IdentityRepository) UpdateAccount(ctx context.Context, account *models.Account) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET alias = $2, picture = $3, profile = $4, pass_hash = COALESCE($5, pass_hash) WHERE urn = $1`,
		account.URN, account.Alias, account.Picture, profileOrEmpty(account.Profile), account.PassHash,
	)
	if err != nil {
		return fmt.Errorf("error while updating account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// Account gets account by urn
func (r *IdentityRepository) Account(ctx context.Context, urn string) (*models.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE urn = $1`, urn)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("error while getting account: %w", err)
	}
	return account, nil
}

// AccountsByIdentity lists accounts connected to an identity, oldest first
func (r *IdentityRepository) AccountsByIdentity(ctx context.Context, identityURN string) ([]models.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE identity_urn = $1 ORDER BY created_at, urn`,
		identityURN,
	)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account failed: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return accounts, nil
}

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertAccount(ctx context.Context, db execer, account *models.Account) error {
	_, err := db.Exec(ctx,
		`INSERT INTO accounts (urn, identity_urn, type, identifier, alias, picture, pass_hash, profile)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.URN,
		account.IdentityURN,
		string(account.Type),
		account.Identifier,
		account.Alias,
		account.Picture,
		account.PassHash,
		profileOrEmpty(account.Profile),
	)
	return err
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		account     models.Account
		accountType string
	)
	err := row.Scan(
		&account.URN,
		&account.IdentityURN,
		&accountType,
		&account.Identifier,
		&account.Alias,
		&account.Picture,
		&account.PassHash,
		&account.Profile,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Type = models.AccountType(accountType)
	return &account, nil
}

func profileOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
