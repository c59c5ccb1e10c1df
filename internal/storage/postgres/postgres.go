package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// unique_violation
const uniqueViolation = "23505"

// ExtPool is a pgx pool with transaction helpers shared by the repositories
type ExtPool struct {
	*pgxpool.Pool
}

// New initialize an instance of storage db context
func New(ctx context.Context, connString string) (*ExtPool, error) {
	const op = "storage.postgres.New"

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%s: error connecting to database: %w", op, err)
	}

	return &ExtPool{Pool: pool}, nil
}

// WithTx runs fn in a transaction, committing when fn returns nil
func (p *ExtPool) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("error rolling back transaction: %w", rollbackErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a duplicate key error
func IsUniqueViolation(err error) bool {
	var pgxError *pgconn.PgError
	return errors.As(err, &pgxError) && pgxError.Code == uniqueViolation
}
