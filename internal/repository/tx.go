package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/orderflow/internal/db"
	"github.com/nikolayk812/orderflow/internal/port"
)

// withTx executes fn within a transaction if the repository was created with a pool,
// or uses the existing transaction if the repository was created with a transaction
func withTx[T any](ctx context.Context, dbtx db.DBTX, fn func(q *db.Queries) (T, error)) (T, error) {
	var result T

	err := inTx(ctx, dbtx, func(tx pgx.Tx) error {
		var err error
		result, err = fn(db.New(tx))
		return err
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("withTx: %w", err)
	}

	return result, nil
}

func inTx(ctx context.Context, dbtx db.DBTX, fn func(tx pgx.Tx) error) (txErr error) {
	// Already in a transaction, just use it
	if tx, ok := dbtx.(pgx.Tx); ok {
		return fn(tx)
	}

	// Must be a pool, create a new transaction
	pool, ok := dbtx.(*pgxpool.Pool)
	if !ok {
		return fmt.Errorf("dbtx is neither pgx.Tx nor *pgxpool.Pool: %T", dbtx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pool.Begin: %w", err)
	}

	// Ensure proper rollback handling
	defer func() {
		if txErr != nil {
			rollbackErr := tx.Rollback(ctx)
			if rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rollbackErr))
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx.Commit: %w", err)
	}

	return nil
}

type transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a port.Transactor that opens one Postgres transaction per call.
func NewTransactor(pool *pgxpool.Pool) port.Transactor {
	return &transactor{pool: pool}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return inTx(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(ctx, port.Repositories{
			Orders: NewOrderWithTx(tx),
			Outbox: NewOutboxWithTx(tx),
		})
	})
}
