package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seagull-retail/api/internal/repositories"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	stockConstraint = "items_stock_check"
)

// Store implements the repositories registry on PostgreSQL. Every stock move runs in a
// single pgx transaction guarded by a conditional UPDATE.
type Store struct {
	pool   *pgxpool.Pool
	health repositories.HealthRepository
}

var (
	_ repositories.Registry        = (*Store)(nil)
	_ repositories.ItemRepository  = (*Store)(nil)
	_ repositories.CartRepository  = (*Store)(nil)
	_ repositories.AdminRepository = (*Store)(nil)
)

// NewStore wraps an open pool. Call Migrate before first use against an empty database.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres store requires connection pool")
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "postgres",
		Check: pool.Ping,
	}})
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, health: health}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return wrapError("schema.migrate", err)
	}
	return nil
}

func (s *Store) Items() repositories.ItemRepository    { return s }
func (s *Store) Carts() repositories.CartRepository    { return s }
func (s *Store) Admins() repositories.AdminRepository  { return s }
func (s *Store) Health() repositories.HealthRepository { return s.health }

// Close releases pool connections.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, fn)
	return wrapError(op, err)
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			return invErr.WithOp(op)
		}
		return invErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists, pgErr.Detail, err).WithOp(op)
		case pgCheckViolation:
			if pgErr.ConstraintName != stockConstraint {
				break
			}
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, pgErr.Message, err).WithOp(op)
		}
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return repositories.NewInventoryError(repositories.InventoryErrorUnavailable, "postgres unavailable", err).WithOp(op)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return repositories.NewInventoryError(repositories.InventoryErrorUnavailable, "postgres unavailable", err).WithOp(op)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
