package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

func (s *Store) FindAdmin(ctx context.Context, username string) (domain.Admin, error) {
	var admin domain.Admin
	err := s.pool.QueryRow(ctx,
		"SELECT username, password_hash, created_at FROM admins WHERE username = $1", username).
		Scan(&admin.Username, &admin.PasswordHash, &admin.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Admin{}, repositories.NewInventoryError(repositories.InventoryErrorAdminNotFound,
			fmt.Sprintf("admin %s not found", username), err).WithOp("admins.get")
	}
	if err != nil {
		return domain.Admin{}, wrapError("admins.get", err)
	}
	admin.CreatedAt = admin.CreatedAt.UTC()
	return admin, nil
}

// InsertAdmin relies on the username primary key to serialize concurrent inserts.
func (s *Store) InsertAdmin(ctx context.Context, admin domain.Admin) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO admins (username, password_hash, created_at) VALUES ($1, $2, $3)",
		admin.Username, admin.PasswordHash, admin.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists,
			fmt.Sprintf("admin %s already exists", admin.Username), err).WithOp("admins.insert")
	}
	return wrapError("admins.insert", err)
}

func (s *Store) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	rows, err := s.pool.Query(ctx, "SELECT username, password_hash, created_at FROM admins ORDER BY username")
	if err != nil {
		return nil, wrapError("admins.list", err)
	}
	admins, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Admin, error) {
		var a domain.Admin
		err := row.Scan(&a.Username, &a.PasswordHash, &a.CreatedAt)
		a.CreatedAt = a.CreatedAt.UTC()
		return a, err
	})
	if err != nil {
		return nil, wrapError("admins.list", err)
	}
	return admins, nil
}
