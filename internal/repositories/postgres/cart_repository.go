package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

func cartNotFound(cartID string, err error) *repositories.InventoryError {
	return repositories.NewInventoryError(repositories.InventoryErrorCartNotFound, fmt.Sprintf("cart %s not found", cartID), err)
}

func (s *Store) InsertCart(ctx context.Context, cart domain.Cart) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO carts (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)",
		cart.ID, cart.Name, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists, fmt.Sprintf("cart %s already exists", cart.ID), err).WithOp("carts.insert")
	}
	return wrapError("carts.insert", err)
}

func (s *Store) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var cart domain.Cart
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, created_at, updated_at FROM carts WHERE id = $1", cartID).
		Scan(&cart.ID, &cart.Name, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, cartNotFound(cartID, err).WithOp("carts.get")
	}
	if err != nil {
		return domain.Cart{}, wrapError("carts.get", err)
	}
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	rows, err := s.pool.Query(ctx,
		"SELECT cart_id, item_id, quantity FROM cart_lines WHERE cart_id = $1 ORDER BY item_id", cartID)
	if err != nil {
		return domain.Cart{}, wrapError("carts.lines", err)
	}
	cart.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartLine, error) {
		var line domain.CartLine
		err := row.Scan(&line.CartID, &line.ItemID, &line.Quantity)
		return line, err
	})
	if err != nil {
		return domain.Cart{}, wrapError("carts.lines", err)
	}
	return cart, nil
}

// DeleteCart returns every remaining line quantity to stock before removing the cart.
func (s *Store) DeleteCart(ctx context.Context, cartID string) error {
	return s.inTx(ctx, "carts.delete", func(tx pgx.Tx) error {
		if err := lockCart(ctx, tx, cartID, "FOR UPDATE"); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE items i SET stock = i.stock + l.quantity
			FROM cart_lines l
			WHERE l.cart_id = $1 AND l.item_id = i.id`, cartID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM cart_lines WHERE cart_id = $1", cartID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM carts WHERE id = $1", cartID)
		return err
	})
}

func (s *Store) ClearLines(ctx context.Context, cartID string) error {
	return s.inTx(ctx, "carts.clearLines", func(tx pgx.Tx) error {
		if err := lockCart(ctx, tx, cartID, "FOR UPDATE"); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM cart_lines WHERE cart_id = $1", cartID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "UPDATE carts SET updated_at = $2 WHERE id = $1", cartID, time.Now().UTC())
		return err
	})
}

func lockCart(ctx context.Context, tx pgx.Tx, cartID, lock string) error {
	var one int
	err := tx.QueryRow(ctx, "SELECT 1 FROM carts WHERE id = $1 "+lock, cartID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return cartNotFound(cartID, err)
	}
	return err
}
