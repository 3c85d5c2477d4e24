package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

// ReserveLine decrements stock with a conditional UPDATE and merges the line with an upsert,
// both inside one transaction. Zero affected rows means the item is missing or short.
func (s *Store) ReserveLine(ctx context.Context, req domain.LineReservation) (domain.CartLine, error) {
	at := req.At.UTC()
	if req.At.IsZero() {
		at = time.Now().UTC()
	}

	var merged int
	err := s.inTx(ctx, "inventory.reserveLine", func(tx pgx.Tx) error {
		if err := lockCart(ctx, tx, req.CartID, "FOR SHARE"); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			"UPDATE items SET stock = stock - $1 WHERE id = $2 AND stock >= $1", req.Quantity, req.ItemID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var stock int
			err := tx.QueryRow(ctx, "SELECT stock FROM items WHERE id = $1", req.ItemID).Scan(&stock)
			if errors.Is(err, pgx.ErrNoRows) {
				return itemNotFound(req.ItemID, err)
			}
			if err != nil {
				return err
			}
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("item %s has %d in stock, %d requested", req.ItemID, stock, req.Quantity), nil)
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO cart_lines (cart_id, item_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, item_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
			RETURNING quantity`, req.CartID, req.ItemID, req.Quantity).Scan(&merged); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "UPDATE carts SET updated_at = $2 WHERE id = $1", req.CartID, at)
		return err
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	return domain.CartLine{CartID: req.CartID, ItemID: req.ItemID, Quantity: merged}, nil
}

// ReleaseLine deletes the line and returns its quantity to stock in one transaction.
func (s *Store) ReleaseLine(ctx context.Context, cartID, itemID string) (domain.CartLine, error) {
	var quantity int
	err := s.inTx(ctx, "inventory.releaseLine", func(tx pgx.Tx) error {
		if err := lockCart(ctx, tx, cartID, "FOR SHARE"); err != nil {
			return err
		}
		err := tx.QueryRow(ctx,
			"DELETE FROM cart_lines WHERE cart_id = $1 AND item_id = $2 RETURNING quantity", cartID, itemID).Scan(&quantity)
		if errors.Is(err, pgx.ErrNoRows) {
			return repositories.NewInventoryError(repositories.InventoryErrorLineNotFound,
				fmt.Sprintf("cart %s has no line for item %s", cartID, itemID), err)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "UPDATE items SET stock = stock + $1 WHERE id = $2", quantity, itemID)
		return err
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	return domain.CartLine{CartID: cartID, ItemID: itemID, Quantity: quantity}, nil
}
