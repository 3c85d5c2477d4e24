package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/seagull-retail/api/internal/domain"
	pfirestore "github.com/seagull-retail/api/internal/platform/firestore"
	"github.com/seagull-retail/api/internal/repositories"
)

// ReserveLine reads cart, item and line inside one transaction, then writes the decremented
// stock and merged line. Firestore retries the closure on contention, so concurrent adds
// against the same item serialize on the item document.
func (s *Store) ReserveLine(ctx context.Context, req domain.LineReservation) (domain.CartLine, error) {
	now := req.At.UTC()
	if req.At.IsZero() {
		now = time.Now().UTC()
	}

	var result domain.CartLine
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, err := s.carts.Doc(ctx, req.CartID)
		if err != nil {
			return err
		}
		itemRef, err := s.items.Doc(ctx, req.ItemID)
		if err != nil {
			return err
		}
		lineRef := cartRef.Collection(linesSubcollection).Doc(req.ItemID)

		if _, err := tx.Get(cartRef); err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound(repositories.InventoryErrorCartNotFound, fmt.Sprintf("cart %s not found", req.CartID), err)
			}
			return err
		}
		itemSnap, err := tx.Get(itemRef)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound(repositories.InventoryErrorItemNotFound, fmt.Sprintf("item %s not found", req.ItemID), err)
			}
			return err
		}
		item, err := pfirestore.Decode[itemDocument](itemSnap)
		if err != nil {
			return err
		}

		var existing int64
		lineSnap, err := tx.Get(lineRef)
		switch {
		case err == nil:
			line, decodeErr := pfirestore.Decode[lineDocument](lineSnap)
			if decodeErr != nil {
				return decodeErr
			}
			existing = line.Data.Quantity
		case pfirestore.IsNotFound(err):
		default:
			return err
		}

		requested := int64(req.Quantity)
		if item.Data.Stock < requested {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("item %s has %d in stock, %d requested", req.ItemID, item.Data.Stock, requested), nil)
		}

		if err := tx.Update(itemRef, []firestore.Update{{Path: "stock", Value: item.Data.Stock - requested}}); err != nil {
			return err
		}
		merged := existing + requested
		if err := tx.Set(lineRef, lineDocument{ItemID: req.ItemID, Quantity: merged, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.Update(cartRef, []firestore.Update{{Path: "updatedAt", Value: now}}); err != nil {
			return err
		}

		result = domain.CartLine{CartID: req.CartID, ItemID: req.ItemID, Quantity: int(merged)}
		return nil
	})
	if err != nil {
		return domain.CartLine{}, wrapInventoryError("inventory.reserveLine", err)
	}
	return result, nil
}

// ReleaseLine restores the line quantity to stock and deletes the line in one transaction.
func (s *Store) ReleaseLine(ctx context.Context, cartID, itemID string) (domain.CartLine, error) {
	var result domain.CartLine
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, err := s.carts.Doc(ctx, cartID)
		if err != nil {
			return err
		}
		itemRef, err := s.items.Doc(ctx, itemID)
		if err != nil {
			return err
		}
		lineRef := cartRef.Collection(linesSubcollection).Doc(itemID)

		if _, err := tx.Get(cartRef); err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound(repositories.InventoryErrorCartNotFound, fmt.Sprintf("cart %s not found", cartID), err)
			}
			return err
		}
		lineSnap, err := tx.Get(lineRef)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound(repositories.InventoryErrorLineNotFound, fmt.Sprintf("cart %s has no line for item %s", cartID, itemID), err)
			}
			return err
		}
		line, err := pfirestore.Decode[lineDocument](lineSnap)
		if err != nil {
			return err
		}
		itemSnap, err := tx.Get(itemRef)
		itemExists := err == nil
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}

		if itemExists {
			item, err := pfirestore.Decode[itemDocument](itemSnap)
			if err != nil {
				return err
			}
			if err := tx.Update(itemRef, []firestore.Update{{Path: "stock", Value: item.Data.Stock + line.Data.Quantity}}); err != nil {
				return err
			}
		}
		if err := tx.Delete(lineRef); err != nil {
			return err
		}

		result = domain.CartLine{CartID: cartID, ItemID: itemID, Quantity: int(line.Data.Quantity)}
		return nil
	})
	if err != nil {
		return domain.CartLine{}, wrapInventoryError("inventory.releaseLine", err)
	}
	return result, nil
}
