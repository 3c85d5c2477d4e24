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

type cartDocument struct {
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type lineDocument struct {
	ItemID    string    `firestore:"itemId"`
	Quantity  int64     `firestore:"quantity"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d cartDocument) toDomain(id string) domain.Cart {
	return domain.Cart{
		ID:        id,
		Name:      d.Name,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *Store) linesRef(ctx context.Context, cartID string) (*firestore.CollectionRef, error) {
	cartRef, err := s.carts.Doc(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return cartRef.Collection(linesSubcollection), nil
}

func (s *Store) InsertCart(ctx context.Context, cart domain.Cart) error {
	ref, err := s.carts.Doc(ctx, cart.ID)
	if err != nil {
		return err
	}
	doc := cartDocument{Name: cart.Name, CreatedAt: cart.CreatedAt.UTC(), UpdatedAt: cart.UpdatedAt.UTC()}
	if _, err := ref.Create(ctx, doc); err != nil {
		if pfirestore.IsAlreadyExists(err) {
			return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists, fmt.Sprintf("cart %s already exists", cart.ID), err).WithOp("carts.insert")
		}
		return wrapInventoryError("carts.insert", err)
	}
	return nil
}

func (s *Store) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := s.carts.Get(ctx, cartID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Cart{}, notFound(repositories.InventoryErrorCartNotFound, fmt.Sprintf("cart %s not found", cartID), err).WithOp("carts.get")
		}
		return domain.Cart{}, wrapInventoryError("carts.get", err)
	}
	cart := doc.Data.toDomain(doc.ID)

	linesRef, err := s.linesRef(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	snaps, err := linesRef.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return domain.Cart{}, wrapInventoryError("carts.lines", err)
	}
	cart.Lines = make([]domain.CartLine, 0, len(snaps))
	for _, snap := range snaps {
		line, err := pfirestore.Decode[lineDocument](snap)
		if err != nil {
			return domain.Cart{}, err
		}
		cart.Lines = append(cart.Lines, domain.CartLine{CartID: cartID, ItemID: snap.Ref.ID, Quantity: int(line.Data.Quantity)})
	}
	return cart, nil
}

func (s *Store) DeleteCart(ctx context.Context, cartID string) error {
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, lineSnaps, err := s.readCartLines(ctx, tx, cartID)
		if err != nil {
			return err
		}

		itemRefs := make([]*firestore.DocumentRef, 0, len(lineSnaps))
		quantities := make(map[string]int64, len(lineSnaps))
		for _, snap := range lineSnaps {
			line, err := pfirestore.Decode[lineDocument](snap)
			if err != nil {
				return err
			}
			itemRef, err := s.items.Doc(ctx, snap.Ref.ID)
			if err != nil {
				return err
			}
			itemRefs = append(itemRefs, itemRef)
			quantities[snap.Ref.ID] = line.Data.Quantity
		}
		var itemSnaps []*firestore.DocumentSnapshot
		if len(itemRefs) > 0 {
			itemSnaps, err = tx.GetAll(itemRefs)
			if err != nil {
				return err
			}
		}

		for _, snap := range itemSnaps {
			if !snap.Exists() {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{{Path: "stock", Value: firestore.Increment(quantities[snap.Ref.ID])}}); err != nil {
				return err
			}
		}
		for _, snap := range lineSnaps {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(cartRef)
	})
	return wrapInventoryError("carts.delete", err)
}

func (s *Store) ClearLines(ctx context.Context, cartID string) error {
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, lineSnaps, err := s.readCartLines(ctx, tx, cartID)
		if err != nil {
			return err
		}
		for _, snap := range lineSnaps {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		return tx.Update(cartRef, []firestore.Update{{Path: "updatedAt", Value: time.Now().UTC()}})
	})
	return wrapInventoryError("carts.clearLines", err)
}

func (s *Store) readCartLines(ctx context.Context, tx *firestore.Transaction, cartID string) (*firestore.DocumentRef, []*firestore.DocumentSnapshot, error) {
	cartRef, err := s.carts.Doc(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := tx.Get(cartRef); err != nil {
		if pfirestore.IsNotFound(err) {
			return nil, nil, notFound(repositories.InventoryErrorCartNotFound, fmt.Sprintf("cart %s not found", cartID), err)
		}
		return nil, nil, err
	}
	lineSnaps, err := tx.Documents(cartRef.Collection(linesSubcollection)).GetAll()
	if err != nil {
		return nil, nil, err
	}
	return cartRef, lineSnaps, nil
}
