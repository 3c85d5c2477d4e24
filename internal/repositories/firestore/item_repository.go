package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/seagull-retail/api/internal/domain"
	pfirestore "github.com/seagull-retail/api/internal/platform/firestore"
	"github.com/seagull-retail/api/internal/repositories"
)

type itemDocument struct {
	Name       string  `firestore:"name"`
	CategoryID string  `firestore:"categoryId,omitempty"`
	MSRP       int64   `firestore:"msrp"`
	SalePrice  int64   `firestore:"salePrice"`
	Rating     float64 `firestore:"rating"`
	Stock      int64   `firestore:"stock"`
	IsBundle   bool    `firestore:"isBundle"`
	OnSale     bool    `firestore:"onSale"`
}

type componentDocument struct {
	BundleID    string `firestore:"bundleId"`
	ComponentID string `firestore:"componentId"`
}

func newItemDocument(item domain.Item) itemDocument {
	return itemDocument{
		Name:       item.Name,
		CategoryID: item.CategoryID,
		MSRP:       item.MSRP,
		SalePrice:  item.SalePrice,
		Rating:     item.Rating,
		Stock:      int64(item.Stock),
		IsBundle:   item.IsBundle,
		OnSale:     item.OnSale,
	}
}

func (d itemDocument) toDomain(id string) domain.Item {
	return domain.Item{
		ID:         id,
		Name:       d.Name,
		CategoryID: d.CategoryID,
		MSRP:       d.MSRP,
		SalePrice:  d.SalePrice,
		Rating:     d.Rating,
		Stock:      int(d.Stock),
		IsBundle:   d.IsBundle,
		OnSale:     d.OnSale,
	}
}

func (s *Store) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	doc, err := s.items.Get(ctx, itemID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Item{}, notFound(repositories.InventoryErrorItemNotFound, fmt.Sprintf("item %s not found", itemID), err).WithOp("items.get")
		}
		return domain.Item{}, wrapInventoryError("items.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (s *Store) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	docs, err := s.items.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.OnSaleOnly {
			q = q.Where("onSale", "==", true)
		}
		if filter.BundlesOnly {
			q = q.Where("isBundle", "==", true)
		}
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, wrapInventoryError("items.list", err)
	}
	items := make([]domain.Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return items, nil
}

func (s *Store) InsertItem(ctx context.Context, item domain.Item) error {
	ref, err := s.items.Doc(ctx, item.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newItemDocument(item)); err != nil {
		if pfirestore.IsAlreadyExists(err) {
			return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists, fmt.Sprintf("item %s already exists", item.ID), err).WithOp("items.insert")
		}
		return wrapInventoryError("items.insert", err)
	}
	return nil
}

func (s *Store) SetOnSale(ctx context.Context, itemID string, onSale bool) (domain.Item, error) {
	var updated domain.Item
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.items.Doc(ctx, itemID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound(repositories.InventoryErrorItemNotFound, fmt.Sprintf("item %s not found", itemID), err)
			}
			return err
		}
		doc, err := pfirestore.Decode[itemDocument](snap)
		if err != nil {
			return err
		}
		doc.Data.OnSale = onSale
		if err := tx.Update(ref, []firestore.Update{{Path: "onSale", Value: onSale}}); err != nil {
			return err
		}
		updated = doc.Data.toDomain(itemID)
		return nil
	})
	if err != nil {
		return domain.Item{}, wrapInventoryError("items.setOnSale", err)
	}
	return updated, nil
}

func (s *Store) ListBundleComponents(ctx context.Context, bundleID string) ([]domain.BundleComponent, error) {
	if _, err := s.GetItem(ctx, bundleID); err != nil {
		return nil, err
	}
	docs, err := s.components.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("bundleId", "==", bundleID)
	})
	if err != nil {
		return nil, wrapInventoryError("bundleComponents.list", err)
	}
	components := make([]domain.BundleComponent, 0, len(docs))
	for _, doc := range docs {
		components = append(components, domain.BundleComponent{BundleID: doc.Data.BundleID, ComponentID: doc.Data.ComponentID})
	}
	return components, nil
}

func (s *Store) InsertBundleComponent(ctx context.Context, component domain.BundleComponent) error {
	for _, id := range []string{component.BundleID, component.ComponentID} {
		if _, err := s.GetItem(ctx, id); err != nil {
			return err
		}
	}
	ref, err := s.components.Doc(ctx, component.BundleID+"_"+component.ComponentID)
	if err != nil {
		return err
	}
	doc := componentDocument{BundleID: component.BundleID, ComponentID: component.ComponentID}
	if _, err := ref.Set(ctx, doc); err != nil {
		return wrapInventoryError("bundleComponents.insert", err)
	}
	return nil
}
