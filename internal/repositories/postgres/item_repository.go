package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

const itemColumns = "id, name, category_id, msrp, sale_price, rating, stock, is_bundle, on_sale"

func scanItem(row pgx.Row) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Name, &item.CategoryID, &item.MSRP, &item.SalePrice,
		&item.Rating, &item.Stock, &item.IsBundle, &item.OnSale)
	return item, err
}

func itemNotFound(itemID string, err error) *repositories.InventoryError {
	return repositories.NewInventoryError(repositories.InventoryErrorItemNotFound, fmt.Sprintf("item %s not found", itemID), err)
}

func (s *Store) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1", itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, itemNotFound(itemID, err).WithOp("items.get")
	}
	if err != nil {
		return domain.Item{}, wrapError("items.get", err)
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	var conditions []string
	if filter.OnSaleOnly {
		conditions = append(conditions, "on_sale")
	}
	if filter.BundlesOnly {
		conditions = append(conditions, "is_bundle")
	}
	query := "SELECT " + itemColumns + " FROM items"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapError("items.list", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Item, error) {
		return scanItem(row)
	})
	if err != nil {
		return nil, wrapError("items.list", err)
	}
	return items, nil
}

func (s *Store) InsertItem(ctx context.Context, item domain.Item) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO items ("+itemColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		item.ID, item.Name, item.CategoryID, item.MSRP, item.SalePrice, item.Rating, item.Stock, item.IsBundle, item.OnSale)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists, fmt.Sprintf("item %s already exists", item.ID), err).WithOp("items.insert")
	}
	return wrapError("items.insert", err)
}

func (s *Store) SetOnSale(ctx context.Context, itemID string, onSale bool) (domain.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx,
		"UPDATE items SET on_sale = $2 WHERE id = $1 RETURNING "+itemColumns, itemID, onSale))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, itemNotFound(itemID, err).WithOp("items.setOnSale")
	}
	if err != nil {
		return domain.Item{}, wrapError("items.setOnSale", err)
	}
	return item, nil
}

func (s *Store) ListBundleComponents(ctx context.Context, bundleID string) ([]domain.BundleComponent, error) {
	if _, err := s.GetItem(ctx, bundleID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		"SELECT bundle_id, component_id FROM bundle_components WHERE bundle_id = $1 ORDER BY component_id", bundleID)
	if err != nil {
		return nil, wrapError("bundleComponents.list", err)
	}
	components, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BundleComponent, error) {
		var c domain.BundleComponent
		err := row.Scan(&c.BundleID, &c.ComponentID)
		return c, err
	})
	if err != nil {
		return nil, wrapError("bundleComponents.list", err)
	}
	return components, nil
}

func (s *Store) InsertBundleComponent(ctx context.Context, component domain.BundleComponent) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO bundle_components (bundle_id, component_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		component.BundleID, component.ComponentID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return repositories.NewInventoryError(repositories.InventoryErrorItemNotFound,
			fmt.Sprintf("bundle %s or component %s not found", component.BundleID, component.ComponentID), err).WithOp("bundleComponents.insert")
	}
	return wrapError("bundleComponents.insert", err)
}
