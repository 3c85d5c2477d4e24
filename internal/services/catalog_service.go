package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

const (
	maxItemIDLength   = 64
	maxItemNameLength = 200
	maxItemRating     = 5
	// MaxItemPrice bounds list and sale prices in minor units.
	MaxItemPrice int64 = 1_000_000_000_000
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Items  repositories.ItemRepository
	Logger func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo      repositories.ItemRepository
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Items == nil {
		return nil, errors.New("catalog service: item repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{repo: deps.Items, logger: logger, sanitizer: bluemonday.StrictPolicy()}, nil
}

func (s *catalogService) ListItems(ctx context.Context) ([]Item, error) {
	items, err := s.repo.ListItems(ctx, ItemFilter{})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

func (s *catalogService) ListOnSaleItems(ctx context.Context) ([]Item, error) {
	items, err := s.repo.ListItems(ctx, ItemFilter{OnSaleOnly: true})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

func (s *catalogService) GetItem(ctx context.Context, itemID string) (Item, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return Item{}, fmt.Errorf("%w: item id is required", ErrCatalogInvalidInput)
	}
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}
	return item, nil
}

func (s *catalogService) ListBundleComponents(ctx context.Context, bundleID string) ([]BundleComponent, error) {
	id := strings.TrimSpace(bundleID)
	if id == "" {
		return nil, fmt.Errorf("%w: bundle id is required", ErrCatalogInvalidInput)
	}
	components, err := s.repo.ListBundleComponents(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return components, nil
}

func (s *catalogService) AddItem(ctx context.Context, cmd AddItemCommand) (Item, error) {
	item, err := s.normalizeItem(cmd)
	if err != nil {
		return Item{}, err
	}
	if err := s.repo.InsertItem(ctx, item); err != nil {
		return Item{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.item_added", map[string]any{"itemID": item.ID, "bundle": item.IsBundle})
	return item, nil
}

func (s *catalogService) AddBundleComponent(ctx context.Context, bundleID, componentID string) error {
	bid := strings.TrimSpace(bundleID)
	cid := strings.TrimSpace(componentID)
	if bid == "" || cid == "" {
		return fmt.Errorf("%w: bundle id and component id are required", ErrCatalogInvalidInput)
	}
	if bid == cid {
		return fmt.Errorf("%w: a bundle cannot contain itself", ErrCatalogInvalidInput)
	}
	bundle, err := s.repo.GetItem(ctx, bid)
	if err != nil {
		return s.translateRepoError(err)
	}
	if !bundle.IsBundle {
		return fmt.Errorf("%w: item %s is not a bundle", ErrCatalogInvalidInput, bid)
	}
	if err := s.repo.InsertBundleComponent(ctx, domain.BundleComponent{BundleID: bid, ComponentID: cid}); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) SetOnSale(ctx context.Context, itemID string, onSale bool) (Item, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return Item{}, fmt.Errorf("%w: item id is required", ErrCatalogInvalidInput)
	}
	item, err := s.repo.SetOnSale(ctx, id, onSale)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.sale_toggled", map[string]any{"itemID": id, "onSale": onSale})
	return item, nil
}

func (s *catalogService) normalizeItem(cmd AddItemCommand) (Item, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" || len(id) > maxItemIDLength || strings.ContainsAny(id, " /\t\r\n") {
		return Item{}, fmt.Errorf("%w: item id %q is not allowed", ErrCatalogInvalidInput, cmd.ID)
	}
	name := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(cmd.Name)))
	if name == "" || utf8.RuneCountInString(name) > maxItemNameLength {
		return Item{}, fmt.Errorf("%w: item name must be 1-%d characters", ErrCatalogInvalidInput, maxItemNameLength)
	}
	if cmd.MSRP < 0 || cmd.SalePrice < 0 {
		return Item{}, fmt.Errorf("%w: prices must be non-negative", ErrCatalogInvalidInput)
	}
	if cmd.MSRP > MaxItemPrice || cmd.SalePrice > MaxItemPrice {
		return Item{}, fmt.Errorf("%w: prices must not exceed %d", ErrCatalogInvalidInput, MaxItemPrice)
	}
	if cmd.Stock < 0 {
		return Item{}, fmt.Errorf("%w: stock must be non-negative", ErrCatalogInvalidInput)
	}
	if math.IsNaN(cmd.Rating) || cmd.Rating < 0 || cmd.Rating > maxItemRating {
		return Item{}, fmt.Errorf("%w: rating must be between 0 and %d", ErrCatalogInvalidInput, maxItemRating)
	}
	return Item{
		ID:         id,
		Name:       name,
		CategoryID: strings.TrimSpace(cmd.CategoryID),
		MSRP:       cmd.MSRP,
		SalePrice:  cmd.SalePrice,
		Rating:     cmd.Rating,
		Stock:      cmd.Stock,
		IsBundle:   cmd.IsBundle,
		OnSale:     cmd.OnSale,
	}, nil
}

func (s *catalogService) translateRepoError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case repositories.InventoryErrorCodeOf(err) == repositories.InventoryErrorAlreadyExists:
		return detail(ErrCatalogAlreadyExists, err)
	case isRepoNotFound(err):
		return detail(ErrCatalogItemNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
