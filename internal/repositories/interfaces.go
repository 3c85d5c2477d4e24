package repositories

import (
	"context"

	domain "github.com/seagull-retail/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Items() ItemRepository
	Carts() CartRepository
	Admins() AdminRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ItemRepository persists catalog items and bundle composition.
type ItemRepository interface {
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
	ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error)
	InsertItem(ctx context.Context, item domain.Item) error
	SetOnSale(ctx context.Context, itemID string, onSale bool) (domain.Item, error)
	ListBundleComponents(ctx context.Context, bundleID string) ([]domain.BundleComponent, error)
	InsertBundleComponent(ctx context.Context, component domain.BundleComponent) error
}

// CartRepository owns carts and cart lines. ReserveLine and ReleaseLine are the only
// operations that move stock between an item and a cart, and each is a single atomic unit.
type CartRepository interface {
	InsertCart(ctx context.Context, cart domain.Cart) error
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
	// DeleteCart removes the cart and releases every remaining line back to stock.
	DeleteCart(ctx context.Context, cartID string) error
	// ReserveLine checks cart and item existence, requires item stock >= quantity,
	// decrements stock and merges the quantity into the (cart, item) line.
	ReserveLine(ctx context.Context, req domain.LineReservation) (domain.CartLine, error)
	// ReleaseLine restores the line quantity to stock and deletes the line.
	ReleaseLine(ctx context.Context, cartID, itemID string) (domain.CartLine, error)
	// ClearLines deletes every line of the cart without restoring stock.
	ClearLines(ctx context.Context, cartID string) error
}

// AdminRepository persists administrator accounts. InsertAdmin fails with a conflict
// error when the username is taken; the check and insert are serialized.
type AdminRepository interface {
	FindAdmin(ctx context.Context, username string) (domain.Admin, error)
	InsertAdmin(ctx context.Context, admin domain.Admin) error
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
}

// HealthRepository exposes dependency health information for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
