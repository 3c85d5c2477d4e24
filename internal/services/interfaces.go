package services

import (
	"context"
	"time"

	domain "github.com/seagull-retail/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Item                   = domain.Item
	ItemFilter             = domain.ItemFilter
	BundleComponent        = domain.BundleComponent
	Cart                   = domain.Cart
	CartLine               = domain.CartLine
	CartTotals             = domain.CartTotals
	LineTotal              = domain.LineTotal
	Admin                  = domain.Admin
	PaymentInstrument      = domain.PaymentInstrument
	CardExpiry             = domain.CardExpiry
	Authorization          = domain.Authorization
	DeclineReason          = domain.DeclineReason
	CheckoutReceipt        = domain.CheckoutReceipt
	CheckoutCompletedEvent = domain.CheckoutCompletedEvent
	SystemHealthReport     = domain.SystemHealthReport
)

// CartService owns cart lines and the stock they hold.
type CartService interface {
	CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error)
	GetCart(ctx context.Context, cartID string) (Cart, error)
	AddLine(ctx context.Context, cmd AddLineCommand) (CartLine, error)
	RemoveLine(ctx context.Context, cartID, itemID string) (CartLine, error)
	FinalizeCart(ctx context.Context, cartID string) error
	DeleteCart(ctx context.Context, cartID string) error
}

// PricingEngine computes cart totals from cart contents and item price fields.
type PricingEngine interface {
	ComputeTotals(ctx context.Context, cartID string) (CartTotals, error)
	Currency() string
}

// PaymentValidator performs local card checks and returns a synthetic authorization.
// It never returns an error; declines are reported through the Authorization value.
type PaymentValidator interface {
	Authorize(ctx context.Context, instrument PaymentInstrument) Authorization
}

// AdminService verifies administrator credentials and provisions new administrators.
type AdminService interface {
	Authenticate(ctx context.Context, username, credential string) error
	AddAdmin(ctx context.Context, cmd AddAdminCommand) (string, error)
	EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error)
	ListAdmins(ctx context.Context) ([]AdminSummary, error)
}

// CheckoutService orchestrates pricing, authorization and cart finalization.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutReceipt, error)
}

// CatalogService exposes item listings and catalog maintenance.
type CatalogService interface {
	ListItems(ctx context.Context) ([]Item, error)
	ListOnSaleItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, itemID string) (Item, error)
	ListBundleComponents(ctx context.Context, bundleID string) ([]BundleComponent, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (Item, error)
	AddBundleComponent(ctx context.Context, bundleID, componentID string) error
	SetOnSale(ctx context.Context, itemID string, onSale bool) (Item, error)
}

// SystemService exposes readiness information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CheckoutEventPublisher delivers checkout notifications to downstream consumers.
type CheckoutEventPublisher interface {
	PublishCheckoutCompleted(ctx context.Context, event CheckoutCompletedEvent) (string, error)
}

// CreateCartCommand carries the display name for a new cart.
type CreateCartCommand struct {
	Name string
}

// AddLineCommand moves quantity units of an item into a cart.
type AddLineCommand struct {
	CartID   string
	ItemID   string
	Quantity int
}

// AddAdminCommand provisions NewUsername on behalf of an authenticated requester.
// Credentials are hex SHA-256 digests.
type AddAdminCommand struct {
	RequesterUsername   string
	RequesterCredential string
	NewUsername         string
	NewCredential       string
}

// AdminSummary is the public view of an administrator; digests are never exposed.
type AdminSummary struct {
	Username  string
	CreatedAt time.Time
}

// CheckoutCommand pays for a cart with a card instrument.
type CheckoutCommand struct {
	CartID     string
	Instrument PaymentInstrument
}

// AddItemCommand creates a catalog item.
type AddItemCommand struct {
	ID         string
	Name       string
	CategoryID string
	MSRP       int64
	SalePrice  int64
	Rating     float64
	Stock      int
	IsBundle   bool
	OnSale     bool
}
