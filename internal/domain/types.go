package domain

import (
	"time"
)

// Item is a catalog entry. Prices are expressed in minor currency units.
type Item struct {
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

// UnitPrice returns the price charged for a single non-bundle unit.
func (i Item) UnitPrice() int64 {
	if i.OnSale {
		return i.SalePrice
	}
	return i.MSRP
}

// BundleComponent links a bundle item to one of the items packaged inside it.
// Components are informational only and never contribute to pricing.
type BundleComponent struct {
	BundleID    string
	ComponentID string
}

// ItemFilter narrows catalog listings.
type ItemFilter struct {
	OnSaleOnly  bool
	BundlesOnly bool
}

// Cart is a named shopping cart. Lines are loaded alongside the cart record.
type Cart struct {
	ID        string
	Name      string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine is the quantity of one item held by one cart.
type CartLine struct {
	CartID   string
	ItemID   string
	Quantity int
}

// LineReservation describes a request to move stock from an item into a cart line.
type LineReservation struct {
	CartID   string
	ItemID   string
	Quantity int
	At       time.Time
}

// Admin is an administrator account. PasswordHash holds the stored credential digest.
type Admin struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

const (
	// HealthStatusOK indicates that a dependency is healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a non-fatal dependency problem.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a failed dependency.
	HealthStatusError = "error"
)

// SystemHealthCheck records the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Version     string
	Environment string
	Uptime      time.Duration
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
