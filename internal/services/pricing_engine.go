package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

const (
	basisPointsPerUnit = 10000
	maxTaxBasisPoints  = basisPointsPerUnit - 1
	defaultCurrency    = "USD"
)

// PricingEngineDeps wires the repositories and tax settings used for pricing.
type PricingEngineDeps struct {
	Carts              repositories.CartRepository
	Items              repositories.ItemRepository
	TaxRateBasisPoints int64
	Currency           string
	Logger             func(context.Context, string, map[string]any)
}

type pricingEngine struct {
	carts    repositories.CartRepository
	items    repositories.ItemRepository
	taxBps   int64
	currency string
	logger   func(context.Context, string, map[string]any)
}

var _ PricingEngine = (*pricingEngine)(nil)

// NewPricingEngine validates the flat tax rate and settlement currency.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Carts == nil {
		return nil, errors.New("pricing engine: cart repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("pricing engine: item repository is required")
	}
	if deps.TaxRateBasisPoints < 0 || deps.TaxRateBasisPoints > maxTaxBasisPoints {
		return nil, fmt.Errorf("pricing engine: tax rate %d bps out of range", deps.TaxRateBasisPoints)
	}

	code := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if code == "" {
		code = defaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("pricing engine: currency %q: %w", deps.Currency, err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingEngine{
		carts:    deps.Carts,
		items:    deps.Items,
		taxBps:   deps.TaxRateBasisPoints,
		currency: unit.String(),
		logger:   logger,
	}, nil
}

func (e *pricingEngine) Currency() string { return e.currency }

// ComputeTotals prices every line of the cart. Regular lines use the item's effective unit
// price; bundle lines always use the bundle's MSRP and never consult components.
func (e *pricingEngine) ComputeTotals(ctx context.Context, cartID string) (CartTotals, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return CartTotals{}, fmt.Errorf("%w: cart id is required", ErrValidation)
	}
	cart, err := e.carts.GetCart(ctx, id)
	if err != nil {
		return CartTotals{}, e.translateRepoError(err, ErrPricingCartNotFound)
	}

	totals := CartTotals{
		CartID:             cart.ID,
		Currency:           e.currency,
		TaxRateBasisPoints: e.taxBps,
		Lines:              make([]LineTotal, 0, len(cart.Lines)),
	}
	for _, line := range cart.Lines {
		item, err := e.items.GetItem(ctx, line.ItemID)
		if err != nil {
			e.logger(ctx, "pricing.item_lookup_failed", map[string]any{
				"cartID": cart.ID,
				"itemID": line.ItemID,
				"error":  err.Error(),
			})
			return CartTotals{}, e.translateRepoError(err, ErrPricingItemNotFound)
		}
		lt, ok := priceLine(item, line.Quantity)
		if !ok {
			return CartTotals{}, fmt.Errorf("%w: line %s", ErrPricingOverflow, line.ItemID)
		}
		switch lt.Class {
		case domain.LineClassBundle:
			totals.BundleTotal, ok = addAmounts(totals.BundleTotal, lt.Total)
		default:
			totals.RegularTotal, ok = addAmounts(totals.RegularTotal, lt.Total)
		}
		if !ok {
			return CartTotals{}, fmt.Errorf("%w: cart %s", ErrPricingOverflow, cart.ID)
		}
		totals.Lines = append(totals.Lines, lt)
	}

	var ok bool
	if totals.Subtotal, ok = addAmounts(totals.RegularTotal, totals.BundleTotal); !ok {
		return CartTotals{}, fmt.Errorf("%w: cart %s", ErrPricingOverflow, cart.ID)
	}
	totals.Tax = ComputeTax(totals.Subtotal, e.taxBps)
	if totals.TotalWithTax, ok = addAmounts(totals.Subtotal, totals.Tax); !ok {
		return CartTotals{}, fmt.Errorf("%w: cart %s", ErrPricingOverflow, cart.ID)
	}
	return totals, nil
}

func priceLine(item Item, quantity int) (LineTotal, bool) {
	lt := LineTotal{ItemID: item.ID, Quantity: quantity}
	if item.IsBundle {
		lt.Class = domain.LineClassBundle
		lt.UnitPrice = item.MSRP
	} else {
		lt.Class = domain.LineClassRegular
		lt.UnitPrice = item.UnitPrice()
	}
	total, ok := multiplyAmount(lt.UnitPrice, int64(quantity))
	lt.Total = total
	return lt, ok
}

// ComputeTax applies a basis-point rate to a non-negative amount, rounding half up.
// The amount is split into whole and fractional basis-point units so the product cannot overflow.
func ComputeTax(amount, basisPoints int64) int64 {
	if amount <= 0 || basisPoints <= 0 {
		return 0
	}
	whole, rest := amount/basisPointsPerUnit, amount%basisPointsPerUnit
	return whole*basisPoints + (rest*basisPoints+basisPointsPerUnit/2)/basisPointsPerUnit
}

func multiplyAmount(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func addAmounts(a, b int64) (int64, bool) {
	c := a + b
	if (c > a) != (b > 0) {
		return 0, false
	}
	return c, true
}

func (e *pricingEngine) translateRepoError(err error, notFound error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isRepoNotFound(err) {
		return detail(notFound, err)
	}
	return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
}
