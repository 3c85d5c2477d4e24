package services

import (
	"errors"
	"fmt"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

// Error kinds shared by every service. Service specific sentinels wrap one of these so that
// callers can match either the precise condition or the broad category with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnavailable       = errors.New("unavailable")
	ErrPaymentDeclined   = errors.New("payment declined")
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid cart input.
	ErrCartInvalidInput = fmt.Errorf("cart service: invalid input: %w", ErrValidation)
	// ErrCartNotFound indicates the requested cart does not exist.
	ErrCartNotFound = fmt.Errorf("cart service: cart %w", ErrNotFound)
	// ErrCartItemNotFound indicates the referenced item does not exist.
	ErrCartItemNotFound = fmt.Errorf("cart service: item %w", ErrNotFound)
	// ErrCartLineNotFound indicates the cart holds no line for the item.
	ErrCartLineNotFound = fmt.Errorf("cart service: line %w", ErrNotFound)
	// ErrCartInsufficientStock indicates the item cannot cover the requested quantity.
	ErrCartInsufficientStock = fmt.Errorf("cart service: %w", ErrInsufficientStock)
	// ErrCartUnavailable indicates the backing store could not serve the request.
	ErrCartUnavailable = fmt.Errorf("cart service: %w", ErrUnavailable)

	ErrPricingCartNotFound = fmt.Errorf("pricing engine: cart %w", ErrNotFound)
	ErrPricingItemNotFound = fmt.Errorf("pricing engine: item %w", ErrNotFound)
	ErrPricingUnavailable  = fmt.Errorf("pricing engine: %w", ErrUnavailable)
	ErrPricingOverflow     = fmt.Errorf("pricing engine: total exceeds the representable amount: %w", ErrValidation)

	ErrAdminInvalidInput  = fmt.Errorf("admin service: invalid input: %w", ErrValidation)
	ErrAdminNotFound      = fmt.Errorf("admin service: admin %w", ErrNotFound)
	ErrAdminUnauthorized  = fmt.Errorf("admin service: %w", ErrUnauthorized)
	ErrAdminAlreadyExists = fmt.Errorf("admin service: admin %w", ErrAlreadyExists)
	ErrAdminUnavailable   = fmt.Errorf("admin service: %w", ErrUnavailable)

	ErrCheckoutEmptyCart = fmt.Errorf("checkout service: cart has no lines: %w", ErrValidation)

	ErrCatalogInvalidInput  = fmt.Errorf("catalog service: invalid input: %w", ErrValidation)
	ErrCatalogItemNotFound  = fmt.Errorf("catalog service: item %w", ErrNotFound)
	ErrCatalogAlreadyExists = fmt.Errorf("catalog service: item %w", ErrAlreadyExists)
	ErrCatalogUnavailable   = fmt.Errorf("catalog service: %w", ErrUnavailable)
)

// PaymentDeclinedError reports the first failed payment check.
type PaymentDeclinedError struct {
	Reason domain.DeclineReason
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// Is lets errors.Is(err, ErrPaymentDeclined) match.
func (e *PaymentDeclinedError) Is(target error) bool {
	return target == ErrPaymentDeclined
}

// detail adds the repository message to a sentinel without losing either chain.
func detail(sentinel error, err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) && invErr.Message != "" {
		return fmt.Errorf("%w: %s", sentinel, invErr.Message)
	}
	return sentinel
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
