package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for store operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorItemNotFound indicates the item does not exist.
	InventoryErrorItemNotFound InventoryErrorCode = "inventory_item_not_found"
	// InventoryErrorCartNotFound indicates the cart does not exist.
	InventoryErrorCartNotFound InventoryErrorCode = "inventory_cart_not_found"
	// InventoryErrorLineNotFound indicates the cart holds no line for the item.
	InventoryErrorLineNotFound InventoryErrorCode = "inventory_line_not_found"
	// InventoryErrorAdminNotFound indicates the admin does not exist.
	InventoryErrorAdminNotFound InventoryErrorCode = "inventory_admin_not_found"
	// InventoryErrorAlreadyExists indicates a record with the same key already exists.
	InventoryErrorAlreadyExists InventoryErrorCode = "inventory_already_exists"
	// InventoryErrorUnavailable indicates the backing store could not be reached.
	InventoryErrorUnavailable InventoryErrorCode = "inventory_unavailable"
)

// InventoryError wraps store failures with machine readable codes.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*InventoryError)(nil)

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing record.
func (e *InventoryError) IsNotFound() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case InventoryErrorItemNotFound, InventoryErrorCartNotFound, InventoryErrorLineNotFound, InventoryErrorAdminNotFound:
		return true
	}
	return false
}

// IsConflict reports whether the error represents a rejected write.
func (e *InventoryError) IsConflict() bool {
	return e != nil && (e.Code == InventoryErrorAlreadyExists || e.Code == InventoryErrorInsufficientStock)
}

// IsUnavailable reports whether the error represents a backend outage.
func (e *InventoryError) IsUnavailable() bool {
	return e != nil && e.Code == InventoryErrorUnavailable
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithOp returns a copy of the error annotated with the operation name.
func (e *InventoryError) WithOp(op string) *InventoryError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Op = op
	return &clone
}

// InventoryErrorCodeOf extracts the code from err, or InventoryErrorUnknown.
func InventoryErrorCodeOf(err error) InventoryErrorCode {
	var invErr *InventoryError
	if errors.As(err, &invErr) && invErr != nil {
		return invErr.Code
	}
	return InventoryErrorUnknown
}
