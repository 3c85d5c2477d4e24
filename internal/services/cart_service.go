package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartNameLength = 120

// CartServiceDeps wires the repository and runtime collaborators for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	repo      repositories.CartRepository
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return uuid.NewString() }
	}

	return &cartService{
		repo:      deps.Repository,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *cartService) CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error) {
	name, err := s.sanitizeName(cmd.Name)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart := Cart{
		ID:        s.newID(),
		Name:      name,
		Lines:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCart(ctx, cart); err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	s.logger(ctx, "cart.created", map[string]any{"cartID": cart.ID})
	return cart, nil
}

func (s *cartService) GetCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, err := s.repo.GetCart(ctx, id)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	if cart.Lines == nil {
		cart.Lines = []CartLine{}
	}
	return cart, nil
}

// AddLine reserves quantity units of the item for the cart. The stock check, decrement and
// line merge happen inside ReserveLine; a rejected request leaves stock untouched.
func (s *cartService) AddLine(ctx context.Context, cmd AddLineCommand) (CartLine, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if cartID == "" {
		return CartLine{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if itemID == "" {
		return CartLine{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartLine{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	line, err := s.repo.ReserveLine(ctx, domain.LineReservation{
		CartID:   cartID,
		ItemID:   itemID,
		Quantity: cmd.Quantity,
		At:       s.now(),
	})
	if err != nil {
		translated := s.translateRepoError(err)
		s.logger(ctx, "cart.add_line_failed", map[string]any{
			"cartID":   cartID,
			"itemID":   itemID,
			"quantity": cmd.Quantity,
			"error":    translated.Error(),
		})
		return CartLine{}, translated
	}

	s.logger(ctx, "cart.line_added", map[string]any{
		"cartID":   cartID,
		"itemID":   itemID,
		"quantity": cmd.Quantity,
		"total":    line.Quantity,
	})
	return line, nil
}

func (s *cartService) RemoveLine(ctx context.Context, cartID, itemID string) (CartLine, error) {
	cid := strings.TrimSpace(cartID)
	iid := strings.TrimSpace(itemID)
	if cid == "" || iid == "" {
		return CartLine{}, fmt.Errorf("%w: cart id and item id are required", ErrCartInvalidInput)
	}

	line, err := s.repo.ReleaseLine(ctx, cid, iid)
	if err != nil {
		return CartLine{}, s.translateRepoError(err)
	}
	s.logger(ctx, "cart.line_removed", map[string]any{
		"cartID":   cid,
		"itemID":   iid,
		"restored": line.Quantity,
	})
	return line, nil
}

// FinalizeCart empties the cart after a successful checkout. Reserved stock stays consumed.
func (s *cartService) FinalizeCart(ctx context.Context, cartID string) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if err := s.repo.ClearLines(ctx, id); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.finalized", map[string]any{"cartID": id})
	return nil
}

// DeleteCart removes the cart, returning any reserved stock.
func (s *cartService) DeleteCart(ctx context.Context, cartID string) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if err := s.repo.DeleteCart(ctx, id); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.deleted", map[string]any{"cartID": id})
	return nil
}

func (s *cartService) sanitizeName(raw string) (string, error) {
	name := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(raw)))
	if name == "" {
		return "", fmt.Errorf("%w: cart name is required", ErrCartInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxCartNameLength {
		return "", fmt.Errorf("%w: cart name exceeds %d characters", ErrCartInvalidInput, maxCartNameLength)
	}
	return name, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch repositories.InventoryErrorCodeOf(err) {
	case repositories.InventoryErrorCartNotFound:
		return detail(ErrCartNotFound, err)
	case repositories.InventoryErrorItemNotFound:
		return detail(ErrCartItemNotFound, err)
	case repositories.InventoryErrorLineNotFound:
		return detail(ErrCartLineNotFound, err)
	case repositories.InventoryErrorInsufficientStock:
		return detail(ErrCartInsufficientStock, err)
	}
	if isRepoNotFound(err) {
		return ErrCartNotFound
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}
