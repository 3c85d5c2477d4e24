package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
	"github.com/seagull-retail/api/internal/repositories/memory"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type stubCartRepository struct {
	insertFunc  func(context.Context, domain.Cart) error
	getFunc     func(context.Context, string) (domain.Cart, error)
	deleteFunc  func(context.Context, string) error
	reserveFunc func(context.Context, domain.LineReservation) (domain.CartLine, error)
	releaseFunc func(context.Context, string, string) (domain.CartLine, error)
	clearFunc   func(context.Context, string) error
}

var _ repositories.CartRepository = (*stubCartRepository)(nil)

func (s *stubCartRepository) InsertCart(ctx context.Context, cart domain.Cart) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, cart)
	}
	return nil
}

func (s *stubCartRepository) GetCart(ctx context.Context, id string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, id)
	}
	return domain.Cart{}, nil
}

func (s *stubCartRepository) DeleteCart(ctx context.Context, id string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, id)
	}
	return nil
}

func (s *stubCartRepository) ReserveLine(ctx context.Context, req domain.LineReservation) (domain.CartLine, error) {
	if s.reserveFunc != nil {
		return s.reserveFunc(ctx, req)
	}
	return domain.CartLine{}, nil
}

func (s *stubCartRepository) ReleaseLine(ctx context.Context, cartID, itemID string) (domain.CartLine, error) {
	if s.releaseFunc != nil {
		return s.releaseFunc(ctx, cartID, itemID)
	}
	return domain.CartLine{}, nil
}

func (s *stubCartRepository) ClearLines(ctx context.Context, id string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, id)
	}
	return nil
}

// seededStore returns a memory store holding a small catalog and one empty cart "cart-1".
func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	items := []domain.Item{
		{ID: "000001", Name: "Seagull Drink", MSRP: 175, SalePrice: 150, Stock: 10},
		{ID: "000002", Name: "Chips", MSRP: 299, SalePrice: 249, Stock: 5, OnSale: true},
		{ID: "100020", Name: "Food Bundle", MSRP: 399, SalePrice: 100, Stock: 3, IsBundle: true, OnSale: true},
	}
	for _, item := range items {
		if err := store.InsertItem(ctx, item); err != nil {
			t.Fatalf("insert item %s: %v", item.ID, err)
		}
	}
	if err := store.InsertCart(ctx, domain.Cart{ID: "cart-1", Name: "Stella", CreatedAt: fixedNow, UpdatedAt: fixedNow}); err != nil {
		t.Fatalf("insert cart: %v", err)
	}
	return store
}

func newTestCartService(t *testing.T, repo repositories.CartRepository) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Repository:  repo,
		Clock:       fixedClock,
		IDGenerator: func() string { return "cart-new" },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func stockOf(t *testing.T, store *memory.Store, itemID string) int {
	t.Helper()
	item, err := store.GetItem(context.Background(), itemID)
	if err != nil {
		t.Fatalf("get item %s: %v", itemID, err)
	}
	return item.Stock
}

func TestNewCartServiceRequiresDependencies(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{Clock: fixedClock}); !errors.Is(err, errCartRepositoryRequired) {
		t.Fatalf("expected repository error, got %v", err)
	}
	if _, err := NewCartService(CartServiceDeps{Repository: &stubCartRepository{}}); !errors.Is(err, errCartClockRequired) {
		t.Fatalf("expected clock error, got %v", err)
	}
}

func TestCartServiceCreateCartSanitizesName(t *testing.T) {
	var inserted domain.Cart
	repo := &stubCartRepository{
		insertFunc: func(_ context.Context, cart domain.Cart) error {
			inserted = cart
			return nil
		},
	}
	svc := newTestCartService(t, repo)

	cart, err := svc.CreateCart(context.Background(), CreateCartCommand{Name: "  <b>Stella</b> & co "})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if cart.ID != "cart-new" || inserted.ID != "cart-new" {
		t.Fatalf("expected generated id, got %q / %q", cart.ID, inserted.ID)
	}
	if cart.Name != "Stella & co" {
		t.Fatalf("unexpected name %q", cart.Name)
	}
	if !cart.CreatedAt.Equal(fixedNow) || !inserted.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected timestamps %s, got %s", fixedNow, cart.CreatedAt)
	}
	if cart.Lines == nil || len(cart.Lines) != 0 {
		t.Fatalf("expected empty lines, got %#v", cart.Lines)
	}
}

func TestCartServiceCreateCartRejectsInvalidNames(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepository{})
	for _, name := range []string{"", "   ", "<script></script>", strings.Repeat("a", maxCartNameLength+1)} {
		if _, err := svc.CreateCart(context.Background(), CreateCartCommand{Name: name}); !errors.Is(err, ErrValidation) {
			t.Fatalf("name %q: expected validation error, got %v", name, err)
		}
	}
}

func TestCartServiceAddLineMovesStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := newTestCartService(t, store)

	line, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000001", Quantity: 3})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if line.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", line.Quantity)
	}
	line, err = svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000001", Quantity: 2})
	if err != nil {
		t.Fatalf("AddLine second: %v", err)
	}
	if line.Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", line.Quantity)
	}
	if got := stockOf(t, store, "000001"); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}

	cart, err := svc.GetCart(ctx, "cart-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected a single merged line, got %#v", cart.Lines)
	}
}

func TestCartServiceAddLineRejectsInsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := newTestCartService(t, store)

	_, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000002", Quantity: 6})
	if !errors.Is(err, ErrCartInsufficientStock) || !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, store, "000002"); got != 5 {
		t.Fatalf("stock must be unchanged, got %d", got)
	}
	cart, _ := svc.GetCart(ctx, "cart-1")
	if len(cart.Lines) != 0 {
		t.Fatalf("expected no lines after rejection, got %#v", cart.Lines)
	}
}

func TestCartServiceAddLineValidation(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepository{
		reserveFunc: func(context.Context, domain.LineReservation) (domain.CartLine, error) {
			t.Fatalf("repository must not be called")
			return domain.CartLine{}, nil
		},
	})
	cases := []AddLineCommand{
		{ItemID: "000001", Quantity: 1},
		{CartID: "cart-1", Quantity: 1},
		{CartID: "cart-1", ItemID: "000001", Quantity: 0},
		{CartID: "cart-1", ItemID: "000001", Quantity: -2},
	}
	for _, cmd := range cases {
		if _, err := svc.AddLine(context.Background(), cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("%+v: expected invalid input, got %v", cmd, err)
		}
	}
}

func TestCartServiceAddLineNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestCartService(t, seededStore(t))

	if _, err := svc.AddLine(ctx, AddLineCommand{CartID: "missing", ItemID: "000001", Quantity: 1}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected cart not found, got %v", err)
	}
	if _, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "999999", Quantity: 1}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestCartServiceAddLineConcurrentConservesStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := newTestCartService(t, store)

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000001", Quantity: 1}); err == nil {
				succeeded.Add(1)
			} else if !errors.Is(err, ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 10 {
		t.Fatalf("expected 10 successful adds, got %d", succeeded.Load())
	}
	if got := stockOf(t, store, "000001"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCartServiceRemoveLineRestoresStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := newTestCartService(t, store)

	if _, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000001", Quantity: 4}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	line, err := svc.RemoveLine(ctx, "cart-1", "000001")
	if err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if line.Quantity != 4 {
		t.Fatalf("expected restored quantity 4, got %d", line.Quantity)
	}
	if got := stockOf(t, store, "000001"); got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}
	if _, err := svc.RemoveLine(ctx, "cart-1", "000001"); !errors.Is(err, ErrCartLineNotFound) {
		t.Fatalf("expected line not found, got %v", err)
	}
}

func TestCartServiceDeleteCartReleasesStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := newTestCartService(t, store)

	if _, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000002", Quantity: 2}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if err := svc.DeleteCart(ctx, "cart-1"); err != nil {
		t.Fatalf("DeleteCart: %v", err)
	}
	if got := stockOf(t, store, "000002"); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
	if _, err := svc.GetCart(ctx, "cart-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCartServiceFinalizeKeepsStockConsumed(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := newTestCartService(t, store)

	if _, err := svc.AddLine(ctx, AddLineCommand{CartID: "cart-1", ItemID: "000001", Quantity: 2}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if err := svc.FinalizeCart(ctx, "cart-1"); err != nil {
		t.Fatalf("FinalizeCart: %v", err)
	}
	cart, err := svc.GetCart(ctx, "cart-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected cleared lines, got %#v", cart.Lines)
	}
	if got := stockOf(t, store, "000001"); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
}

func TestCartServiceTranslatesBackendFailures(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, repositories.NewInventoryError(repositories.InventoryErrorUnavailable, "store down", fmt.Errorf("dial"))
		},
		clearFunc: func(context.Context, string) error {
			return context.DeadlineExceeded
		},
	}
	svc := newTestCartService(t, repo)

	if _, err := svc.GetCart(context.Background(), "cart-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if err := svc.FinalizeCart(context.Background(), "cart-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded passthrough, got %v", err)
	}
}
