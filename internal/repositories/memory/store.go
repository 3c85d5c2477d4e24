// Package memory provides a mutex-guarded, process-local implementation of the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

type lineKey struct {
	cartID string
	itemID string
}

// Store keeps items, carts, lines and admins in maps guarded by a single mutex, so every
// operation is one atomic unit with respect to every other.
type Store struct {
	mu         sync.RWMutex
	items      map[string]domain.Item
	components map[string][]domain.BundleComponent
	carts      map[string]domain.Cart
	lines      map[lineKey]int
	lineOrder  map[string][]string
	admins     map[string]domain.Admin

	health repositories.HealthRepository
}

var (
	_ repositories.Registry        = (*Store)(nil)
	_ repositories.ItemRepository  = (*Store)(nil)
	_ repositories.CartRepository  = (*Store)(nil)
	_ repositories.AdminRepository = (*Store)(nil)
)

// NewStore constructs an empty memory store.
func NewStore() *Store {
	s := &Store{
		items:      make(map[string]domain.Item),
		components: make(map[string][]domain.BundleComponent),
		carts:      make(map[string]domain.Cart),
		lines:      make(map[lineKey]int),
		lineOrder:  make(map[string][]string),
		admins:     make(map[string]domain.Admin),
	}
	s.health, _ = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	return s
}

func (s *Store) Items() repositories.ItemRepository   { return s }
func (s *Store) Carts() repositories.CartRepository   { return s }
func (s *Store) Admins() repositories.AdminRepository { return s }
func (s *Store) Health() repositories.HealthRepository {
	return s.health
}

// Close is a no-op for the memory store.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) GetItem(_ context.Context, itemID string) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return domain.Item{}, itemNotFound("memory.GetItem", itemID)
	}
	return item, nil
}

func (s *Store) ListItems(_ context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		if filter.OnSaleOnly && !item.OnSale {
			continue
		}
		if filter.BundlesOnly && !item.IsBundle {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) InsertItem(_ context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists,
			fmt.Sprintf("item %s already exists", item.ID), nil).WithOp("memory.InsertItem")
	}
	s.items[item.ID] = item
	return nil
}

func (s *Store) SetOnSale(_ context.Context, itemID string, onSale bool) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return domain.Item{}, itemNotFound("memory.SetOnSale", itemID)
	}
	item.OnSale = onSale
	s.items[itemID] = item
	return item, nil
}

func (s *Store) ListBundleComponents(_ context.Context, bundleID string) ([]domain.BundleComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.items[bundleID]; !ok {
		return nil, itemNotFound("memory.ListBundleComponents", bundleID)
	}
	return append([]domain.BundleComponent(nil), s.components[bundleID]...), nil
}

func (s *Store) InsertBundleComponent(_ context.Context, component domain.BundleComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{component.BundleID, component.ComponentID} {
		if _, ok := s.items[id]; !ok {
			return itemNotFound("memory.InsertBundleComponent", id)
		}
	}
	for _, existing := range s.components[component.BundleID] {
		if existing.ComponentID == component.ComponentID {
			return nil
		}
	}
	s.components[component.BundleID] = append(s.components[component.BundleID], component)
	return nil
}

func (s *Store) InsertCart(_ context.Context, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.carts[cart.ID]; exists {
		return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists,
			fmt.Sprintf("cart %s already exists", cart.ID), nil).WithOp("memory.InsertCart")
	}
	cart.Lines = nil
	s.carts[cart.ID] = cart
	return nil
}

func (s *Store) GetCart(_ context.Context, cartID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return domain.Cart{}, cartNotFound("memory.GetCart", cartID)
	}
	order := s.lineOrder[cartID]
	cart.Lines = make([]domain.CartLine, 0, len(order))
	for _, itemID := range order {
		cart.Lines = append(cart.Lines, domain.CartLine{
			CartID:   cartID,
			ItemID:   itemID,
			Quantity: s.lines[lineKey{cartID, itemID}],
		})
	}
	return cart, nil
}

func (s *Store) DeleteCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return cartNotFound("memory.DeleteCart", cartID)
	}
	for _, itemID := range s.lineOrder[cartID] {
		key := lineKey{cartID, itemID}
		if item, ok := s.items[itemID]; ok {
			item.Stock += s.lines[key]
			s.items[itemID] = item
		}
		delete(s.lines, key)
	}
	delete(s.lineOrder, cartID)
	delete(s.carts, cartID)
	return nil
}

func (s *Store) ReserveLine(_ context.Context, req domain.LineReservation) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[req.CartID]
	if !ok {
		return domain.CartLine{}, cartNotFound("memory.ReserveLine", req.CartID)
	}
	item, ok := s.items[req.ItemID]
	if !ok {
		return domain.CartLine{}, itemNotFound("memory.ReserveLine", req.ItemID)
	}
	if item.Stock < req.Quantity {
		return domain.CartLine{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
			fmt.Sprintf("item %s has %d in stock, %d requested", item.ID, item.Stock, req.Quantity), nil).WithOp("memory.ReserveLine")
	}

	item.Stock -= req.Quantity
	s.items[item.ID] = item

	key := lineKey{req.CartID, req.ItemID}
	if _, exists := s.lines[key]; !exists {
		s.lineOrder[req.CartID] = append(s.lineOrder[req.CartID], req.ItemID)
	}
	s.lines[key] += req.Quantity

	if !req.At.IsZero() {
		cart.UpdatedAt = req.At
		s.carts[cart.ID] = cart
	}

	return domain.CartLine{CartID: req.CartID, ItemID: req.ItemID, Quantity: s.lines[key]}, nil
}

func (s *Store) ReleaseLine(_ context.Context, cartID, itemID string) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return domain.CartLine{}, cartNotFound("memory.ReleaseLine", cartID)
	}
	key := lineKey{cartID, itemID}
	quantity, ok := s.lines[key]
	if !ok {
		return domain.CartLine{}, repositories.NewInventoryError(repositories.InventoryErrorLineNotFound,
			fmt.Sprintf("cart %s has no line for item %s", cartID, itemID), nil).WithOp("memory.ReleaseLine")
	}

	if item, exists := s.items[itemID]; exists {
		item.Stock += quantity
		s.items[itemID] = item
	}
	delete(s.lines, key)
	order := s.lineOrder[cartID]
	for i, id := range order {
		if id == itemID {
			s.lineOrder[cartID] = append(order[:i:i], order[i+1:]...)
			break
		}
	}

	return domain.CartLine{CartID: cartID, ItemID: itemID, Quantity: quantity}, nil
}

func (s *Store) ClearLines(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return cartNotFound("memory.ClearLines", cartID)
	}
	for _, itemID := range s.lineOrder[cartID] {
		delete(s.lines, lineKey{cartID, itemID})
	}
	delete(s.lineOrder, cartID)
	return nil
}

func (s *Store) FindAdmin(_ context.Context, username string) (domain.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admin, ok := s.admins[username]
	if !ok {
		return domain.Admin{}, repositories.NewInventoryError(repositories.InventoryErrorAdminNotFound,
			fmt.Sprintf("admin %s not found", username), nil).WithOp("memory.FindAdmin")
	}
	return admin, nil
}

func (s *Store) InsertAdmin(_ context.Context, admin domain.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.admins[admin.Username]; exists {
		return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists,
			fmt.Sprintf("admin %s already exists", admin.Username), nil).WithOp("memory.InsertAdmin")
	}
	s.admins[admin.Username] = admin
	return nil
}

func (s *Store) ListAdmins(context.Context) ([]domain.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admins := make([]domain.Admin, 0, len(s.admins))
	for _, admin := range s.admins {
		admins = append(admins, admin)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Username < admins[j].Username })
	return admins, nil
}

func itemNotFound(op, itemID string) error {
	return repositories.NewInventoryError(repositories.InventoryErrorItemNotFound,
		fmt.Sprintf("item %s not found", itemID), nil).WithOp(op)
}

func cartNotFound(op, cartID string) error {
	return repositories.NewInventoryError(repositories.InventoryErrorCartNotFound,
		fmt.Sprintf("cart %s not found", cartID), nil).WithOp(op)
}
