package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/seagull-retail/api/internal/platform/firestore"
	"github.com/seagull-retail/api/internal/repositories"
)

const (
	itemsCollection      = "items"
	componentsCollection = "bundleComponents"
	cartsCollection      = "carts"
	linesSubcollection   = "lines"
	adminsCollection     = "admins"
)

// Store implements the repositories registry on top of Firestore. Stock moves run inside
// Firestore transactions; inserts rely on Create preconditions for uniqueness.
type Store struct {
	provider   *pfirestore.Provider
	items      *pfirestore.Collection[itemDocument]
	components *pfirestore.Collection[componentDocument]
	carts      *pfirestore.Collection[cartDocument]
	admins     *pfirestore.Collection[adminDocument]
	health     repositories.HealthRepository
}

var (
	_ repositories.Registry        = (*Store)(nil)
	_ repositories.ItemRepository  = (*Store)(nil)
	_ repositories.CartRepository  = (*Store)(nil)
	_ repositories.AdminRepository = (*Store)(nil)
)

// NewStore constructs a Firestore backed store.
func NewStore(provider *pfirestore.Provider) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires firestore provider")
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "firestore",
		Check: provider.Ping,
	}})
	if err != nil {
		return nil, err
	}
	return &Store{
		provider:   provider,
		items:      pfirestore.NewCollection[itemDocument](provider, itemsCollection),
		components: pfirestore.NewCollection[componentDocument](provider, componentsCollection),
		carts:      pfirestore.NewCollection[cartDocument](provider, cartsCollection),
		admins:     pfirestore.NewCollection[adminDocument](provider, adminsCollection),
		health:     health,
	}, nil
}

func (s *Store) Items() repositories.ItemRepository    { return s }
func (s *Store) Carts() repositories.CartRepository    { return s }
func (s *Store) Admins() repositories.AdminRepository  { return s }
func (s *Store) Health() repositories.HealthRepository { return s.health }

// Close releases the Firestore client.
func (s *Store) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			return invErr.WithOp(op)
		}
		return invErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	wrapped := pfirestore.WrapError(op, err)
	var fsErr *pfirestore.Error
	if errors.As(wrapped, &fsErr) && fsErr.IsUnavailable() {
		return &repositories.InventoryError{Op: op, Code: repositories.InventoryErrorUnavailable, Message: "firestore unavailable", Err: wrapped}
	}
	return wrapped
}

func notFound(code repositories.InventoryErrorCode, message string, err error) *repositories.InventoryError {
	return repositories.NewInventoryError(code, message, err)
}
