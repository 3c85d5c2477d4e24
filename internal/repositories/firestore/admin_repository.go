package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/seagull-retail/api/internal/domain"
	pfirestore "github.com/seagull-retail/api/internal/platform/firestore"
	"github.com/seagull-retail/api/internal/repositories"
)

type adminDocument struct {
	PasswordHash string    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func (s *Store) FindAdmin(ctx context.Context, username string) (domain.Admin, error) {
	doc, err := s.admins.Get(ctx, username)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Admin{}, notFound(repositories.InventoryErrorAdminNotFound, fmt.Sprintf("admin %s not found", username), err).WithOp("admins.get")
		}
		return domain.Admin{}, wrapInventoryError("admins.get", err)
	}
	return domain.Admin{Username: doc.ID, PasswordHash: doc.Data.PasswordHash, CreatedAt: doc.Data.CreatedAt.UTC()}, nil
}

// InsertAdmin uses a Create precondition keyed by username, which fails atomically
// when a concurrent insert won.
func (s *Store) InsertAdmin(ctx context.Context, admin domain.Admin) error {
	ref, err := s.admins.Doc(ctx, admin.Username)
	if err != nil {
		return err
	}
	doc := adminDocument{PasswordHash: admin.PasswordHash, CreatedAt: admin.CreatedAt.UTC()}
	if _, err := ref.Create(ctx, doc); err != nil {
		if pfirestore.IsAlreadyExists(err) {
			return repositories.NewInventoryError(repositories.InventoryErrorAlreadyExists, fmt.Sprintf("admin %s already exists", admin.Username), err).WithOp("admins.insert")
		}
		return wrapInventoryError("admins.insert", err)
	}
	return nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	docs, err := s.admins.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, wrapInventoryError("admins.list", err)
	}
	admins := make([]domain.Admin, 0, len(docs))
	for _, doc := range docs {
		admins = append(admins, domain.Admin{Username: doc.ID, PasswordHash: doc.Data.PasswordHash, CreatedAt: doc.Data.CreatedAt.UTC()})
	}
	return admins, nil
}
