//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/seagull-retail/api/internal/platform/config"
	pfirestore "github.com/seagull-retail/api/internal/platform/firestore"
	"github.com/seagull-retail/api/internal/platform/firestore/firestoretest"
)

type counterEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndCollectionIntegration(t *testing.T) {
	endpoint := firestoretest.Endpoint(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "platform-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	coll := pfirestore.NewCollection[counterEntity](provider, "counters")
	ref, err := coll.Doc(ctx, "c-1")
	if err != nil {
		t.Fatalf("doc ref: %v", err)
	}
	if _, err := ref.Set(ctx, counterEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	doc, err := coll.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.ID != "c-1" || doc.Data.Name != "alpha" || doc.Data.Count != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}

	if _, err := coll.Get(ctx, "missing"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := pfirestore.Decode[counterEntity](snap)
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: "count", Value: current.Data.Count + 1}})
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("count", "==", 2)
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document after transaction, got %d", len(docs))
	}

	sentinel := errors.New("abort")
	if err := provider.RunTransaction(ctx, func(context.Context, *firestore.Transaction) error {
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to surface, got %v", err)
	}

	cancelled, cancelTx := context.WithCancel(context.Background())
	cancelTx()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}
