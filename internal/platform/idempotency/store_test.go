package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, WithKeyPrefix("test:idem"))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return mr, store
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	res, err := store.Reserve(ctx, "k1", "fp1", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("first reserve: state=%v err=%v", res.State, err)
	}
	res, err = store.Reserve(ctx, "k1", "fp1", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStatePending {
		t.Fatalf("second reserve: state=%v err=%v", res.State, err)
	}
	if _, err := store.Reserve(ctx, "k1", "fp2", fixedTime, time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}, "Date": {"x"}}, Body: []byte(`{"ok":true}`)}
	if err := store.SaveResponse(ctx, "k1", "fp1", resp, fixedTime, time.Hour); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	res, err = store.Reserve(ctx, "k1", "fp1", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateCompleted {
		t.Fatalf("completed reserve: state=%v err=%v", res.State, err)
	}
	if res.Record.ResponseStatus != http.StatusCreated || string(res.Record.ResponseBody) != `{"ok":true}` {
		t.Fatalf("unexpected stored record %+v", res.Record)
	}
	if _, ok := res.Record.ResponseHeaders["Date"]; ok {
		t.Fatalf("hop-by-hop headers must be dropped")
	}

	if err := store.Release(ctx, "k1", "fp1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	res, err = store.Reserve(ctx, "k1", "fp1", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("reserve after release: state=%v err=%v", res.State, err)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStoreLifecycle(t *testing.T) {
	_, store := setupRedisStore(t)
	exerciseStore(t, store)
}

func TestRedisStoreRecordsExpire(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "k2", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	res, err := store.Reserve(ctx, "k2", "fp", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected fresh reservation after expiry: state=%v err=%v", res.State, err)
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, key := range []string{"a", "b", "c"} {
		if _, err := store.Reserve(ctx, key, "fp", fixedTime, time.Minute); err != nil {
			t.Fatalf("Reserve %s: %v", key, err)
		}
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(30*time.Second), 0)
	if err != nil || removed != 0 {
		t.Fatalf("nothing should expire yet: removed=%d err=%v", removed, err)
	}
	removed, err = store.CleanupExpired(ctx, fixedTime.Add(time.Hour), 2)
	if err != nil || removed != 2 {
		t.Fatalf("expected batch of 2 removed, got %d (%v)", removed, err)
	}
}

func TestRunCleanupStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunCleanup(ctx, NewMemoryStore(), time.Millisecond, 10, nil) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunCleanup: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("RunCleanup did not stop")
	}
}
