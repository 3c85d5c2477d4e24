package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "seagull:idempotency"

// RedisStore keeps one JSON record per key and lets Redis expire it, so CleanupExpired has
// nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption customises the RedisStore behaviour.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the namespace prepended to every Redis key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore constructs a Redis-backed idempotency store. The client should already be
// connected.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type redisRecord struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, recordID(key))
}

// Reserve claims the key with SETNX on a pending record, falling back to the stored record
// when the key is already held.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ttl = normalizeTTL(ttl)
	rkey := s.redisKey(key)
	pending := pendingRecord(key, fingerprint, now.UTC(), ttl)

	for attempt := 0; attempt < 2; attempt++ {
		data, err := json.Marshal(redisRecord(pending))
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
		}
		created, err := s.client.SetNX(ctx, rkey, data, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve %s: %w", key, err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: pending}, nil
		}
		existing, err := s.loadWith(ctx, s.client, rkey)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Reservation{}, err
		}
		return Record(existing).reservation(fingerprint)
	}
	return Reservation{}, fmt.Errorf("idempotency: reserve %s: key churned during reservation", key)
}

// SaveResponse marks the record completed under WATCH, so a concurrent Release aborts the
// write instead of resurrecting the key.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ttl = normalizeTTL(ttl)
	rkey := s.redisKey(key)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := s.loadWith(ctx, tx, rkey)
		record := Record(stored)
		switch {
		case errors.Is(err, redis.Nil):
			record = Record{Key: key, Fingerprint: fingerprint}
		case err != nil:
			return err
		case record.Fingerprint != fingerprint:
			return ErrFingerprintMismatch
		}
		record.complete(resp, now.UTC(), ttl)

		data, err := json.Marshal(redisRecord(record))
		if err != nil {
			return fmt.Errorf("idempotency: encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, data, ttl)
			return nil
		})
		return err
	}, rkey)
}

// Release deletes the reservation so that subsequent attempts may retry.
func (s *RedisStore) Release(ctx context.Context, key, _ string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", key, err)
	}
	return nil
}

// CleanupExpired is a no-op; records carry a Redis TTL.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) loadWith(ctx context.Context, g getter, rkey string) (redisRecord, error) {
	raw, err := g.Get(ctx, rkey).Bytes()
	if err != nil {
		return redisRecord{}, err
	}
	var record redisRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return redisRecord{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, nil
}
