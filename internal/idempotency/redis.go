// Package idempotency consumes client-supplied tokens at most once within a
// bounded TTL, so retried booking requests never create duplicate
// appointments.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight means another request with the same token is still running.
var ErrInFlight = errors.New("idempotency token in flight")

// Store is the token ledger consumed by the booking manager.
type Store interface {
	// Acquire consumes the token. It returns (true, "") for a fresh token,
	// (false, reference) for a token already completed, and ErrInFlight for a
	// token another request is currently using.
	Acquire(ctx context.Context, tenant, token string) (bool, string, error)
	// Complete records the booking reference produced under the token.
	Complete(ctx context.Context, tenant, token, reference string) error
	// Release frees a token whose request failed, so the client may retry it.
	Release(ctx context.Context, tenant, token string) error
}

const pending = "__pending__"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(tenant, token string) string {
	return fmt.Sprintf("idem:%s:%s", tenant, token)
}

func (s *RedisStore) Acquire(ctx context.Context, tenant, token string) (bool, string, error) {
	const op = "idempotency.RedisStore.Acquire"

	ok, err := s.client.SetNX(ctx, key(tenant, token), pending, s.ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return true, "", nil
	}

	val, err := s.client.Get(ctx, key(tenant, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SetNX and Get; treat as in flight and let the
			// client retry.
			return false, "", fmt.Errorf("%s: %w", op, ErrInFlight)
		}
		return false, "", fmt.Errorf("%s: %w", op, err)
	}

	if val == pending {
		return false, "", fmt.Errorf("%s: %w", op, ErrInFlight)
	}

	return false, val, nil
}

func (s *RedisStore) Complete(ctx context.Context, tenant, token, reference string) error {
	const op = "idempotency.RedisStore.Complete"

	if err := s.client.Set(ctx, key(tenant, token), reference, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *RedisStore) Release(ctx context.Context, tenant, token string) error {
	const op = "idempotency.RedisStore.Release"

	if err := s.client.Del(ctx, key(tenant, token)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
