// Package idempotency deduplicates order placement retries. A key is
// marked only once the guarded operation has succeeded, so a failed
// attempt does not consume it and the caller may retry under the same
// key.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(sessionID, idempotencyKey string) string {
	return fmt.Sprintf("idem:%s:%s", sessionID, idempotencyKey)
}

// Seen reports whether the key has been marked. Read-only.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records the key after a successful operation; replays inside
// the TTL are then reported as seen.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}
