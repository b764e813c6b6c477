// Package dedup tracks product identities across jobs so repeated runs of
// the same query can tell fresh listings from ones already captured.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore records product identities in Redis with a sliding TTL.
// It is advisory: a run never fails because Redis is down, callers treat
// errors as "not seen" and keep going.
type SeenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSeenStore(client *redis.Client, ttl time.Duration) *SeenStore {
	if ttl == 0 {
		ttl = 24 * time.Hour * 30
	}
	return &SeenStore{
		client: client,
		prefix: "seen",
		ttl:    ttl,
	}
}

// Seen reports whether the identity has been recorded within the TTL window.
func (s *SeenStore) Seen(ctx context.Context, identity string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.makeKey(identity)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return exists > 0, nil
}

// Mark records the identity and resets its TTL.
func (s *SeenStore) Mark(ctx context.Context, identity string) error {
	err := s.client.Set(ctx, s.makeKey(identity), time.Now().Unix(), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MarkAll records a batch of identities in a single round trip.
func (s *SeenStore) MarkAll(ctx context.Context, identities []string) error {
	if len(identities) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	now := time.Now().Unix()
	for _, id := range identities {
		pipe.Set(ctx, s.makeKey(id), now, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (s *SeenStore) makeKey(identity string) string {
	return fmt.Sprintf("%s:%s", s.prefix, identity)
}
