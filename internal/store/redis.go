package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// GrantStore holds the restricted-artifact grants of each viewer as a
// Redis set under "grants:<viewerID>".
type GrantStore struct {
	rdb *redis.Client
}

func NewGrantStore(rdb *redis.Client) *GrantStore {
	return &GrantStore{rdb: rdb}
}

// Grants lists the artifact ids granted to viewerID.
func (s *GrantStore) Grants(ctx context.Context, viewerID string) ([]string, error) {
	return s.rdb.SMembers(ctx, "grants:"+viewerID).Result()
}

// Grant gives viewerID read access to a restricted artifact.
func (s *GrantStore) Grant(ctx context.Context, viewerID, artifactID string) error {
	return s.rdb.SAdd(ctx, "grants:"+viewerID, artifactID).Err()
}

// IdempotencyStore remembers request keys for a fixed window.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Claim records key and reports whether this is its first use.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, "idem:"+key, time.Now().Unix(), s.ttl).Result()
}

// Release forgets key after the request it guarded failed.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, "idem:"+key).Err()
}
