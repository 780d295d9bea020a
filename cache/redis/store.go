package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements cache.Store using Redis, so every process pointed at the
// same server shares cached tokens and reports.
type Store struct {
	client redis.UniversalClient
	prefix string // Optional prefix for keys
}

// NewStore creates a new [Store] instance.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given cache key.
func (r *Store) redisKey(key string) string {
	if r.prefix == "" {
		return "cache:" + key
	}
	return fmt.Sprintf("%s:cache:%s", r.prefix, key)
}

// Get retrieves a value from Redis.
func (r *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key from Redis: %w", err)
	}

	return res, true, nil
}

// Set stores a value with an expiry.
func (r *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key in Redis: %w", err)
	}

	return nil
}

// Delete removes a value from Redis.
func (r *Store) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key from Redis: %w", err)
	}

	return nil
}

// Close closes the underlying client.
func (r *Store) Close() error {
	return r.client.Close()
}
