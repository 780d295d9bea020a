package cache

import (
	"context"
	"time"
)

// Store is the physical backend of a TTLCache. Values are opaque bytes; the
// ttl is a housekeeping hint, liveness is always decided by the TTLCache clock.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
