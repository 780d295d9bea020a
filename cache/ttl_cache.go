package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pilab-dev/glass-analytics/internal/clock"
	"github.com/pilab-dev/glass-analytics/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Entry is the stored form of a cached value.
type Entry[T any] struct {
	Value     T         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ComputeFunc produces a value on a cache miss.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// ComputeUntilFunc produces a value together with the instant it stops being live.
type ComputeUntilFunc[T any] func(ctx context.Context) (T, time.Time, error)

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	clock     clock.Clock
	namespace string
}

// WithClock sets the clock used for expiry decisions.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithNamespace prefixes every key, see Digest.
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// TTLCache is an expiring key/value cache over a Store. Concurrent misses on
// the same key share a single computation; failed computations are never
// stored.
type TTLCache[T any] struct {
	name  string
	store Store
	opts  options
	group singleflight.Group

	// generations are bumped by Invalidate so a computation that started
	// before the invalidation does not write its result back.
	mu          sync.Mutex
	generations map[string]uint64
}

// New creates a TTLCache named name (used in metrics and logs) over store.
func New[T any](name string, store Store, opts ...Option) *TTLCache[T] {
	o := options{clock: clock.System}
	for _, opt := range opts {
		opt(&o)
	}

	return &TTLCache[T]{
		name:        name,
		store:       store,
		opts:        o,
		generations: make(map[string]uint64),
	}
}

// Get returns the live value for key, if any.
func (c *TTLCache[T]) Get(ctx context.Context, key string) (T, bool) {
	return c.lookup(ctx, c.storeKey(key))
}

// GetOrCompute returns the live value for key or computes, stores for ttl and
// returns a new one.
func (c *TTLCache[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[T]) (T, error) {
	return c.GetOrComputeUntil(ctx, key, func(ctx context.Context) (T, time.Time, error) {
		value, err := compute(ctx)
		if err != nil {
			return value, time.Time{}, err
		}
		return value, c.opts.clock.Now().Add(ttl), nil
	})
}

// GetOrComputeUntil is GetOrCompute for values that carry their own expiry.
func (c *TTLCache[T]) GetOrComputeUntil(ctx context.Context, key string, compute ComputeUntilFunc[T]) (T, error) {
	storeKey := c.storeKey(key)

	if value, ok := c.lookup(ctx, storeKey); ok {
		return value, nil
	}

	res, err, shared := c.group.Do(storeKey, func() (interface{}, error) {
		// A flight that finished between our lookup and Do may have stored it.
		if value, ok := c.lookupQuiet(ctx, storeKey); ok {
			return value, nil
		}

		gen := c.generation(storeKey)

		// Waiters share this computation, so one caller's cancellation must
		// not fail the others.
		value, expiresAt, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.put(ctx, storeKey, gen, value, expiresAt)

		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	if shared {
		log.Ctx(ctx).Debug().Str("cache", c.name).Str("key", key).Msg("shared in-flight computation")
	}

	return res.(T), nil
}

// Invalidate removes key immediately. A computation in flight for key keeps
// answering its waiters, including callers that arrive after Invalidate, but
// its result is not stored.
func (c *TTLCache[T]) Invalidate(ctx context.Context, key string) error {
	storeKey := c.storeKey(key)

	c.mu.Lock()
	c.generations[storeKey]++
	c.mu.Unlock()

	if err := c.store.Delete(ctx, storeKey); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache invalidate failed")
		return err
	}

	log.Ctx(ctx).Debug().Str("cache", c.name).Str("key", key).Msg("cache entry invalidated")

	return nil
}

func (c *TTLCache[T]) storeKey(key string) string {
	if c.opts.namespace == "" {
		return c.name + ":" + key
	}
	return c.name + ":" + c.opts.namespace + ":" + key
}

func (c *TTLCache[T]) generation(storeKey string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generations[storeKey]
}

func (c *TTLCache[T]) lookup(ctx context.Context, storeKey string) (T, bool) {
	value, ok, err := c.read(ctx, storeKey)
	switch {
	case err != nil:
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "error").Inc()
	case ok:
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
	default:
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
	}
	return value, ok
}

func (c *TTLCache[T]) lookupQuiet(ctx context.Context, storeKey string) (T, bool) {
	value, ok, _ := c.read(ctx, storeKey)
	return value, ok
}

// read treats backend failures and undecodable entries as misses.
func (c *TTLCache[T]) read(ctx context.Context, storeKey string) (T, bool, error) {
	var zero T

	raw, ok, err := c.store.Get(ctx, storeKey)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", storeKey).Msg("cache read failed")
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", storeKey).Msg("dropping undecodable cache entry")
		_ = c.store.Delete(ctx, storeKey)
		return zero, false, err
	}

	// An expired entry is a plain miss; the backend ttl removes it.
	if !c.opts.clock.Now().Before(entry.ExpiresAt) {
		return zero, false, nil
	}

	return entry.Value, true, nil
}

func (c *TTLCache[T]) put(ctx context.Context, storeKey string, gen uint64, value T, expiresAt time.Time) {
	ttl := expiresAt.Sub(c.opts.clock.Now())
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(Entry[T]{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", storeKey).Msg("cache entry not encodable")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[storeKey] != gen {
		return
	}

	if err := c.store.Set(ctx, storeKey, raw, ttl); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", storeKey).Msg("cache write failed")
	}
}
