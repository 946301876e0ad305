/*
Package cache stores computed responses so repeated calculations are served
without recomputing.

PURPOSE:
  Comparisons, series and sweeps are pure functions of their request body.
  The API hashes the canonical request into a key and keeps the encoded
  response for a TTL.

BACKENDS:
  memory: Process-local map with per-entry expiry (default)
  redis:  Shared across replicas via redis/go-redis/v9
  none:   New returns a nil Cache; callers always recompute

FAILURE MODEL:
  A cache is an optimisation. Errors are returned so callers can log them,
  but callers are expected to fall back to computing the value.

USAGE:
  c, err := cache.New(cfg.Cache, logger)
  key := cache.Key([]byte("compare"), body)
  if b, ok, err := c.Get(ctx, key); err == nil && ok {
      return b
  }
*/
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/warp/waterfall-engine/config"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "waterfall:"

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value and true on a hit, false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// New picks a backend from configuration. It returns a nil Cache for "none".
func New(cfg config.CacheConfig, logger zerolog.Logger) (Cache, error) {
	switch cfg.Backend {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheMemory:
		return NewMemory(), nil
	case config.CacheRedis:
		return NewRedis(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Key hashes the parts into a namespaced cache key.
// Parts are length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(parts ...[]byte) string {
	d := xxhash.New()
	for _, p := range parts {
		d.WriteString(strconv.Itoa(len(p)))
		d.WriteString(":")
		d.Write(p)
	}
	return KeyPrefix + strconv.FormatUint(d.Sum64(), 16)
}
