package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// =============================================================================
// REDIS CACHE - Shared implementation with graceful degradation
// =============================================================================

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ErrUnavailable is returned while Redis is considered down.
var ErrUnavailable = errors.New("redis unavailable")

// Redis caches in Redis. After maxFailures consecutive errors it stops
// talking to Redis and re-probes with PING every checkInterval.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger

	mu            sync.RWMutex
	healthy       bool
	failures      int
	lastCheck     time.Time
	maxFailures   int
	checkInterval time.Duration
}

// NewRedis connects to Redis. If the initial PING fails the cache starts
// in degraded mode instead of failing startup.
func NewRedis(opts RedisOptions, logger zerolog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return newRedis(client, logger)
}

func newRedis(client *redis.Client, logger zerolog.Logger) *Redis {
	r := &Redis{
		client:        client,
		logger:        logger.With().Str("component", "cache").Str("backend", "redis").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		lastCheck:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		r.logger.Warn().Err(err).Str("addr", client.Options().Addr).Msg("Redis unreachable, starting degraded")
		return r
	}

	r.healthy = true
	r.logger.Info().Str("addr", client.Options().Addr).Msg("Redis connected")
	return r
}

// Healthy reports whether Redis is currently in use.
func (r *Redis) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthy
}

// Get returns the cached value. redis.Nil is a miss, not an error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !r.available(ctx) {
		return nil, false, ErrUnavailable
	}

	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.recordSuccess()
		return nil, false, nil
	}
	if err != nil {
		r.recordFailure()
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	r.recordSuccess()
	return b, true, nil
}

// Set stores value with ttl (0 means no expiry).
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !r.available(ctx) {
		return ErrUnavailable
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	r.recordSuccess()
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// available re-probes a degraded Redis at most once per checkInterval.
func (r *Redis) available(ctx context.Context) bool {
	r.mu.RLock()
	healthy := r.healthy
	due := time.Since(r.lastCheck) >= r.checkInterval
	r.mu.RUnlock()

	if healthy {
		return true
	}
	if !due {
		return false
	}

	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return false
	}
	r.recordSuccess()
	return true
}

func (r *Redis) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures++
	if r.failures >= r.maxFailures && r.healthy {
		r.healthy = false
		r.lastCheck = time.Now()
		r.logger.Warn().Int("failures", r.failures).Msg("Redis marked unhealthy")
	}
}

func (r *Redis) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.healthy {
		r.logger.Info().Msg("Redis recovered")
	}
	r.healthy = true
	r.failures = 0
}
