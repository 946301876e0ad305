/*
scheduler.go - Automated run retention

PURPOSE:
  Every calculation leaves a row in the runs table. The retention
  scheduler periodically deletes runs older than a maximum age so the
  audit trail doesn't grow without bound.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Prunes once immediately on start, then on every tick
  - Also sweeps expired entries from an in-memory response cache

CONFIGURATION:
  - CheckInterval: How often to prune (default: 1 hour)
  - MaxAge: Runs older than this are deleted (default: 30 days)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRetentionScheduler(store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: PruneRuns
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/waterfall-engine/cache"
	"github.com/warp/waterfall-engine/store/sqlite"
)

// RetentionScheduler prunes old calculation runs.
type RetentionScheduler struct {
	Store         *sqlite.Store
	Cache         cache.Cache
	CheckInterval time.Duration
	MaxAge        time.Duration
	Enabled       bool

	logger zerolog.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRetentionScheduler creates a new scheduler.
func NewRetentionScheduler(store *sqlite.Store, logger zerolog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		MaxAge:        30 * 24 * time.Hour,
		Enabled:       true,
		logger:        logger.With().Str("component", "retention").Logger(),
		now:           time.Now,
	}
}

// Start begins the scheduler.
func (rs *RetentionScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info().Msg("Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.logger.Info().
		Dur("check_interval", rs.CheckInterval).
		Dur("max_age", rs.MaxAge).
		Msg("Started")
}

// Stop stops the scheduler and waits for an in-flight prune to finish.
func (rs *RetentionScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info().Msg("Stopped")
	}
}

func (rs *RetentionScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.Prune(context.Background())

	for {
		select {
		case <-ticker.C:
			rs.Prune(context.Background())
		case <-stop:
			return
		}
	}
}

// Prune deletes runs older than MaxAge and returns how many were removed.
func (rs *RetentionScheduler) Prune(ctx context.Context) int64 {
	cutoff := rs.now().Add(-rs.MaxAge)

	n, err := rs.Store.PruneRuns(ctx, cutoff)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune runs")
		return 0
	}

	if mem, ok := rs.Cache.(*cache.Memory); ok {
		if dropped := mem.Sweep(); dropped > 0 {
			rs.logger.Debug().Int("entries", dropped).Msg("Swept expired cache entries")
		}
	}

	if n > 0 {
		rs.logger.Info().Int64("runs", n).Time("cutoff", cutoff).Msg("Pruned old runs")
	}
	return n
}
