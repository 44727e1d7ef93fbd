// Package guard wraps the backing sheet store with the safeguards the store
// itself does not offer: a call-rate limiter kept below the store's documented
// quota, exponential-backoff retries for quota rejections, and a short-lived
// read cache with write invalidation.
package guard

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/storage"
)

// Config carries the consistency guard settings. Zero values fall back to the
// defaults below.
type Config struct {
	// QuotaPerWindow is the store's documented call quota for one window.
	QuotaPerWindow int
	// SafetyMargin scales the quota down; the effective ceiling is
	// QuotaPerWindow * SafetyMargin. Must be below 1.0 to leave headroom for
	// calls made outside this process.
	SafetyMargin float64
	// Window is the quota accounting window, 60s for the sheet service.
	Window time.Duration
	// MinCallInterval is enforced between any two calls regardless of window
	// state, to smooth bursts.
	MinCallInterval time.Duration
	CacheTTL        time.Duration
	RetryAttempts   int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.QuotaPerWindow <= 0 {
		cfg.QuotaPerWindow = 60
	}
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin >= 1.0 {
		cfg.SafetyMargin = 0.8
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MinCallInterval <= 0 {
		cfg.MinCallInterval = 100 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 16 * time.Second
	}
	return cfg
}

// Guard decorates a sheet store with rate limiting, quota retries and read
// caching. It implements storage.Interface itself so the coordinator never
// talks to the raw adapter.
type Guard struct {
	inner   storage.Interface
	cfg     Config
	limiter *rateLimiter
	cache   *readCache
}

func New(inner storage.Interface, cfg Config) *Guard {
	cfg = cfg.withDefaults()

	ceiling := int(float64(cfg.QuotaPerWindow) * cfg.SafetyMargin)
	if ceiling < 1 {
		ceiling = 1
	}

	return &Guard{
		inner:   inner,
		cfg:     cfg,
		limiter: newRateLimiter(ceiling, cfg.Window, cfg.MinCallInterval),
		cache:   newReadCache(cfg.CacheTTL),
	}
}

// InvalidateTable drops the cached rows for table. It implements
// storage.Invalidator for callers that need a guaranteed-fresh next read.
func (g *Guard) InvalidateTable(table string) {
	g.cache.Invalidate(table)
}

func (g *Guard) GetRows(ctx context.Context, table string) ([]storage.Row, error) {
	if rows, ok := g.cache.Get(table); ok {
		return rows, nil
	}

	var rows []storage.Row
	err := g.withRetry(ctx, table, func() error {
		var err error
		rows, err = g.inner.GetRows(ctx, table)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.cache.Set(table, rows)
	return rows, nil
}

func (g *Guard) AppendRow(ctx context.Context, table string, row storage.Row) error {
	g.cache.Invalidate(table)
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.inner.AppendRow(ctx, table, row)
}

func (g *Guard) UpdateRow(ctx context.Context, table string, rowIndex int, row storage.Row) error {
	g.cache.Invalidate(table)
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.inner.UpdateRow(ctx, table, rowIndex, row)
}

func (g *Guard) ClearRow(ctx context.Context, table string, rowIndex int) error {
	g.cache.Invalidate(table)
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.inner.ClearRow(ctx, table, rowIndex)
}

func (g *Guard) ClearTable(ctx context.Context, table string) error {
	g.cache.Invalidate(table)
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.inner.ClearTable(ctx, table)
}

// withRetry runs op through the rate limiter and retries quota rejections
// with exponential backoff. Validation and permission errors surface
// immediately, they are never retried.
func (g *Guard) withRetry(ctx context.Context, table string, op func() error) error {
	var lastErr error

	for attempt := 0; attempt < g.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := g.backoffDelay(attempt)
			log.Warnf("guard retries table '%s' after quota rejection in %s (attempt %d/%d)",
				table, delay, attempt+1, g.cfg.RetryAttempts)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !storage.IsQuotaError(lastErr) {
			return lastErr
		}
	}

	log.Errorf("guard exhausted %d attempts for table '%s': %s",
		g.cfg.RetryAttempts, table, lastErr.Error())
	return lastErr
}

func (g *Guard) backoffDelay(attempt int) time.Duration {
	delay := g.cfg.BackoffBase * (1 << uint(attempt-1))
	if delay > g.cfg.BackoffCap {
		delay = g.cfg.BackoffCap
	}
	return delay
}
