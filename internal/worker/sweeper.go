package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eugener/gencache/internal/cache"
)

// Sweeper is the subset of *cache.Cache used by CacheSweeper.
type Sweeper interface {
	Sweep() int
	Stats() cache.Stats
}

// CacheSweeper periodically removes expired cache entries so idle caches do
// not hold memory until the next request triggers the lazy reaper.
type CacheSweeper struct {
	cache    Sweeper
	interval time.Duration
}

// NewCacheSweeper creates a CacheSweeper that runs every interval.
func NewCacheSweeper(c Sweeper, interval time.Duration) *CacheSweeper {
	return &CacheSweeper{cache: c, interval: interval}
}

// Name returns the worker identifier.
func (w *CacheSweeper) Name() string { return "cache_sweeper" }

// Run sweeps on every tick until ctx is cancelled.
func (w *CacheSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *CacheSweeper) sweep(ctx context.Context) {
	removed := w.cache.Sweep()
	if removed == 0 {
		return
	}
	st := w.cache.Stats()
	slog.LogAttrs(ctx, slog.LevelInfo, "cache sweep",
		slog.Int("removed", removed),
		slog.Int("entries", st.Entries),
		slog.String("size", humanize.IBytes(uint64(st.TotalBytes))),
		slog.String("budget", humanize.IBytes(uint64(st.MaxBytes))),
	)
}
