package telemetry

import (
	"log/slog"

	"github.com/eugener/gencache/internal/cache"
)

// CacheHooks feeds cache events into Metrics.
type CacheHooks struct {
	m *Metrics
}

var _ cache.Hooks = (*CacheHooks)(nil)

// NewCacheHooks returns cache.Hooks backed by m.
func NewCacheHooks(m *Metrics) *CacheHooks {
	return &CacheHooks{m: m}
}

func (h *CacheHooks) Hit(bytes int) {
	h.m.CacheHits.Inc()
	h.m.CacheBytesServed.Add(float64(bytes))
}

func (h *CacheHooks) Miss() { h.m.CacheMisses.Inc() }

func (h *CacheHooks) Evicted(count int) { h.m.CacheEvictions.Add(float64(count)) }

func (h *CacheHooks) Expired(count int) { h.m.CacheExpired.Add(float64(count)) }

// EntryCorrupt counts the drop and logs it; the cache has already turned the
// lookup into a miss.
func (h *CacheHooks) EntryCorrupt(key cache.Key, err error) {
	h.m.CacheCorrupt.Inc()
	slog.Error("cache entry corrupt", "key", key.Short(), "error", err)
}

func (h *CacheHooks) SetRejected(reason string) {
	h.m.CacheRejected.WithLabelValues(reason).Inc()
}

func (h *CacheHooks) SizeChanged(entries int, bytes int64) {
	h.m.CacheEntries.Set(float64(entries))
	h.m.CacheBytes.Set(float64(bytes))
}
