package cache

import "time"

// maybeCleanupLocked runs an expiry pass if CleanupInterval has elapsed since
// the previous one. It returns the number of entries removed.
func (c *Cache) maybeCleanupLocked(now time.Time) int {
	if now.Sub(c.lastCleanup) < c.opts.CleanupInterval {
		return 0
	}
	return c.cleanupLocked(now)
}

func (c *Cache) cleanupLocked(now time.Time) int {
	c.lastCleanup = now
	removed := 0
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			removed++
		}
	}
	c.stats.cleanups++
	c.stats.expiredRemoved += int64(removed)
	if removed > 0 {
		c.log.Debug("cache reaped expired entries", "removed", removed, "remaining", len(c.entries))
	}
	return removed
}

// Sweep runs an expiry pass immediately, regardless of CleanupInterval, and
// returns the number of entries removed. It is meant for a background sweeper;
// normal traffic reaps lazily.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	removed := c.cleanupLocked(now)
	n, size := len(c.entries), c.totalBytes
	c.mu.Unlock()

	c.notifyReaped(removed, n, size)
	return removed
}
