package cache

import (
	"bytes"
	"cmp"
	"slices"
	"time"
)

// ensureSpaceLocked makes room for an entry of required bytes stored under
// key, replacing any existing entry for key. It first plans the evictions and
// only commits them when the new entry is guaranteed to fit, so a failed call
// leaves the store untouched. It returns the number of entries evicted.
//
// The plan aims to free the overflow plus EvictionMargin of the budget. When
// protected entries make the margin unreachable, it settles for the shortest
// prefix of the same ordering that still fits the entry.
func (c *Cache) ensureSpaceLocked(key Key, required int64, now time.Time) (int, bool) {
	budget := c.opts.MaxSizeBytes
	if required > budget {
		return 0, false
	}

	current := c.totalBytes
	if old, ok := c.entries[key]; ok {
		current -= old.size()
	}
	if current+required <= budget {
		return 0, true
	}

	overflow := current + required - budget
	target := overflow + int64(float64(budget)*c.opts.EvictionMargin)

	candidates := c.evictionCandidatesLocked(key, now)
	victims, freed := takeUntil(candidates, target)
	if freed < target {
		victims, freed = takeUntil(candidates, overflow)
		if freed < overflow {
			return 0, false
		}
	}

	for _, e := range victims {
		c.removeLocked(e)
	}
	c.stats.evictions += int64(len(victims))
	c.log.Debug("cache evicted entries",
		"count", len(victims), "freed_bytes", freed, "target_bytes", target)
	return len(victims), true
}

// evictionCandidatesLocked returns evictable entries in eviction order,
// skipping key itself and CRITICAL entries younger than the protection window.
func (c *Cache) evictionCandidatesLocked(key Key, now time.Time) []*entry {
	out := make([]*entry, 0, len(c.entries))
	for k, e := range c.entries {
		if k == key || c.protected(e, now) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, evictionOrder)
	return out
}

func (c *Cache) protected(e *entry, now time.Time) bool {
	return e.priority == PriorityCritical && e.age(now) < c.opts.ProtectionWindow
}

// evictionOrder sorts entries by priority (lowest first), then last access
// (oldest first), then size (largest first). The key breaks remaining ties so
// the order is deterministic.
func evictionOrder(a, b *entry) int {
	if c := cmp.Compare(a.priority, b.priority); c != 0 {
		return c
	}
	if c := a.lastAccessed.Compare(b.lastAccessed); c != 0 {
		return c
	}
	if c := cmp.Compare(b.size(), a.size()); c != 0 {
		return c
	}
	return bytes.Compare(a.key[:], b.key[:])
}

// takeUntil returns the shortest prefix of entries whose sizes sum to at least
// target, or all of entries if the target cannot be reached.
func takeUntil(entries []*entry, target int64) ([]*entry, int64) {
	var freed int64
	for i, e := range entries {
		if freed >= target {
			return entries[:i], freed
		}
		freed += e.size()
	}
	return entries, freed
}
