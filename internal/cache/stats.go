package cache

import (
	"slices"
	"time"
)

// Stats is a point-in-time snapshot of cache state and counters.
type Stats struct {
	Entries           int     `json:"cache_entries"`
	CompressedEntries int     `json:"compressed_entries"`
	TotalBytes        int64   `json:"total_size_bytes"`
	MaxBytes          int64   `json:"max_size_bytes"`
	AvgEntryBytes     float64 `json:"avg_entry_size_bytes"`
	Hits              int64   `json:"hits"`
	Misses            int64   `json:"misses"`
	HitRate           float64 `json:"hit_rate"` // hits / (hits + misses)
	Evictions         int64   `json:"evictions"`
	Cleanups          int64   `json:"cleanups"`
	ExpiredRemoved    int64   `json:"expired_removed"`
	BytesServed       int64   `json:"bytes_served"`
	Corrupt           int64   `json:"corrupt_entries"`
	Rejected          int64   `json:"rejected_sets"`
}

// Stats returns a snapshot. It does not trigger the reaper.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:        len(c.entries),
		TotalBytes:     c.totalBytes,
		MaxBytes:       c.opts.MaxSizeBytes,
		Hits:           c.stats.hits,
		Misses:         c.stats.misses,
		Evictions:      c.stats.evictions,
		Cleanups:       c.stats.cleanups,
		ExpiredRemoved: c.stats.expiredRemoved,
		BytesServed:    c.stats.bytesServed,
		Corrupt:        c.stats.corrupt,
		Rejected:       c.stats.rejected,
	}
	for _, e := range c.entries {
		if e.compressed {
			s.CompressedEntries++
		}
	}
	if s.Entries > 0 {
		s.AvgEntryBytes = float64(s.TotalBytes) / float64(s.Entries)
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// EntryRecord is the full bookkeeping state of one entry.
type EntryRecord struct {
	Key          string    `json:"key"`
	Priority     Priority  `json:"priority"`
	Compressed   bool      `json:"compressed"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessCount  int64     `json:"access_count"`
	TTLSeconds   int       `json:"ttl_seconds"`
	AgeSeconds   float64   `json:"age_seconds"`
	Expired      bool      `json:"expired"`
	Metadata     Metadata  `json:"metadata"`
}

// EntryDetails returns the bookkeeping state for key without counting an
// access. Expired entries are reported, not removed.
func (c *Cache) EntryDetails(key Key) (EntryRecord, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return EntryRecord{}, false
	}
	meta := e.meta
	meta.FieldNames = slices.Clone(meta.FieldNames)
	if meta.Config != nil {
		cfg := make(map[string]string, len(meta.Config))
		for k, v := range meta.Config {
			cfg[k] = v
		}
		meta.Config = cfg
	}
	return EntryRecord{
		Key:          key.String(),
		Priority:     e.priority,
		Compressed:   e.compressed,
		SizeBytes:    e.size(),
		CreatedAt:    e.createdAt,
		LastAccessed: e.lastAccessed,
		ExpiresAt:    e.expiresAt(),
		AccessCount:  e.accessCount,
		TTLSeconds:   e.ttlSeconds,
		AgeSeconds:   e.age(now).Seconds(),
		Expired:      e.expired(now),
		Metadata:     meta,
	}, true
}

// Keys returns the keys of all stored entries in no particular order.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
