// Package cache implements a bounded, compressing response cache for generated
// text. Entries are keyed by a SHA-256 fingerprint of the request, carry an
// adaptive TTL computed at insertion, and are evicted by priority, recency and
// size when the configured byte budget would be exceeded. Expired entries are
// reaped lazily from normal Get/Set traffic; Sweep runs the same pass on demand.
//
// A Cache is safe for concurrent use. All bookkeeping happens under a single
// mutex; decompression of a hit runs after the lock is released.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Errors reported by the cache. ErrCorrupt is only delivered through
// Hooks.EntryCorrupt; Get never returns it.
var (
	ErrCorrupt  = errors.New("cache: corrupt entry")
	ErrCompress = errors.New("cache: compress payload")
)

// Options configure a Cache. Zero values fall back to the defaults below. The
// fields that can meaningfully be zero take a negative value for "none".
type Options struct {
	MaxSizeBytes         int64         // total budget for stored payloads; 0 => 50 MiB
	DefaultTTL           time.Duration // base TTL before adjustments; 0 => 1h
	CleanupInterval      time.Duration // min gap between lazy reaper passes; 0 => 5m
	CompressionThreshold int           // payloads larger than this are compressed; 0 => 1 KiB, <0 => compress all
	CompressionLevel     int           // gzip level; 0 => default compression
	MinTTL               time.Duration // 0 => 5m
	MaxTTL               time.Duration // 0 => 2h
	ProtectionWindow     time.Duration // young CRITICAL entries are never evicted; 0 => 5m, <0 => none
	EvictionMargin       float64       // extra fraction of budget freed per pass; 0 => 0.10, <0 => none

	SensitiveFields  []string // nil => DefaultSensitiveFields
	GenericTemplates []string // nil => DefaultGenericTemplates

	Hooks  Hooks            // nil => NopHooks
	Logger *slog.Logger     // nil => slog.Default()
	Now    func() time.Time // nil => time.Now
}

const (
	defaultMaxSize              = 50 << 20
	defaultTTL                  = time.Hour
	defaultCleanupInterval      = 5 * time.Minute
	defaultCompressionThreshold = 1024
	defaultMinTTL               = 5 * time.Minute
	defaultMaxTTL               = 2 * time.Hour
	defaultProtectionWindow     = 5 * time.Minute
	defaultEvictionMargin       = 0.10
)

// coalesce returns def when v is the zero value of T, otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// orNone is coalesce for fields whose zero is a real setting: 0 selects def
// and any negative value selects zero.
func orNone[T ~int | ~int64 | ~float64](v, def T) T {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

func (o Options) withDefaults() Options {
	o.MaxSizeBytes = coalesce(o.MaxSizeBytes, defaultMaxSize)
	o.DefaultTTL = coalesce(o.DefaultTTL, defaultTTL)
	o.CleanupInterval = coalesce(o.CleanupInterval, defaultCleanupInterval)
	o.CompressionThreshold = orNone(o.CompressionThreshold, defaultCompressionThreshold)
	o.MinTTL = coalesce(o.MinTTL, defaultMinTTL)
	o.MaxTTL = coalesce(o.MaxTTL, defaultMaxTTL)
	o.ProtectionWindow = orNone(o.ProtectionWindow, defaultProtectionWindow)
	o.EvictionMargin = orNone(o.EvictionMargin, defaultEvictionMargin)
	if o.SensitiveFields == nil {
		o.SensitiveFields = DefaultSensitiveFields
	}
	if o.GenericTemplates == nil {
		o.GenericTemplates = DefaultGenericTemplates
	}
	if o.Hooks == nil {
		o.Hooks = NopHooks{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.MaxSizeBytes < 0:
		return fmt.Errorf("cache: max size must be positive, got %d", o.MaxSizeBytes)
	case o.MinTTL > o.MaxTTL:
		return fmt.Errorf("cache: min ttl %s exceeds max ttl %s", o.MinTTL, o.MaxTTL)
	case o.EvictionMargin >= 1:
		return fmt.Errorf("cache: eviction margin must be below 1, got %v", o.EvictionMargin)
	}
	return nil
}

// counters are guarded by Cache.mu.
type counters struct {
	hits           int64
	misses         int64
	evictions      int64
	cleanups       int64
	expiredRemoved int64
	bytesServed    int64
	corrupt        int64
	rejected       int64
}

// Cache is the in-memory response cache. Construct with New.
type Cache struct {
	opts   Options
	policy TTLPolicy
	comp   *compressor
	hooks  Hooks
	log    *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	entries     map[Key]*entry
	totalBytes  int64
	lastCleanup time.Time
	stats       counters
}

// New creates a Cache from opts.
func New(opts Options) (*Cache, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	comp, err := newCompressor(opts.CompressionThreshold, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &Cache{
		opts: opts,
		policy: TTLPolicy{
			Base:             opts.DefaultTTL,
			Min:              opts.MinTTL,
			Max:              opts.MaxTTL,
			LargeContent:     LargeContentThreshold,
			MediumContent:    MediumContentThreshold,
			SensitiveFields:  opts.SensitiveFields,
			GenericTemplates: opts.GenericTemplates,
		},
		comp:        comp,
		hooks:       opts.Hooks,
		log:         opts.Logger,
		now:         opts.Now,
		entries:     make(map[Key]*entry),
		lastCleanup: opts.Now(),
	}, nil
}

// SetOptions describe the request an entry was generated for. TemplateID and
// Fields feed the TTL policy and entry metadata; they do not affect the key.
type SetOptions struct {
	TemplateID string
	Fields     map[string]string
	Config     map[string]string

	// TTL overrides the computed TTL when positive. It is rounded to whole
	// seconds and not clamped.
	TTL time.Duration

	// Priority defaults to PriorityMedium when zero.
	Priority Priority
}

// Get returns the cached content for key. Expired and corrupt entries are
// dropped and reported as misses.
func (c *Cache) Get(key Key) (string, bool) {
	now := c.now()

	c.mu.Lock()
	reaped := c.maybeCleanupLocked(now)
	e, ok := c.entries[key]
	if ok && e.expired(now) {
		c.removeLocked(e)
		c.stats.expiredRemoved++
		reaped++
		ok = false
	}
	if !ok {
		c.stats.misses++
		n, size := len(c.entries), c.totalBytes
		c.mu.Unlock()

		c.notifyReaped(reaped, n, size)
		c.hooks.Miss()
		return "", false
	}
	e.lastAccessed = now
	e.accessCount++
	c.stats.hits++
	c.stats.bytesServed += int64(e.meta.ContentLength)
	n, size := len(c.entries), c.totalBytes
	c.mu.Unlock()

	c.notifyReaped(reaped, n, size)

	// Payloads are immutable once stored, so decoding outside the lock is safe.
	content, err := c.comp.decode(e.payload, e.compressed)
	if err != nil {
		c.dropCorrupt(e, err)
		return "", false
	}
	c.hooks.Hit(len(content))
	return content, true
}

// Set stores content under key, evicting lower-value entries when the budget
// would be exceeded. It returns false without changing the store when content
// is blank or cannot fit even after every evictable entry is considered.
// A non-nil error means the payload could not be compressed.
func (c *Cache) Set(key Key, content string, opts SetOptions) (bool, error) {
	if strings.TrimSpace(content) == "" {
		c.reject("blank")
		return false, nil
	}

	ttlSeconds := c.policy.Compute(opts.TemplateID, opts.Fields, content)
	if opts.TTL > 0 {
		ttlSeconds = max(1, int(math.Round(opts.TTL.Seconds())))
	}

	now := c.now()
	e, err := c.newEntry(key, content, ttlSeconds, opts, now)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	reaped := c.maybeCleanupLocked(now)
	evicted, ok := c.ensureSpaceLocked(key, e.size(), now)
	if !ok {
		c.stats.rejected++
		n, size := len(c.entries), c.totalBytes
		c.mu.Unlock()

		c.notifyReaped(reaped, n, size)
		c.hooks.SetRejected("capacity")
		c.log.Debug("cache set rejected: insufficient space",
			"key", key.Short(), "size", e.size(), "budget", c.opts.MaxSizeBytes)
		return false, nil
	}
	if old, exists := c.entries[key]; exists {
		c.removeLocked(old)
	}
	c.entries[key] = e
	c.totalBytes += e.size()
	n, size := len(c.entries), c.totalBytes
	c.mu.Unlock()

	if evicted > 0 {
		c.hooks.Evicted(evicted)
	}
	c.notifyReaped(reaped, n, size)
	c.hooks.SizeChanged(n, size)
	return true, nil
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(e)
	}
	n, size := len(c.entries), c.totalBytes
	c.mu.Unlock()

	if ok {
		c.hooks.SizeChanged(n, size)
	}
	return ok
}

// Clear removes every entry and returns how many were removed. Counters are
// kept.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	if n > 0 {
		c.entries = make(map[Key]*entry)
		c.totalBytes = 0
	}
	c.mu.Unlock()

	if n > 0 {
		c.hooks.SizeChanged(0, 0)
		c.log.Debug("cache cleared", "removed", n)
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// newEntry builds a detached entry, compressing content above the threshold.
func (c *Cache) newEntry(key Key, content string, ttlSeconds int, opts SetOptions, now time.Time) (*entry, error) {
	e := &entry{
		key:          key,
		createdAt:    now,
		lastAccessed: now,
		ttlSeconds:   ttlSeconds,
		priority:     opts.Priority.orDefault(),
		meta:         newMetadata(opts, content),
	}
	payload, compressed, err := c.comp.maybeCompress(content)
	if err != nil {
		return nil, err
	}
	e.payload, e.compressed = payload, compressed
	return e, nil
}

// removeLocked deletes e from the map and the running total.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.totalBytes -= e.size()
}

// dropCorrupt evicts an entry whose payload failed to decode and converts the
// already counted hit into a miss.
func (c *Cache) dropCorrupt(e *entry, err error) {
	c.mu.Lock()
	if cur, ok := c.entries[e.key]; ok && cur == e {
		c.removeLocked(e)
	}
	c.stats.hits--
	c.stats.misses++
	c.stats.bytesServed -= int64(e.meta.ContentLength)
	c.stats.corrupt++
	n, size := len(c.entries), c.totalBytes
	c.mu.Unlock()

	c.log.Warn("dropped corrupt cache entry", "key", e.key.Short(), "error", err)
	c.hooks.EntryCorrupt(e.key, err)
	c.hooks.Miss()
	c.hooks.SizeChanged(n, size)
}

func (c *Cache) reject(reason string) {
	c.mu.Lock()
	c.stats.rejected++
	c.mu.Unlock()
	c.hooks.SetRejected(reason)
}

func (c *Cache) notifyReaped(reaped, n int, size int64) {
	if reaped == 0 {
		return
	}
	c.hooks.Expired(reaped)
	c.hooks.SizeChanged(n, size)
}
