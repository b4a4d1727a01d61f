package cache

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for Options.Now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// recordingHooks captures hook calls.
type recordingHooks struct {
	mu       sync.Mutex
	hits     int
	misses   int
	evicted  int
	expired  int
	corrupt  []error
	rejected []string
	entries  int
	bytes    int64
}

func (h *recordingHooks) Hit(int) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()
}
func (h *recordingHooks) Miss() {
	h.mu.Lock()
	h.misses++
	h.mu.Unlock()
}
func (h *recordingHooks) Evicted(n int) {
	h.mu.Lock()
	h.evicted += n
	h.mu.Unlock()
}
func (h *recordingHooks) Expired(n int) {
	h.mu.Lock()
	h.expired += n
	h.mu.Unlock()
}
func (h *recordingHooks) EntryCorrupt(_ Key, err error) {
	h.mu.Lock()
	h.corrupt = append(h.corrupt, err)
	h.mu.Unlock()
}
func (h *recordingHooks) SetRejected(reason string) {
	h.mu.Lock()
	h.rejected = append(h.rejected, reason)
	h.mu.Unlock()
}
func (h *recordingHooks) SizeChanged(entries int, bytes int64) {
	h.mu.Lock()
	h.entries, h.bytes = entries, bytes
	h.mu.Unlock()
}

func newTestCache(t *testing.T, opts Options) (*Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, clock
}

func testKey(id string) Key {
	return DeriveKey("test", map[string]string{"id": id}, nil)
}

func mustSet(t *testing.T, c *Cache, key Key, content string, opts SetOptions) {
	t.Helper()
	ok, err := c.Set(key, content, opts)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !ok {
		t.Fatal("Set returned false, want true")
	}
}
