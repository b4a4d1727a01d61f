package cache

// Hooks receive cache events for telemetry. Implementations must be cheap and
// non-blocking; they are called on the Get/Set path after the cache lock is
// released.
type Hooks interface {
	// Hit is called for each successful Get with the decoded content length.
	Hit(bytes int)
	// Miss is called for each Get that returns nothing.
	Miss()
	// Evicted reports entries removed to make room for a Set.
	Evicted(count int)
	// Expired reports entries removed because their TTL elapsed.
	Expired(count int)
	// EntryCorrupt reports an entry dropped because its payload failed to decode.
	EntryCorrupt(key Key, err error)
	// SetRejected reports a Set that stored nothing.
	// reason ∈ {"blank", "capacity"}
	SetRejected(reason string)
	// SizeChanged reports the entry count and stored bytes after a mutation.
	SizeChanged(entries int, bytes int64)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) Hit(int)                 {}
func (NopHooks) Miss()                   {}
func (NopHooks) Evicted(int)             {}
func (NopHooks) Expired(int)             {}
func (NopHooks) EntryCorrupt(Key, error) {}
func (NopHooks) SetRejected(string)      {}
func (NopHooks) SizeChanged(int, int64)  {}
