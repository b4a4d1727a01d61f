package cache

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Priority is a caller hint for eviction order. Lower priorities are evicted
// first. The zero value means "unset" and resolves to PriorityMedium.
type Priority int

// Priority levels, lowest first.
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p.orDefault() {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a case-insensitive priority name. An empty string
// yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("cache: unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Priority) orDefault() Priority {
	if p == 0 {
		return PriorityMedium
	}
	return p
}

// Metadata describes the request an entry was generated for. It is carried
// for diagnostics only.
type Metadata struct {
	TemplateID    string            `json:"template_id,omitempty"`
	FieldNames    []string          `json:"field_names,omitempty"`
	ContentLength int               `json:"content_length"` // uncompressed bytes
	Config        map[string]string `json:"config,omitempty"`
}

func newMetadata(opts SetOptions, content string) Metadata {
	names := make([]string, 0, len(opts.Fields))
	for k := range opts.Fields {
		names = append(names, k)
	}
	slices.Sort(names)

	var cfg map[string]string
	if len(opts.Config) > 0 {
		cfg = make(map[string]string, len(opts.Config))
		for k, v := range opts.Config {
			cfg[k] = v
		}
	}
	return Metadata{
		TemplateID:    opts.TemplateID,
		FieldNames:    names,
		ContentLength: len(content),
		Config:        cfg,
	}
}

// entry is one stored response. payload holds either the raw text or its
// gzip form, as recorded by compressed. It is immutable after construction.
type entry struct {
	key        Key
	payload    []byte
	compressed bool

	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	ttlSeconds   int
	priority     Priority
	meta         Metadata
}

func (e *entry) size() int64 {
	return int64(len(e.payload))
}

func (e *entry) age(now time.Time) time.Duration {
	return now.Sub(e.createdAt)
}

func (e *entry) expired(now time.Time) bool {
	return e.age(now) > time.Duration(e.ttlSeconds)*time.Second
}

func (e *entry) expiresAt() time.Time {
	return e.createdAt.Add(time.Duration(e.ttlSeconds) * time.Second)
}
