package cache

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Content-length thresholds, in characters, above which a response is
// considered expensive to regenerate.
const (
	LargeContentThreshold  = 5000
	MediumContentThreshold = 2000
)

// DefaultSensitiveFields are substrings of field names that mark a request as
// built from personal data.
var DefaultSensitiveFields = []string{
	"personal", "name", "email", "phone", "address", "birth", "contact",
}

// DefaultGenericTemplates are substrings of template IDs that mark a template
// as reusable across many inputs.
var DefaultGenericTemplates = []string{
	"generic", "standard", "common", "default", "reusable",
}

// TTLPolicy computes per-entry lifetimes. Rules apply in a fixed order:
// content size, then personal-data fields, then generic templates, then the
// [Min, Max] clamp.
type TTLPolicy struct {
	Base          time.Duration
	Min           time.Duration
	Max           time.Duration
	LargeContent  int // characters; TTL x2 above this
	MediumContent int // characters; TTL x1.5 above this

	SensitiveFields  []string // TTL x0.5 if any field name contains one
	GenericTemplates []string // TTL x1.3 if the template ID contains one
}

// Compute returns the TTL in whole seconds for a response. It is pure.
func (p TTLPolicy) Compute(templateID string, fields map[string]string, content string) int {
	ttl := p.Base.Seconds()

	switch n := utf8.RuneCountInString(content); {
	case p.LargeContent > 0 && n > p.LargeContent:
		ttl *= 2
	case p.MediumContent > 0 && n > p.MediumContent:
		ttl *= 1.5
	}

	if p.hasSensitiveField(fields) {
		ttl *= 0.5
	}
	if containsAny(templateID, p.GenericTemplates) {
		ttl *= 1.3
	}

	ttl = math.Max(ttl, p.Min.Seconds())
	ttl = math.Min(ttl, p.Max.Seconds())
	return int(math.Round(ttl))
}

func (p TTLPolicy) hasSensitiveField(fields map[string]string) bool {
	for name := range fields {
		if containsAny(name, p.SensitiveFields) {
			return true
		}
	}
	return false
}

// containsAny reports whether s contains any of terms, ignoring case.
func containsAny(s string, terms []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
