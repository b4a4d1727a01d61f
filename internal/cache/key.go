package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Key is the SHA-256 fingerprint of a generation request. The full digest is
// used; it is never truncated.
type Key [sha256.Size]byte

// String returns the lowercase hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 12 hex characters, for log lines.
func (k Key) Short() string {
	return k.String()[:12]
}

// ParseKey decodes a 64-character hex key.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("cache: parse key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("cache: parse key: length %d, want %d", len(b), len(k))
	}
	copy(k[:], b)
	return k, nil
}

// pair is one (name, value) element of the canonical form. Struct fields
// marshal in declaration order, so the encoding is stable.
type pair struct {
	Name  string `json:"n"`
	Value string `json:"v"`
}

type canonicalRequest struct {
	Template string `json:"t"`
	Fields   []pair `json:"f"`
	Config   []pair `json:"c"` // null when no config was supplied
}

// DeriveKey fingerprints a request. Fields are sorted by name and their values
// whitespace-normalized, so map construction order and incidental spacing in
// values do not change the key. Names are hashed exactly as given since
// templates resolve them verbatim. A nil or empty config is encoded as an explicit null.
func DeriveKey(templateID string, fields, config map[string]string) Key {
	req := canonicalRequest{
		Template: templateID,
		Fields:   sortedPairs(fields),
	}
	if req.Fields == nil {
		req.Fields = []pair{}
	}
	if len(config) > 0 {
		req.Config = sortedPairs(config)
	}

	data, _ := json.Marshal(req)
	return sha256.Sum256(data)
}

func sortedPairs(m map[string]string) []pair {
	if len(m) == 0 {
		return nil
	}
	out := make([]pair, 0, len(m))
	for k, v := range m {
		out = append(out, pair{Name: k, Value: normalizeValue(v)})
	}
	slices.SortFunc(out, func(a, b pair) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	return out
}

// normalizeValue trims the value and collapses internal whitespace runs.
func normalizeValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
