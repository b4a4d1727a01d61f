// Package gencache defines domain types and interfaces for the gencache
// generation cache service.
// This package has no project imports -- it is the dependency root.
package gencache

import (
	"context"
)

// --- Generator ---

// Generator is the interface that upstream text generation backends implement.
// It is only ever called on a cache miss, outside any cache lock.
type Generator interface {
	// Name returns the backend identifier (e.g., "openai").
	Name() string
	// Complete renders one completion for a fully built prompt.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
	// HealthCheck verifies connectivity to the backend.
	HealthCheck(ctx context.Context) error
}

// CompletionRequest is a single prompt sent to a Generator.
type CompletionRequest struct {
	Model  string
	Prompt string
	// Config carries generation parameters such as temperature or
	// max_tokens. Values are passed through as strings and converted by
	// the backend.
	Config map[string]string
}

// Completion is the result of a Generator call.
type Completion struct {
	Content string
	Model   string
	Usage   *Usage // nil when the backend does not report usage
}

// Usage represents token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Generation requests ---

// GenerateRequest asks for content produced from a named template.
// Identical template, fields and config always map to the same cache entry.
type GenerateRequest struct {
	TemplateID string            `json:"template_id"`
	Fields     map[string]string `json:"fields"`
	Config     map[string]string `json:"config,omitempty"`
	Priority   string            `json:"priority,omitempty"`    // low|medium|high|critical
	TTLSeconds int               `json:"ttl_seconds,omitempty"` // 0 = adaptive TTL
}

// GenerateResponse is the outcome of a GenerateRequest.
type GenerateResponse struct {
	Key     string `json:"key"`
	Content string `json:"content"`
	Cached  bool   `json:"cached"`
	// Stored reports whether freshly generated content was admitted to the
	// cache. Always false for hits.
	Stored bool   `json:"stored"`
	Model  string `json:"model,omitempty"`
	Usage  *Usage `json:"usage,omitempty"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
type requestMeta struct {
	RequestID string
}

// metaFromContext returns the requestMeta stored in ctx, or nil.
func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}
