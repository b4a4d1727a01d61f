// Package testutil provides configurable test fakes for gencache interfaces.
package testutil

import (
	"context"
	"sync/atomic"

	gencache "github.com/eugener/gencache/internal"
)

// FakeGenerator is a configurable gencache.Generator for testing.
// Calls counts Complete invocations and is safe to read concurrently.
type FakeGenerator struct {
	GeneratorName string
	CompleteFn    func(ctx context.Context, req *gencache.CompletionRequest) (*gencache.Completion, error)
	HealthFn      func(ctx context.Context) error

	Calls atomic.Int64
}

var _ gencache.Generator = (*FakeGenerator)(nil)

// Name returns the configured generator name.
func (f *FakeGenerator) Name() string { return f.GeneratorName }

// Complete delegates to CompleteFn or echoes the prompt.
func (f *FakeGenerator) Complete(ctx context.Context, req *gencache.CompletionRequest) (*gencache.Completion, error) {
	f.Calls.Add(1)
	if f.CompleteFn != nil {
		return f.CompleteFn(ctx, req)
	}
	model := req.Model
	if model == "" {
		model = "fake-model"
	}
	return &gencache.Completion{
		Content: "generated: " + req.Prompt,
		Model:   model,
		Usage:   &gencache.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}, nil
}

// HealthCheck delegates to HealthFn or returns nil.
func (f *FakeGenerator) HealthCheck(ctx context.Context) error {
	if f.HealthFn != nil {
		return f.HealthFn(ctx)
	}
	return nil
}
