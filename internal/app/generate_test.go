package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	gencache "github.com/eugener/gencache/internal"
	"github.com/eugener/gencache/internal/cache"
	"github.com/eugener/gencache/internal/provider"
	"github.com/eugener/gencache/internal/telemetry"
	"github.com/eugener/gencache/internal/testutil"
)

type fixture struct {
	svc   *GenerationService
	cache *cache.Cache
	gen   *testutil.FakeGenerator
}

func newFixture(t *testing.T, opts cache.Options, gen *testutil.FakeGenerator) *fixture {
	t.Helper()
	c, err := cache.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if gen == nil {
		gen = &testutil.FakeGenerator{GeneratorName: "fake"}
	}
	providers := provider.NewRegistry()
	providers.Register("fake", gen)

	templates := NewTemplateRegistry()
	for _, def := range []TemplateDef{
		{ID: "greeting", Text: "Say hello to {{.name}}", Provider: "fake"},
		{ID: "vip", Text: "Welcome {{.name}}", Provider: "fake", Priority: cache.PriorityCritical},
		{ID: "orphan", Text: "x", Provider: "missing"},
	} {
		if err := templates.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	metrics := telemetry.NewMetrics(prometheus.NewPedanticRegistry())
	return &fixture{
		svc:   NewGenerationService(c, templates, providers, metrics),
		cache: c,
		gen:   gen,
	}
}

func TestGenerate_MissThenHit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, cache.Options{}, nil)
	ctx := context.Background()
	req := &gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "Ada"}}

	first, err := f.svc.Generate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || !first.Stored {
		t.Errorf("first = %+v, want uncached and stored", first)
	}
	if first.Content != "generated: Say hello to Ada" {
		t.Errorf("content = %q", first.Content)
	}
	if first.Usage == nil || first.Model != "fake-model" {
		t.Errorf("model/usage = %q/%v", first.Model, first.Usage)
	}

	// Field order and surrounding whitespace do not change the key.
	second, err := f.svc.Generate(ctx, &gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{" name ": "Ada"}})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Content != first.Content || second.Key != first.Key {
		t.Errorf("second = %+v, want cached copy of first", second)
	}
	if n := f.gen.Calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
}

func TestGenerate_PriorityAndTTL(t *testing.T) {
	t.Parallel()
	f := newFixture(t, cache.Options{}, nil)
	ctx := context.Background()

	resp, err := f.svc.Generate(ctx, &gencache.GenerateRequest{
		TemplateID: "greeting",
		Fields:     map[string]string{"name": "Bo"},
		Priority:   "low",
		TTLSeconds: 42,
	})
	if err != nil {
		t.Fatal(err)
	}
	key, _ := cache.ParseKey(resp.Key)
	rec, ok := f.cache.EntryDetails(key)
	if !ok {
		t.Fatal("entry not stored")
	}
	if rec.Priority != cache.PriorityLow || rec.TTLSeconds != 42 {
		t.Errorf("priority/ttl = %s/%d, want low/42", rec.Priority, rec.TTLSeconds)
	}

	// Template default priority applies when the request omits one.
	resp, err = f.svc.Generate(ctx, &gencache.GenerateRequest{TemplateID: "vip", Fields: map[string]string{"name": "Cy"}})
	if err != nil {
		t.Fatal(err)
	}
	key, _ = cache.ParseKey(resp.Key)
	if rec, _ := f.cache.EntryDetails(key); rec.Priority != cache.PriorityCritical {
		t.Errorf("priority = %s, want critical", rec.Priority)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, cache.Options{}, nil)

	tests := []struct {
		name    string
		req     gencache.GenerateRequest
		wantErr error
	}{
		{"unknown template", gencache.GenerateRequest{TemplateID: "nope"}, gencache.ErrTemplateNotFound},
		{"bad priority", gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "x"}, Priority: "urgent"}, gencache.ErrBadRequest},
		{"negative ttl", gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "x"}, TTLSeconds: -1}, gencache.ErrBadRequest},
		{"missing field", gencache.GenerateRequest{TemplateID: "greeting"}, gencache.ErrBadRequest},
		{"unregistered generator", gencache.GenerateRequest{TemplateID: "orphan"}, gencache.ErrGeneratorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.svc.Generate(context.Background(), &tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if n := f.gen.Calls.Load(); n != 0 {
		t.Errorf("generator calls = %d, want 0", n)
	}
}

func TestGenerate_UpstreamFailureNotCached(t *testing.T) {
	t.Parallel()
	var fail sync.Mutex
	failing := true
	gen := &testutil.FakeGenerator{
		GeneratorName: "fake",
		CompleteFn: func(_ context.Context, req *gencache.CompletionRequest) (*gencache.Completion, error) {
			fail.Lock()
			defer fail.Unlock()
			if failing {
				return nil, &provider.APIError{Provider: "fake", StatusCode: 503, Body: "down"}
			}
			return &gencache.Completion{Content: "recovered"}, nil
		},
	}
	f := newFixture(t, cache.Options{}, gen)
	req := &gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "Di"}}

	_, err := f.svc.Generate(context.Background(), req)
	if !errors.Is(err, gencache.ErrProviderError) {
		t.Fatalf("err = %v, want ErrProviderError", err)
	}
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("upstream error not preserved: %v", err)
	}
	if f.cache.Len() != 0 {
		t.Error("failed generation must not be cached")
	}

	fail.Lock()
	failing = false
	fail.Unlock()

	resp, err := f.svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Cached || resp.Content != "recovered" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGenerate_NotStoredStillReturned(t *testing.T) {
	t.Parallel()
	gen := &testutil.FakeGenerator{
		GeneratorName: "fake",
		CompleteFn: func(context.Context, *gencache.CompletionRequest) (*gencache.Completion, error) {
			return &gencache.Completion{Content: strings.Repeat("z", 4096)}, nil
		},
	}
	// Budget below one entry: Set fails on capacity.
	f := newFixture(t, cache.Options{MaxSizeBytes: 16, CompressionThreshold: 1 << 20}, gen)

	resp, err := f.svc.Generate(context.Background(), &gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "Ed"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Stored || len(resp.Content) != 4096 {
		t.Errorf("stored = %v len = %d, want unstored full content", resp.Stored, len(resp.Content))
	}
	if s := f.cache.Stats(); s.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", s.Rejected)
	}
}

func TestGenerate_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	gen := &testutil.FakeGenerator{
		GeneratorName: "fake",
		CompleteFn: func(_ context.Context, req *gencache.CompletionRequest) (*gencache.Completion, error) {
			<-release
			return &gencache.Completion{Content: "shared " + req.Prompt}, nil
		},
	}
	f := newFixture(t, cache.Options{}, gen)
	req := &gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "Flo"}}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*gencache.GenerateResponse, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.svc.Generate(context.Background(), req)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = resp
		}()
	}

	// Give every caller time to miss and join the flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := f.gen.Calls.Load(); n < 1 || n > callers {
		t.Fatalf("generator calls = %d", n)
	}
	for i, r := range results {
		if r == nil || r.Content != "shared Say hello to Flo" {
			t.Errorf("result[%d] = %+v", i, r)
		}
	}
	if s := f.cache.Stats(); s.Entries != 1 {
		t.Errorf("entries = %d, want 1", s.Entries)
	}
}

func TestGenerate_DistinctStoreOptionsDoNotShareFlight(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	gen := &testutil.FakeGenerator{
		GeneratorName: "fake",
		CompleteFn: func(_ context.Context, req *gencache.CompletionRequest) (*gencache.Completion, error) {
			<-release
			return &gencache.Completion{Content: "out " + req.Prompt}, nil
		},
	}
	f := newFixture(t, cache.Options{}, gen)
	fields := map[string]string{"name": "Ivy"}
	reqs := []*gencache.GenerateRequest{
		{TemplateID: "greeting", Fields: fields, Priority: "low"},
		{TemplateID: "greeting", Fields: fields, Priority: "high"},
		{TemplateID: "greeting", Fields: fields, Priority: "high", TTLSeconds: 60},
	}

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Generate(context.Background(), req); err != nil {
				t.Error(err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.gen.Calls.Load() < int64(len(reqs)) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	if n := f.gen.Calls.Load(); n != int64(len(reqs)) {
		t.Errorf("generator calls = %d, want %d (one per distinct priority/ttl)", n, len(reqs))
	}
}

func TestGenerate_CallerCancelDoesNotAbortFlight(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	gen := &testutil.FakeGenerator{
		GeneratorName: "fake",
		CompleteFn: func(ctx context.Context, _ *gencache.CompletionRequest) (*gencache.Completion, error) {
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &gencache.Completion{Content: "finished"}, nil
		},
	}
	f := newFixture(t, cache.Options{}, gen)
	req := &gencache.GenerateRequest{TemplateID: "greeting", Fields: map[string]string{"name": "Gus"}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.svc.Generate(ctx, req)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	close(release)
	// The detached flight completes and populates the cache.
	deadline := time.Now().Add(2 * time.Second)
	for f.cache.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := f.svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Cached || resp.Content != "finished" {
		t.Errorf("resp = %+v, want cached result of detached flight", resp)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()
	f := newFixture(t, cache.Options{}, nil)
	if err := f.svc.Ready(context.Background()); err != nil {
		t.Errorf("Ready: %v", err)
	}

	c, _ := cache.New(cache.Options{})
	empty := NewGenerationService(c, NewTemplateRegistry(), provider.NewRegistry(), nil)
	if err := empty.Ready(context.Background()); !errors.Is(err, gencache.ErrGeneratorNotFound) {
		t.Errorf("Ready on empty registry = %v", err)
	}
}
