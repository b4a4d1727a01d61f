package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gencache "github.com/eugener/gencache/internal"
	"github.com/eugener/gencache/internal/app"
	"github.com/eugener/gencache/internal/cache"
	"github.com/eugener/gencache/internal/provider"
	"github.com/eugener/gencache/internal/testutil"
)

type testEnv struct {
	handler http.Handler
	cache   *cache.Cache
	gen     *testutil.FakeGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c, err := cache.New(cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	gen := &testutil.FakeGenerator{GeneratorName: "fake"}
	providers := provider.NewRegistry()
	providers.Register("fake", gen)
	templates := app.NewTemplateRegistry()
	if err := templates.Register(app.TemplateDef{ID: "greeting", Text: "Hello {{.name}}", Provider: "fake"}); err != nil {
		t.Fatal(err)
	}

	return &testEnv{
		handler: New(Deps{
			Generator: app.NewGenerationService(c, templates, providers, nil),
			Cache:     c,
		}),
		cache: c,
		gen:   gen,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := newTestEnv(t).do(http.MethodGet, "/healthz", "")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	rec := newTestEnv(t).do(http.MethodGet, "/readyz", "")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyzNotReady(t *testing.T) {
	t.Parallel()
	h := New(Deps{ReadyCheck: func(context.Context) error { return errors.New("warming up") }})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/healthz", "")
	if id := rec.Header().Get("X-Request-Id"); len(id) != 36 {
		t.Errorf("generated request id = %q, want uuid", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "client-supplied" {
		t.Errorf("request id = %q, want client-supplied", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", 500))
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); len(got) != 36 {
		t.Errorf("oversized request id should be replaced, got %d chars", len(got))
	}
}

func TestGenerate_MissThenHit(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	body := `{"template_id":"greeting","fields":{"name":"Ada"}}`

	rec := e.do(http.MethodPost, "/v1/generate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	var first gencache.GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
		t.Fatal(err)
	}
	if first.Cached || first.Content != "generated: Hello Ada" || len(first.Key) != 64 {
		t.Errorf("first = %+v", first)
	}

	rec = e.do(http.MethodPost, "/v1/generate", body)
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", got)
	}
	var second gencache.GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Content != first.Content {
		t.Errorf("second = %+v", second)
	}
	if n := e.gen.Calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"unknown field", `{"template_id":"greeting","model":"x"}`, http.StatusBadRequest},
		{"missing template id", `{"fields":{}}`, http.StatusBadRequest},
		{"unknown template", `{"template_id":"nope"}`, http.StatusNotFound},
		{"missing field", `{"template_id":"greeting"}`, http.StatusBadRequest},
		{"bad priority", `{"template_id":"greeting","fields":{"name":"a"},"priority":"urgent"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := newTestEnv(t).do(http.MethodPost, "/v1/generate", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var apiErr apiError
			if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil || apiErr.Error.Message == "" {
				t.Errorf("error body not decoded: %v", err)
			}
		})
	}
}

func TestGenerate_UpstreamErrorSanitized(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.gen.CompleteFn = func(context.Context, *gencache.CompletionRequest) (*gencache.Completion, error) {
		return nil, &provider.APIError{Provider: "fake", StatusCode: 500, Body: "secret internal detail"}
	}

	rec := e.do(http.MethodPost, "/v1/generate", `{"template_id":"greeting","fields":{"name":"x"}}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("upstream detail leaked: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "upstream_error") {
		t.Errorf("body = %s, want upstream_error type", rec.Body.String())
	}
}

func TestCacheEndpoints(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/v1/generate", `{"template_id":"greeting","fields":{"name":"Ada"},"priority":"high","ttl_seconds":600}`)
	var gen gencache.GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&gen); err != nil {
		t.Fatal(err)
	}
	e.do(http.MethodPost, "/v1/generate", `{"template_id":"greeting","fields":{"name":"Bo"}}`)

	// Stats
	rec = e.do(http.MethodGet, "/v1/cache/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["cache_entries"] != float64(2) {
		t.Errorf("cache_entries = %v, want 2", stats["cache_entries"])
	}
	if stats["max_size"] != "50 MiB" {
		t.Errorf("max_size = %v, want 50 MiB", stats["max_size"])
	}

	// Entry details
	rec = e.do(http.MethodGet, "/v1/cache/entries/"+gen.Key, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("entry status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var entry cache.EntryRecord
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatal(err)
	}
	if entry.Priority != cache.PriorityHigh || entry.TTLSeconds != 600 || entry.Metadata.TemplateID != "greeting" {
		t.Errorf("entry = %+v", entry)
	}

	// Invalid and unknown keys
	if rec := e.do(http.MethodGet, "/v1/cache/entries/not-hex", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid key status = %d, want 400", rec.Code)
	}
	unknown := cache.DeriveKey("other", nil, nil).String()
	if rec := e.do(http.MethodGet, "/v1/cache/entries/"+unknown, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown key status = %d, want 404", rec.Code)
	}

	// Delete
	if rec := e.do(http.MethodDelete, "/v1/cache/entries/"+gen.Key, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := e.do(http.MethodDelete, "/v1/cache/entries/"+gen.Key, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	// Clear
	rec = e.do(http.MethodDelete, "/v1/cache", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"removed":1}` {
		t.Errorf("clear body = %s", got)
	}
	rec = e.do(http.MethodDelete, "/v1/cache", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"removed":0}` {
		t.Errorf("second clear body = %s", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()
	h := New(Deps{Generator: panicGenerator{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"template_id":"x"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("panic value leaked: %s", rec.Body.String())
	}
}

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, *gencache.GenerateRequest) (*gencache.GenerateResponse, error) {
	panic("boom")
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{gencache.ErrBadRequest, http.StatusBadRequest},
		{fmt.Errorf("x: %w", gencache.ErrTemplateNotFound), http.StatusNotFound},
		{gencache.ErrNotFound, http.StatusNotFound},
		{&provider.APIError{StatusCode: 429}, http.StatusBadGateway},
		{gencache.ErrEmptyContent, http.StatusBadGateway},
		{fmt.Errorf("%w: %w", gencache.ErrProviderError, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{gencache.ErrGeneratorNotFound, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
