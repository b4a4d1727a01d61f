// Package server implements the HTTP transport layer for the gencache service.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	gencache "github.com/eugener/gencache/internal"
	"github.com/eugener/gencache/internal/cache"
	"github.com/eugener/gencache/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Generator serves generation requests, typically *app.GenerationService.
type Generator interface {
	Generate(ctx context.Context, req *gencache.GenerateRequest) (*gencache.GenerateResponse, error)
}

// CacheAdmin is the introspection and invalidation surface of *cache.Cache.
type CacheAdmin interface {
	Stats() cache.Stats
	EntryDetails(key cache.Key) (cache.EntryRecord, bool)
	Delete(key cache.Key) bool
	Clear() int
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Generator      Generator
	Cache          CacheAdmin
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Post("/v1/generate", s.handleGenerate)

	// Cache introspection and invalidation
	r.Get("/v1/cache/stats", s.handleCacheStats)
	r.Delete("/v1/cache", s.handleCacheClear)
	r.Get("/v1/cache/entries/{key}", s.handleCacheEntry)
	r.Delete("/v1/cache/entries/{key}", s.handleCacheDelete)

	return r
}

type server struct {
	deps Deps
}
