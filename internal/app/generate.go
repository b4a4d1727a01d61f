// Package app holds the service layer: it renders prompts, consults the
// response cache and calls upstream generators on a miss.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	gencache "github.com/eugener/gencache/internal"
	"github.com/eugener/gencache/internal/cache"
	"github.com/eugener/gencache/internal/provider"
	"github.com/eugener/gencache/internal/telemetry"
)

// GenerationService serves GenerateRequests from the cache, falling back to
// the template's generator on a miss. Concurrent misses for the same key share
// one upstream call.
type GenerationService struct {
	cache     *cache.Cache
	templates *TemplateRegistry
	providers *provider.Registry
	metrics   *telemetry.Metrics // nil disables upstream metrics
	tracer    trace.Tracer
	flight    singleflight.Group
}

// NewGenerationService wires a GenerationService. metrics may be nil.
func NewGenerationService(c *cache.Cache, templates *TemplateRegistry, providers *provider.Registry, metrics *telemetry.Metrics) *GenerationService {
	return &GenerationService{
		cache:     c,
		templates: templates,
		providers: providers,
		metrics:   metrics,
		tracer:    telemetry.Tracer(),
	}
}

// Generate returns cached content for req when present, otherwise renders
// the template, calls the generator and offers the result to the cache.
// Generated content is returned even when the cache declines to store it.
// Concurrent misses are coalesced only when key, priority and TTL override
// all match, so each caller's storage options are honored.
func (s *GenerationService) Generate(ctx context.Context, req *gencache.GenerateRequest) (*gencache.GenerateResponse, error) {
	tmpl, err := s.templates.Get(req.TemplateID)
	if err != nil {
		return nil, err
	}
	priority := tmpl.Priority
	if req.Priority != "" {
		if priority, err = cache.ParsePriority(req.Priority); err != nil {
			return nil, fmt.Errorf("%v: %w", err, gencache.ErrBadRequest)
		}
	}
	if req.TTLSeconds < 0 {
		return nil, fmt.Errorf("ttl_seconds must not be negative: %w", gencache.ErrBadRequest)
	}

	key := cache.DeriveKey(req.TemplateID, req.Fields, req.Config)

	_, span := s.tracer.Start(ctx, "cache.lookup", trace.WithAttributes(
		attribute.String("cache.key", key.Short()),
		attribute.String("template.id", req.TemplateID),
	))
	content, hit := s.cache.Get(key)
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	span.End()

	if hit {
		return &gencache.GenerateResponse{Key: key.String(), Content: content, Cached: true}, nil
	}

	// The leader runs detached from its caller so one disconnecting client
	// does not fail every request waiting on the same key. Only requests
	// that would store the entry identically share a flight.
	flight := key.String() + "/" + priority.String() + "/" + strconv.Itoa(req.TTLSeconds)
	ch := s.flight.DoChan(flight, func() (any, error) {
		return s.generate(context.WithoutCancel(ctx), tmpl, req, key, priority)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := *res.Val.(*gencache.GenerateResponse)
		return &resp, nil
	}
}

func (s *GenerationService) generate(ctx context.Context, tmpl *Template, req *gencache.GenerateRequest,
	key cache.Key, priority cache.Priority) (*gencache.GenerateResponse, error) {
	prompt, err := tmpl.Render(req.Fields)
	if err != nil {
		return nil, err
	}
	gen, err := s.providers.Get(tmpl.Provider)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", tmpl.ID, err)
	}

	ctx, span := s.tracer.Start(ctx, "generator.complete", trace.WithAttributes(
		attribute.String("generator", gen.Name()),
		attribute.String("template.id", tmpl.ID),
	))
	defer span.End()

	start := time.Now()
	completion, err := gen.Complete(ctx, &gencache.CompletionRequest{
		Model:  tmpl.Model,
		Prompt: prompt,
		Config: req.Config,
	})
	s.observeUpstream(gen.Name(), tmpl.ID, time.Since(start), completion, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, gencache.ErrBadRequest) || errors.Is(err, gencache.ErrEmptyContent) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", gencache.ErrProviderError, err)
	}

	stored, err := s.cache.Set(key, completion.Content, cache.SetOptions{
		TemplateID: req.TemplateID,
		Fields:     req.Fields,
		Config:     req.Config,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
		Priority:   priority,
	})
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache store failed",
			slog.String("key", key.Short()),
			slog.String("error", err.Error()),
		)
	} else if !stored {
		slog.LogAttrs(ctx, slog.LevelInfo, "generated content not cached",
			slog.String("key", key.Short()),
			slog.Int("bytes", len(completion.Content)),
		)
	}
	span.SetAttributes(attribute.Bool("cache.stored", stored))

	return &gencache.GenerateResponse{
		Key:     key.String(),
		Content: completion.Content,
		Stored:  stored,
		Model:   completion.Model,
		Usage:   completion.Usage,
	}, nil
}

func (s *GenerationService) observeUpstream(name, templateID string, elapsed time.Duration, c *gencache.Completion, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.UpstreamDuration.WithLabelValues(name, templateID).Observe(elapsed.Seconds())
	if err != nil {
		status := "error"
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			status = strconv.Itoa(apiErr.StatusCode)
		}
		s.metrics.UpstreamErrors.WithLabelValues(name, status).Inc()
		return
	}
	if c.Usage != nil {
		s.metrics.TokensProcessed.WithLabelValues(c.Model, "prompt").Add(float64(c.Usage.PromptTokens))
		s.metrics.TokensProcessed.WithLabelValues(c.Model, "completion").Add(float64(c.Usage.CompletionTokens))
	}
}

// Ready reports whether at least one generator is registered.
func (s *GenerationService) Ready(context.Context) error {
	if len(s.providers.List()) == 0 {
		return fmt.Errorf("no generators registered: %w", gencache.ErrGeneratorNotFound)
	}
	return nil
}
