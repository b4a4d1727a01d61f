package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/gencache/internal/app"
	"github.com/eugener/gencache/internal/cache"
	"github.com/eugener/gencache/internal/config"
	"github.com/eugener/gencache/internal/provider"
	"github.com/eugener/gencache/internal/provider/openai"
	"github.com/eugener/gencache/internal/server"
	"github.com/eugener/gencache/internal/telemetry"
	"github.com/eugener/gencache/internal/worker"
)

const (
	defaultUpstreamTimeout = 60 * time.Second
	dnsRefreshInterval     = 5 * time.Minute
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting gencache", "version", version, "addr", cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	if cfg.Telemetry.Tracing.Enabled {
		shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate, version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Register generators
	resolver := &dnscache.Resolver{}
	providers := provider.NewRegistry()
	for _, p := range cfg.Providers {
		if !p.IsEnabled() {
			continue
		}
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultUpstreamTimeout
		}
		switch p.ResolvedType() {
		case "openai":
			client := provider.NewHTTPClient(resolver, p.APIKey, timeout)
			providers.Register(p.Name, openai.New(p.Name, p.BaseURL, p.Model, client))
		default:
			slog.Warn("unknown provider type, skipping", "name", p.Name, "type", p.ResolvedType())
		}
	}

	// Templates
	templates := app.NewTemplateRegistry()
	if err := config.Bootstrap(cfg, templates, config.DefaultProvider(cfg)); err != nil {
		return err
	}

	// Cache
	opts := cfg.Cache.Options()
	opts.Hooks = telemetry.NewCacheHooks(metrics)
	respCache, err := cache.New(opts)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	slog.Info("cache ready",
		"budget", humanize.IBytes(uint64(cfg.Cache.MaxSize)),
		"compression_threshold", humanize.IBytes(uint64(cfg.Cache.CompressionThreshold)),
		"sweep_interval", cfg.Cache.SweepInterval,
	)

	// Wire services
	genSvc := app.NewGenerationService(respCache, templates, providers, metrics)

	// Background workers
	workers := []worker.Worker{worker.NewDNSRefresher(resolver, dnsRefreshInterval)}
	if cfg.Cache.SweepInterval > 0 {
		workers = append(workers, worker.NewCacheSweeper(respCache, cfg.Cache.SweepInterval))
	}
	runner := worker.NewRunner(workers...)
	workerErr := make(chan error, 1)
	go func() { workerErr <- runner.Run(ctx) }()

	// Create HTTP server
	deps := server.Deps{
		Generator:  genSvc,
		Cache:      respCache,
		ReadyCheck: genSvc.Ready,
	}
	if cfg.Telemetry.Metrics.Enabled {
		deps.Metrics = metrics
		deps.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("gencache ready", "addr", cfg.Server.Addr, "templates", len(templates.IDs()), "providers", providers.List())

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErr:
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	cancel()

	st := respCache.Stats()
	slog.Info("gencache stopped",
		"entries", st.Entries,
		"hit_rate", st.HitRate,
		"served", humanize.IBytes(uint64(st.BytesServed)),
	)
	return nil
}
