package config

import (
	"fmt"
	"log/slog"

	"github.com/eugener/gencache/internal/app"
	"github.com/eugener/gencache/internal/cache"
)

// Bootstrap registers the configured prompt templates. Templates without an
// explicit provider are bound to defaultProvider.
func Bootstrap(cfg *Config, templates *app.TemplateRegistry, defaultProvider string) error {
	for _, t := range cfg.Templates {
		priority, err := cache.ParsePriority(t.Priority)
		if err != nil {
			return fmt.Errorf("template %q: %w", t.ID, err)
		}
		provider := t.Provider
		if provider == "" {
			provider = defaultProvider
		}
		def := app.TemplateDef{
			ID:       t.ID,
			Text:     t.Text,
			Provider: provider,
			Model:    t.Model,
			Priority: priority,
		}
		if err := templates.Register(def); err != nil {
			return fmt.Errorf("template %q: %w", t.ID, err)
		}
		slog.Info("bootstrapped template", "id", t.ID, "provider", provider, "priority", priority)
	}
	return nil
}

// DefaultProvider returns the name of the first enabled provider, or "".
func DefaultProvider(cfg *Config) string {
	for _, p := range cfg.Providers {
		if p.IsEnabled() {
			return p.Name
		}
	}
	return ""
}
