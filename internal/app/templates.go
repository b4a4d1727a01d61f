package app

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"

	gencache "github.com/eugener/gencache/internal"
	"github.com/eugener/gencache/internal/cache"
)

// TemplateDef describes a prompt template before parsing.
type TemplateDef struct {
	ID       string
	Text     string
	Provider string         // generator that renders this template
	Model    string         // empty = generator default
	Priority cache.Priority // default cache priority for generated content
}

// Template is a parsed prompt template.
type Template struct {
	ID       string
	Provider string
	Model    string
	Priority cache.Priority

	tmpl *template.Template
}

// Render executes the template against fields. A field referenced by the
// template but missing from fields is an error.
func (t *Template) Render(fields map[string]string) (string, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	var b strings.Builder
	if err := t.tmpl.Execute(&b, fields); err != nil {
		return "", fmt.Errorf("render template %q: %v: %w", t.ID, err, gencache.ErrBadRequest)
	}
	return b.String(), nil
}

// TemplateRegistry holds parsed prompt templates by ID.
// It is safe for concurrent use.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateRegistry returns an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*Template)}
}

// Register parses def and stores it, replacing any template with the same ID.
func (r *TemplateRegistry) Register(def TemplateDef) error {
	if def.ID == "" {
		return fmt.Errorf("template id is required: %w", gencache.ErrBadRequest)
	}
	tmpl, err := template.New(def.ID).Option("missingkey=error").Parse(def.Text)
	if err != nil {
		return fmt.Errorf("parse template %q: %w", def.ID, err)
	}
	t := &Template{
		ID:       def.ID,
		Provider: def.Provider,
		Model:    def.Model,
		Priority: def.Priority,
		tmpl:     tmpl,
	}
	r.mu.Lock()
	r.templates[def.ID] = t
	r.mu.Unlock()
	return nil
}

// Get returns the template registered under id.
func (r *TemplateRegistry) Get(id string) (*Template, error) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, gencache.ErrTemplateNotFound)
	}
	return t, nil
}

// IDs returns the registered template IDs in sorted order.
func (r *TemplateRegistry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
