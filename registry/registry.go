// Package registry maps (document name, subtype) pairs to the schema and
// template contributed by installed content packages. It backs the open
// polymorphic payload field: core ships a few subtypes, game systems and
// modules register more at startup.
package registry

import (
	"fmt"
	"sync"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/fields"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Entry is one registered subtype: an optional payload schema, an optional
// raw template for unmodelled use, and the provenance of the contributor.
type Entry struct {
	Schema   *fields.SchemaField
	Template map[string]any
	Provider datamodel.Provenance
}

// Registry implements fields.TypeModelRegistry. Registration happens at
// startup from multiple package loaders, so access is guarded.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry
	logger  *zap.Logger
}

// Option configures a registry.
type Option func(*Registry)

// WithLogger attaches a logger for registration diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{entries: map[string]map[string]Entry{}, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register adds a subtype entry. Re-registering an existing subtype is an
// error; packages must not silently shadow each other.
func (r *Registry) Register(documentName, subtype string, e Entry) error {
	if documentName == "" || subtype == "" {
		return fmt.Errorf("registry: document name and subtype must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.entries[documentName]
	if !ok {
		sub = map[string]Entry{}
		r.entries[documentName] = sub
	}
	if _, dup := sub[subtype]; dup {
		return fmt.Errorf("registry: %s subtype %q already registered", documentName, subtype)
	}
	sub[subtype] = e
	r.logger.Debug("registered document subtype",
		zap.String("document", documentName),
		zap.String("subtype", subtype),
		zap.String("provider", e.Provider.String()),
		zap.Bool("modelled", e.Schema != nil))
	return nil
}

// Resolve implements fields.TypeModelRegistry.
func (r *Registry) Resolve(documentName, subtype string) (*fields.SchemaField, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[documentName][subtype]
	if !ok || e.Schema == nil {
		return nil, false
	}
	return e.Schema, true
}

// Template implements fields.TypeModelRegistry.
func (r *Registry) Template(documentName, subtype string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[documentName][subtype]
	if !ok || e.Template == nil {
		return nil, false
	}
	return e.Template, true
}

// Provider implements fields.TypeModelRegistry.
func (r *Registry) Provider(documentName, subtype string) datamodel.Provenance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[documentName][subtype]
	if !ok {
		return datamodel.ProvenanceUnknown
	}
	return e.Provider
}

// Subtypes lists the registered subtypes for a document name.
func (r *Registry) Subtypes(documentName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries[documentName]))
	for k := range r.entries[documentName] {
		out = append(out, k)
	}
	return out
}

// templateFile is the on-disk shape of a package's template manifest.
type templateFile map[string]map[string]struct {
	Provider string         `yaml:"provider"`
	Template map[string]any `yaml:"template"`
}

// LoadTemplates registers template-only subtypes from a YAML manifest, the
// shape game packages ship:
//
//	Actor:
//	  vehicle:
//	    provider: system
//	    template:
//	      cargo: 0
func (r *Registry) LoadTemplates(data []byte) error {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("registry: parse templates: %w", err)
	}
	for doc, subs := range file {
		for sub, decl := range subs {
			e := Entry{Template: decl.Template, Provider: parseProvider(decl.Provider)}
			if err := r.Register(doc, sub, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseProvider(s string) datamodel.Provenance {
	switch s {
	case "core":
		return datamodel.ProvenanceCore
	case "system":
		return datamodel.ProvenanceSystem
	case "module":
		return datamodel.ProvenanceModule
	default:
		return datamodel.ProvenanceUnknown
	}
}
