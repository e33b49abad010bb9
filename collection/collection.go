// Package collection implements id-keyed, insertion-ordered collections of
// embedded child documents, backed 1:1 by the plain source records held by a
// parent document, plus the delta overlay used by synthetic documents.
package collection

import (
	"errors"
	"fmt"

	datamodel "github.com/lorebound/datamodel"
	"go.uber.org/zap"
)

// ErrNotFound is returned by strict lookups for ids with no live document.
var ErrNotFound = errors.New("document not found")

// Model instantiates and checks child documents for a collection. The concrete
// implementation is a document type declaration; collections only need record
// operations, never the schema itself.
type Model interface {
	DocumentName() string
	CleanRecord(record map[string]any, opts datamodel.CleanOptions) map[string]any
	ValidateRecord(record map[string]any, opts datamodel.ValidateOptions) *datamodel.Failure
	New(source map[string]any, parent datamodel.Document) (datamodel.Document, error)
}

// EmbeddedCollection is an ordered, id-keyed set of child documents owned by a
// parent document. Every element has a stable _id; records that fail to
// instantiate are diverted into an invalid side channel instead of poisoning
// the parent.
type EmbeddedCollection struct {
	name   string
	parent datamodel.Document
	model  Model
	logger *zap.Logger

	source      []map[string]any
	keys        []string
	byID        map[string]datamodel.Document
	invalid     map[string]map[string]any
	initialized bool
}

// Option configures a collection.
type Option func(*EmbeddedCollection)

// WithLogger attaches a logger for the invalid-document side channel.
func WithLogger(l *zap.Logger) Option {
	return func(c *EmbeddedCollection) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a collection over the given source records. Initialize must be
// called before reads; construction itself never instantiates documents.
func New(name string, parent datamodel.Document, model Model, source []map[string]any, opts ...Option) *EmbeddedCollection {
	c := &EmbeddedCollection{
		name:    name,
		parent:  parent,
		model:   model,
		logger:  zap.NewNop(),
		source:  source,
		byID:    map[string]datamodel.Document{},
		invalid: map[string]map[string]any{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection's field name on the parent document.
func (c *EmbeddedCollection) Name() string { return c.name }

// Initialize materializes child documents from the source records. Repeat
// calls are no-ops unless full is requested, in which case the collection is
// rebuilt from scratch.
func (c *EmbeddedCollection) Initialize(full bool) {
	if c.initialized && !full {
		return
	}
	c.reset()
	for _, record := range c.source {
		c.createDocument(record)
	}
	c.initialized = true
}

func (c *EmbeddedCollection) reset() {
	c.keys = c.keys[:0]
	c.byID = map[string]datamodel.Document{}
	c.invalid = map[string]map[string]any{}
}

// createDocument instantiates one record, diverting failures to the invalid
// side channel.
func (c *EmbeddedCollection) createDocument(record map[string]any) {
	id, _ := record["_id"].(string)
	doc, err := c.model.New(record, c.parent)
	if err != nil {
		if id != "" {
			c.invalid[id] = record
		}
		c.logger.Warn("dropping invalid embedded document",
			zap.String("collection", c.name),
			zap.String("documentName", c.model.DocumentName()),
			zap.String("id", id),
			zap.Error(err))
		return
	}
	c.insert(doc.ID(), doc)
}

func (c *EmbeddedCollection) insert(id string, doc datamodel.Document) {
	if _, exists := c.byID[id]; !exists {
		c.keys = append(c.keys, id)
	}
	c.byID[id] = doc
}

// Get returns the document for id.
func (c *EmbeddedCollection) Get(id string) (datamodel.Document, bool) {
	doc, ok := c.byID[id]
	return doc, ok
}

// GetStrict returns the document for id or an error naming the collection.
func (c *EmbeddedCollection) GetStrict(id string) (datamodel.Document, error) {
	if doc, ok := c.byID[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("%s: %s %q: %w", c.name, c.model.DocumentName(), id, ErrNotFound)
}

// Invalid returns the raw record of a child that failed instantiation.
func (c *EmbeddedCollection) Invalid(id string) (map[string]any, bool) {
	r, ok := c.invalid[id]
	return r, ok
}

// InvalidIDs lists ids currently parked in the invalid side channel.
func (c *EmbeddedCollection) InvalidIDs() []string {
	ids := make([]string, 0, len(c.invalid))
	for id := range c.invalid {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether a live document with the given id exists.
func (c *EmbeddedCollection) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Size returns the number of live documents.
func (c *EmbeddedCollection) Size() int { return len(c.keys) }

// IDs returns live document ids in insertion order.
func (c *EmbeddedCollection) IDs() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Values returns live documents in insertion order.
func (c *EmbeddedCollection) Values() []datamodel.Document {
	out := make([]datamodel.Document, 0, len(c.keys))
	for _, id := range c.keys {
		out = append(out, c.byID[id])
	}
	return out
}

// Set inserts or replaces a document and its backing source record.
func (c *EmbeddedCollection) Set(doc datamodel.Document) {
	id := doc.ID()
	record := doc.Source()
	if _, exists := c.byID[id]; exists {
		c.replaceSource(id, record)
	} else {
		c.source = append(c.source, record)
	}
	c.insert(id, doc)
	delete(c.invalid, id)
}

// Delete removes a document and its backing record.
func (c *EmbeddedCollection) Delete(id string) {
	if _, exists := c.byID[id]; !exists {
		delete(c.invalid, id)
		c.removeSource(id)
		return
	}
	delete(c.byID, id)
	for i, k := range c.keys {
		if k == id {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	c.removeSource(id)
}

func (c *EmbeddedCollection) replaceSource(id string, record map[string]any) {
	for i, r := range c.source {
		if rid, _ := r["_id"].(string); rid == id {
			c.source[i] = record
			return
		}
	}
	c.source = append(c.source, record)
}

func (c *EmbeddedCollection) removeSource(id string) {
	for i, r := range c.source {
		if rid, _ := r["_id"].(string); rid == id {
			c.source = append(c.source[:i], c.source[i+1:]...)
			return
		}
	}
}

// SourceRecords returns the backing array of plain records.
func (c *EmbeddedCollection) SourceRecords() []map[string]any { return c.source }

// ToObject serializes the collection. With source true the backing records are
// deep-cloned; otherwise live documents serialize through their own ToObject.
func (c *EmbeddedCollection) ToObject(source bool) []map[string]any {
	if source {
		out := make([]map[string]any, 0, len(c.source))
		for _, r := range c.source {
			out = append(out, datamodel.DeepClone(r).(map[string]any))
		}
		return out
	}
	out := make([]map[string]any, 0, len(c.keys))
	for _, id := range c.keys {
		out = append(out, c.byID[id].ToObject(false))
	}
	return out
}
