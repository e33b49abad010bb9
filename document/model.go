// Package document orchestrates the full lifecycle of a schema-described
// record: migration, cleaning, validation with fallback repair, joint rules,
// initialization of the live representation, and serialization back to plain
// data.
package document

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/collection"
	"github.com/lorebound/datamodel/fields"
	"go.uber.org/zap"
)

// MigrateFunc upgrades raw source data from older persisted shapes before
// cleaning sees it. It receives a private clone and returns the upgraded
// record (commonly the same map).
type MigrateFunc func(source map[string]any) map[string]any

// Type is the static declaration of a document kind: its name, its schema and
// its migration hook. A Type is declared once and shared by every instance.
type Type struct {
	name        string
	schema      *fields.SchemaField
	migrate     MigrateFunc
	logger      *zap.Logger
	collections []string
}

// TypeOption configures a document type.
type TypeOption func(*Type)

// WithMigration installs the source-data upgrade hook.
func WithMigration(fn MigrateFunc) TypeOption {
	return func(t *Type) { t.migrate = fn }
}

// WithTypeLogger attaches a logger inherited by instances.
func WithTypeLogger(l *zap.Logger) TypeOption {
	return func(t *Type) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewType declares a document kind over schema. Embedded-collection field
// names are indexed here so delta merging can treat them specially.
func NewType(name string, schema *fields.SchemaField, opts ...TypeOption) *Type {
	t := &Type{name: name, schema: schema, logger: zap.NewNop()}
	for _, fn := range schema.Names() {
		f, _ := schema.Field(fn)
		switch f.(type) {
		case *fields.EmbeddedCollectionField, *fields.EmbeddedCollectionDeltaField:
			t.collections = append(t.collections, fn)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Name returns the document type name.
func (t *Type) Name() string { return t.name }

// Schema returns the type's record schema.
func (t *Type) Schema() *fields.SchemaField { return t.schema }

// CollectionNames lists the schema fields that hold embedded collections.
func (t *Type) CollectionNames() []string {
	out := make([]string, len(t.collections))
	copy(out, t.collections)
	return out
}

// DocumentName implements collection.Model.
func (t *Type) DocumentName() string { return t.name }

// CleanRecord migrates and cleans one record. Partial cleans skip migration:
// a sparse update is not a persisted shape.
func (t *Type) CleanRecord(record map[string]any, opts datamodel.CleanOptions) map[string]any {
	src := record
	if t.migrate != nil && !opts.Partial {
		src = t.migrate(datamodel.DeepClone(record).(map[string]any))
	}
	cleaned, ok := t.schema.Clean(src, opts).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return cleaned
}

// ValidateRecord validates one record, running joint rules only when the
// per-field pass is clean and the record is complete.
func (t *Type) ValidateRecord(record map[string]any, opts datamodel.ValidateOptions) *datamodel.Failure {
	if fail := t.schema.Validate(record, opts); fail != nil && fail.Unresolved {
		return fail
	}
	if opts.Partial {
		return nil
	}
	return t.schema.ValidateJoint(record)
}

// New constructs a live document from source. Implements collection.Model.
func (t *Type) New(source map[string]any, parent datamodel.Document) (datamodel.Document, error) {
	return NewDataModel(t, source, parent)
}

// JSONSchema projects the document type into a JSON Schema document.
func (t *Type) JSONSchema() *jsonschema.Schema {
	s := t.schema.JSONSchema()
	s.Title = t.name
	return s
}

// ApplyDelta flattens a delta record onto a full base record. Embedded
// collections are replaced, never field-merged: the result keeps every
// non-tombstone delta record plus every base record whose id the delta does
// not manage at all. The remaining top-level delta fields then shallow-merge
// onto the base.
func (t *Type) ApplyDelta(base, delta map[string]any) map[string]any {
	out := datamodel.DeepClone(base).(map[string]any)
	for _, name := range t.collections {
		merged := mergeCollectionRecords(recordsOf(base[name]), recordsOf(delta[name]))
		out[name] = merged
	}
	for k, v := range delta {
		if isCollectionName(t.collections, k) {
			continue
		}
		out[k] = datamodel.DeepClone(v)
	}
	return out
}

func isCollectionName(names []string, k string) bool {
	for _, n := range names {
		if n == k {
			return true
		}
	}
	return false
}

func recordsOf(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func mergeCollectionRecords(base, delta []map[string]any) []any {
	managed := map[string]struct{}{}
	var merged []any
	for _, r := range delta {
		id, _ := r["_id"].(string)
		managed[id] = struct{}{}
		if !collection.IsTombstoneRecord(r) {
			merged = append(merged, datamodel.DeepClone(r))
		}
	}
	for _, r := range base {
		id, _ := r["_id"].(string)
		if _, hit := managed[id]; hit {
			continue
		}
		merged = append(merged, datamodel.DeepClone(r))
	}
	if merged == nil {
		merged = []any{}
	}
	return merged
}

// DataModel is one live document instance: cleaned source data plus the
// initialized in-memory representation derived from it.
type DataModel struct {
	typ    *Type
	parent datamodel.Document
	source map[string]any
	data   map[string]any
	// repairs records the fallback substitutions accepted at construction.
	repairs *datamodel.Failure
	logger  *zap.Logger
}

// ModelOption configures one document instance.
type ModelOption func(*DataModel)

// WithLogger overrides the logger inherited from the type.
func WithLogger(l *zap.Logger) ModelOption {
	return func(m *DataModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewDataModel runs the construction pipeline: migrate, clean with defaults,
// validate with fallback repair, joint rules, initialize. Unresolvable
// validation failures abort construction.
func NewDataModel(t *Type, source map[string]any, parent datamodel.Document, opts ...ModelOption) (*DataModel, error) {
	m := &DataModel{typ: t, parent: parent, logger: t.logger}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	cleaned := t.CleanRecord(source, datamodel.CleanOptions{})
	fail := t.schema.Validate(cleaned, datamodel.ValidateOptions{Fallback: true, DropInvalidEmbedded: true})
	if fail != nil {
		if fail.Unresolved {
			return nil, fmt.Errorf("%s: %w", t.name, fail)
		}
		m.repairs = fail
		m.logger.Warn("repaired invalid document data",
			zap.String("document", t.name),
			zap.String("id", idOf(cleaned)),
			zap.Int("issues", len(fail.Issues())))
	}
	if jf := t.schema.ValidateJoint(cleaned); jf != nil {
		return nil, fmt.Errorf("%s: %w", t.name, jf)
	}
	m.source = cleaned
	m.data = asRecord(t.schema.Initialize(cleaned, m))
	return m, nil
}

func idOf(record map[string]any) string {
	id, _ := record["_id"].(string)
	return id
}

func asRecord(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// ID returns the document id, or "" when unassigned.
func (m *DataModel) ID() string { return idOf(m.source) }

// DocumentName returns the document type name.
func (m *DataModel) DocumentName() string { return m.typ.name }

// Type returns the static type declaration.
func (m *DataModel) Type() *Type { return m.typ }

// Parent returns the owning document, or nil for a top-level document.
func (m *DataModel) Parent() datamodel.Document { return m.parent }

// Source exposes the cleaned source record. Callers must treat it as
// read-only; mutations go through UpdateSource.
func (m *DataModel) Source() map[string]any { return m.source }

// Repairs returns the fallback substitutions accepted at construction, or nil
// when the source validated cleanly.
func (m *DataModel) Repairs() *datamodel.Failure { return m.repairs }

// Get resolves a dot-separated path through the live data, evaluating
// computed values along the way. Missing segments yield nil.
func (m *DataModel) Get(path string) any {
	var cur any = m.data
	for _, seg := range strings.Split(path, ".") {
		rec, ok := datamodel.Resolve(cur).(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = rec[seg]
		if !ok {
			return nil
		}
	}
	return datamodel.Resolve(cur)
}

// Collection returns the live embedded collection stored under name.
func (m *DataModel) Collection(name string) (*collection.EmbeddedCollection, bool) {
	switch c := m.data[name].(type) {
	case *collection.EmbeddedCollectionDelta:
		return &c.EmbeddedCollection, true
	case *collection.EmbeddedCollection:
		return c, true
	default:
		return nil, false
	}
}

// Delta returns the live delta collection stored under name.
func (m *DataModel) Delta(name string) (*collection.EmbeddedCollectionDelta, bool) {
	d, ok := m.data[name].(*collection.EmbeddedCollectionDelta)
	return d, ok
}

// UpdateSource applies a sparse change set: readonly checks, partial clean,
// partial validation, merge, joint rules, then re-initialization. On failure
// the document is left untouched.
func (m *DataModel) UpdateSource(changes map[string]any) error {
	if fail := m.checkReadonly(changes); fail != nil {
		return fail
	}
	cleaned, ok := m.typ.schema.Clean(changes, datamodel.CleanOptions{Partial: true, Source: m.source}).(map[string]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "update must be an object", changes)
	}
	if fail := m.typ.schema.Validate(cleaned, datamodel.ValidateOptions{Partial: true, Source: m.source}); fail != nil {
		return fail
	}
	merged := datamodel.MergeObject(m.source, cleaned)
	for _, name := range m.typ.collections {
		// Collections update by replacement, never by recursive merge.
		if v, present := cleaned[name]; present {
			merged[name] = datamodel.DeepClone(v)
		}
	}
	if fail := m.typ.schema.ValidateJoint(merged); fail != nil {
		return fail
	}
	m.source = merged
	m.data = asRecord(m.typ.schema.Initialize(merged, m))
	return nil
}

func (m *DataModel) checkReadonly(changes map[string]any) *datamodel.Failure {
	agg := &datamodel.Failure{InvalidValue: changes}
	for name, v := range changes {
		f, ok := m.typ.schema.Field(name)
		if !ok || !f.Options().ReadOnly {
			continue
		}
		cur, has := m.source[name]
		// A nil current value means the field was never assigned (a fresh
		// document awaiting its id); first assignment is allowed.
		if !has || cur == nil || reflect.DeepEqual(cur, v) {
			continue
		}
		agg.WithField(name, datamodel.NewFailure(datamodel.CodeReadonly, "is read-only", v))
	}
	if agg.Empty() {
		return nil
	}
	agg.Code = datamodel.CodeReadonly
	agg.Message = "modifies read-only fields"
	return agg
}

// ToObject serializes the document. With source true the cleaned source
// record is cloned verbatim; otherwise the live data is folded back through
// the schema, resolving computed values.
func (m *DataModel) ToObject(source bool) map[string]any {
	if source {
		return datamodel.DeepClone(m.source).(map[string]any)
	}
	return asRecord(m.typ.schema.ToObject(m.data))
}

// ToJSON serializes the source record.
func (m *DataModel) ToJSON() ([]byte, error) {
	return json.Marshal(m.ToObject(true))
}

// FromJSON constructs a document of type t from its persisted form.
func FromJSON(t *Type, data []byte, parent datamodel.Document, opts ...ModelOption) (*DataModel, error) {
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, datamodel.NewFailure(datamodel.CodeParseError, err.Error(), string(data))
	}
	return NewDataModel(t, record, parent, opts...)
}
