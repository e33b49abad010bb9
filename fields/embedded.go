package fields

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/collection"
	"go.uber.org/zap"
)

// EmbeddedOptions extend the shared options for collection-bearing fields.
type EmbeddedOptions struct {
	FieldOptions
	// Logger receives the invalid-document side channel of the collection.
	Logger *zap.Logger
}

// EmbeddedCollectionField stores an array of child document records and
// materializes them as an EmbeddedCollection at initialization. Records that
// fail validation are not fatal to the parent: with DropInvalidEmbedded they
// are spliced out of the stored data, and the collection itself diverts them
// to an invalid side channel during instantiation.
type EmbeddedCollectionField struct {
	BaseField
	model  collection.Model
	logger *zap.Logger
}

// NewEmbeddedCollection declares a collection of model documents.
func NewEmbeddedCollection(model collection.Model, opts EmbeddedOptions) *EmbeddedCollectionField {
	if model == nil {
		panic("fields: embedded collection model must not be nil")
	}
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = func(map[string]any) any { return []any{} }
	}
	return &EmbeddedCollectionField{BaseField: newBase(opts.FieldOptions), model: model, logger: opts.Logger}
}

// Model returns the child document model.
func (f *EmbeddedCollectionField) Model() collection.Model { return f.model }

func (f *EmbeddedCollectionField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castArray, f.cleanRecords)
}

// cleanRecords gives every child record a full clean of its own; a partial
// update of the parent still replaces child records wholesale. Records missing
// an id are assigned one here so the collection can key them.
func (f *EmbeddedCollectionField) cleanRecords(value any, opts datamodel.CleanOptions) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		record, ok := v.(map[string]any)
		if !ok {
			out[i] = v
			continue
		}
		if id, _ := record["_id"].(string); id == "" {
			record = datamodel.DeepClone(record).(map[string]any)
			record["_id"] = datamodel.GenerateID()
		}
		out[i] = f.model.CleanRecord(record, datamodel.CleanOptions{})
	}
	return out
}

func (f *EmbeddedCollectionField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateRecords)
}

// validateRecords validates each child record independently. When the caller
// allows dropping invalid embedded documents, the bad records are spliced out
// and the failure resolves to the surviving slice; otherwise the aggregate
// failure stays unresolved and fallback substitution happens one level up.
func (f *EmbeddedCollectionField) validateRecords(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	arr, ok := value.([]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an array of documents", value)
	}
	drop := opts.Fallback && opts.DropInvalidEmbedded
	agg := &datamodel.Failure{InvalidValue: value}
	kept := make([]any, len(arr))
	copy(kept, arr)
	seen := map[string]struct{}{}
	for i := len(arr) - 1; i >= 0; i-- {
		fail := f.validateRecord(arr[i], seen)
		if fail == nil {
			continue
		}
		agg.WithElement(i, elementID(arr[i]), fail)
		if drop {
			kept = append(kept[:i], kept[i+1:]...)
		}
	}
	if agg.Empty() {
		return nil
	}
	agg.Code = datamodel.CodeElementInvalid
	agg.Message = fmt.Sprintf("has invalid %s documents", f.model.DocumentName())
	if drop {
		agg.Resolve(kept)
	}
	return agg
}

func (f *EmbeddedCollectionField) validateRecord(v any, seen map[string]struct{}) *datamodel.Failure {
	record, ok := v.(map[string]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", v)
	}
	id, _ := record["_id"].(string)
	if _, dup := seen[id]; dup && id != "" {
		return datamodel.NewFailure(datamodel.CodeDuplicateID, fmt.Sprintf("duplicate id %q", id), v)
	}
	seen[id] = struct{}{}
	return f.model.ValidateRecord(record, datamodel.ValidateOptions{})
}

// Initialize materializes the live collection bound to the owning document.
func (f *EmbeddedCollectionField) Initialize(value any, model datamodel.Document) any {
	records := recordSlice(value)
	c := collection.New(f.name, model, f.model, records, collection.WithLogger(f.logger))
	c.Initialize(false)
	return c
}

// ToObject serializes the collection back to its source records, invalid
// entries included, so a round trip never loses data.
func (f *EmbeddedCollectionField) ToObject(value any) any {
	switch t := value.(type) {
	case *collection.EmbeddedCollection:
		return recordsToAny(t.ToObject(true))
	case []any:
		return datamodel.DeepClone(t)
	default:
		return value
	}
}

func (f *EmbeddedCollectionField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{Type: "object"},
		Description: f.opts.Hint,
	}
}

func recordSlice(value any) []map[string]any {
	arr, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if record, ok := v.(map[string]any); ok {
			out = append(out, datamodel.DeepClone(record).(map[string]any))
		}
	}
	return out
}

func recordsToAny(records []map[string]any) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

// EmbeddedDocumentField stores exactly one child document record, owned and
// serialized inline by the parent. The live value is the instantiated child.
type EmbeddedDocumentField struct {
	BaseField
	model  collection.Model
	logger *zap.Logger
}

// NewEmbeddedDocument declares a single embedded model document.
func NewEmbeddedDocument(model collection.Model, opts EmbeddedOptions) *EmbeddedDocumentField {
	if model == nil {
		panic("fields: embedded document model must not be nil")
	}
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = func(map[string]any) any { return map[string]any{} }
	}
	return &EmbeddedDocumentField{BaseField: newBase(opts.FieldOptions), model: model, logger: opts.Logger}
}

// Model returns the child document model.
func (f *EmbeddedDocumentField) Model() collection.Model { return f.model }

func (f *EmbeddedDocumentField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, nil, func(v any, o datamodel.CleanOptions) any {
		record, ok := v.(map[string]any)
		if !ok {
			return v
		}
		return f.model.CleanRecord(record, datamodel.CleanOptions{Partial: o.Partial})
	})
}

func (f *EmbeddedDocumentField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, o datamodel.ValidateOptions) *datamodel.Failure {
		record, ok := v.(map[string]any)
		if !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", v)
		}
		return f.model.ValidateRecord(record, datamodel.ValidateOptions{Partial: o.Partial})
	})
}

// Initialize instantiates the child document. An uninstantiable child is kept
// as plain data rather than failing the parent; the defect was already
// reported during validation.
func (f *EmbeddedDocumentField) Initialize(value any, model datamodel.Document) any {
	record, ok := value.(map[string]any)
	if !ok {
		return value
	}
	doc, err := f.model.New(datamodel.DeepClone(record).(map[string]any), model)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("keeping embedded document uninstantiated",
				zap.String("document", f.model.DocumentName()),
				zap.Error(err))
		}
		return datamodel.DeepClone(record)
	}
	return doc
}

func (f *EmbeddedDocumentField) ToObject(value any) any {
	switch t := value.(type) {
	case datamodel.Document:
		return t.ToObject(true)
	case map[string]any:
		return datamodel.DeepClone(t)
	default:
		return value
	}
}

func (f *EmbeddedDocumentField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Description: f.opts.Hint}
}

// BaseResolver locates the base collection a delta overlays, given the
// document that owns the delta. Resolution is lazy; returning nil means the
// base is unavailable and the delta presents only its managed records.
type BaseResolver func(parent datamodel.Document) *collection.EmbeddedCollection

// EmbeddedCollectionDeltaField stores sparse modifications to a collection
// owned by another document: full override records plus tombstones suppressing
// inherited ids. Initialization materializes the merged view as an
// EmbeddedCollectionDelta.
type EmbeddedCollectionDeltaField struct {
	EmbeddedCollectionField
	base BaseResolver
	sink collection.ChangeSink
}

// DeltaFieldOptions extend EmbeddedOptions with the delta wiring.
type DeltaFieldOptions struct {
	EmbeddedOptions
	// Base resolves the overlaid collection from the owning document.
	Base BaseResolver
	// Sink observes the CRUD events restore operations emulate.
	Sink collection.ChangeSink
}

// NewEmbeddedCollectionDelta declares a delta over a base collection of model
// documents.
func NewEmbeddedCollectionDelta(model collection.Model, opts DeltaFieldOptions) *EmbeddedCollectionDeltaField {
	return &EmbeddedCollectionDeltaField{
		EmbeddedCollectionField: *NewEmbeddedCollection(model, opts.EmbeddedOptions),
		base:                    opts.Base,
		sink:                    opts.Sink,
	}
}

// cleanRecords passes tombstones through in normalized shape and gives
// override records the usual full clean.
func (f *EmbeddedCollectionDeltaField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castArray, f.cleanDeltaRecords)
}

func (f *EmbeddedCollectionDeltaField) cleanDeltaRecords(value any, opts datamodel.CleanOptions) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		record, ok := v.(map[string]any)
		if ok && collection.IsTombstoneRecord(record) {
			id, _ := record["_id"].(string)
			out[i] = collection.Tombstone(id)
			continue
		}
		out[i] = f.EmbeddedCollectionField.cleanRecords([]any{v}, opts).([]any)[0]
	}
	return out
}

func (f *EmbeddedCollectionDeltaField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateDeltaRecords)
}

// validateDeltaRecords accepts two record shapes: exact tombstones and full
// override records. A tombstone must be {_id, _tombstone: true} with a valid
// id and nothing else; anything tombstone-flagged but misshapen is rejected
// rather than silently treated as an override.
func (f *EmbeddedCollectionDeltaField) validateDeltaRecords(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	arr, ok := value.([]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an array of documents", value)
	}
	drop := opts.Fallback && opts.DropInvalidEmbedded
	agg := &datamodel.Failure{InvalidValue: value}
	kept := make([]any, len(arr))
	copy(kept, arr)
	seen := map[string]struct{}{}
	for i := len(arr) - 1; i >= 0; i-- {
		fail := f.validateDeltaRecord(arr[i], seen)
		if fail == nil {
			continue
		}
		agg.WithElement(i, elementID(arr[i]), fail)
		if drop {
			kept = append(kept[:i], kept[i+1:]...)
		}
	}
	if agg.Empty() {
		return nil
	}
	agg.Code = datamodel.CodeElementInvalid
	agg.Message = fmt.Sprintf("has invalid %s delta records", f.model.DocumentName())
	if drop {
		agg.Resolve(kept)
	}
	return agg
}

func (f *EmbeddedCollectionDeltaField) validateDeltaRecord(v any, seen map[string]struct{}) *datamodel.Failure {
	record, ok := v.(map[string]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", v)
	}
	if t, flagged := record["_tombstone"]; flagged {
		b, ok := t.(bool)
		if !ok || !b {
			return datamodel.NewFailure(datamodel.CodeTombstoneShape, "tombstone flag must be true", v)
		}
		id, _ := record["_id"].(string)
		if !datamodel.IsValidID(id) {
			return datamodel.NewFailure(datamodel.CodeTombstoneShape, "tombstone requires a valid _id", v)
		}
		if len(record) != 2 {
			return datamodel.NewFailure(datamodel.CodeTombstoneShape, "tombstone must carry no payload", v)
		}
		if _, dup := seen[id]; dup {
			return datamodel.NewFailure(datamodel.CodeDuplicateID, fmt.Sprintf("duplicate id %q", id), v)
		}
		seen[id] = struct{}{}
		return nil
	}
	return f.EmbeddedCollectionField.validateRecord(v, seen)
}

// Initialize materializes the merged delta collection.
func (f *EmbeddedCollectionDeltaField) Initialize(value any, model datamodel.Document) any {
	records := recordSlice(value)
	var base func() *collection.EmbeddedCollection
	if f.base != nil {
		resolver := f.base
		base = func() *collection.EmbeddedCollection { return resolver(model) }
	}
	d := collection.NewDelta(f.name, model, f.model, records, base,
		collection.WithChangeSink(f.sink), collection.WithDeltaLogger(f.logger))
	d.Initialize(false)
	return d
}

// ToObject serializes only the managed delta records, never the merged view:
// inherited documents belong to the base.
func (f *EmbeddedCollectionDeltaField) ToObject(value any) any {
	switch t := value.(type) {
	case *collection.EmbeddedCollectionDelta:
		return recordsToAny(t.ToObject(true))
	case []any:
		return datamodel.DeepClone(t)
	default:
		return value
	}
}
