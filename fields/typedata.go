package fields

import (
	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// TypeModelRegistry resolves the schema governing a document's subtype-specific
// payload. Resolution is open: subtypes registered by content packages get a
// full schema, unregistered ones fall back to a plain template object.
type TypeModelRegistry interface {
	// Resolve returns the payload schema for (documentName, subtype).
	Resolve(documentName, subtype string) (*SchemaField, bool)
	// Template returns the raw default payload for an unmodelled subtype.
	Template(documentName, subtype string) (map[string]any, bool)
	// Provider reports which package tier registered the subtype.
	Provider(documentName, subtype string) datamodel.Provenance
}

// TypeDataField holds the open polymorphic payload of a subtyped document,
// conventionally stored under "system". The governing schema depends on the
// sibling discriminant of the containing record, so every operation reads the
// subtype out of the full source record carried in the options.
//
// Payloads with no registered schema are preserved verbatim: cleaning merges
// them over the subtype template when one exists, and validation admits them
// unchecked rather than destroying data the installed packages cannot model.
type TypeDataField struct {
	BaseField
	documentName string
	registry     TypeModelRegistry
}

// NewTypeData declares the payload field for documentName. registry may be nil,
// in which case every payload is treated as unmodelled.
func NewTypeData(documentName string, registry TypeModelRegistry, opts FieldOptions) *TypeDataField {
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = func(map[string]any) any { return map[string]any{} }
	}
	return &TypeDataField{BaseField: newBase(opts), documentName: documentName, registry: registry}
}

// Joint validation does not descend into the payload: the governing schema
// depends on a sibling key the descent cannot see.
func (f *TypeDataField) recursive() bool { return false }

// DocumentName returns the document type this payload belongs to.
func (f *TypeDataField) DocumentName() string { return f.documentName }

func (f *TypeDataField) subtype(source map[string]any) string {
	if source == nil {
		return ""
	}
	sub, _ := source[TypeTagKey].(string)
	return sub
}

func (f *TypeDataField) model(source map[string]any) (*SchemaField, bool) {
	if f.registry == nil {
		return nil, false
	}
	sub := f.subtype(source)
	if sub == "" {
		return nil, false
	}
	return f.registry.Resolve(f.documentName, sub)
}

// GetModelProvider reports the provenance of the subtype active in source.
func (f *TypeDataField) GetModelProvider(source map[string]any) datamodel.Provenance {
	if f.registry == nil {
		return datamodel.ProvenanceUnknown
	}
	sub := f.subtype(source)
	if sub == "" {
		return datamodel.ProvenanceUnknown
	}
	return f.registry.Provider(f.documentName, sub)
}

func (f *TypeDataField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, nil, f.cleanPayload)
}

func (f *TypeDataField) cleanPayload(value any, opts datamodel.CleanOptions) any {
	data, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if model, ok := f.model(opts.Source); ok {
		return model.Clean(data, opts)
	}
	if f.registry != nil {
		if sub := f.subtype(opts.Source); sub != "" {
			if tmpl, ok := f.registry.Template(f.documentName, sub); ok {
				return datamodel.MergeObject(tmpl, data)
			}
		}
	}
	return datamodel.DeepClone(data)
}

func (f *TypeDataField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validatePayload)
}

func (f *TypeDataField) validatePayload(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	if _, ok := value.(map[string]any); !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", value)
	}
	if model, ok := f.model(opts.Source); ok {
		return model.Validate(value, opts)
	}
	return nil
}

func (f *TypeDataField) Initialize(value any, model datamodel.Document) any {
	data, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if m, ok := f.model(model.Source()); ok {
		return m.Initialize(data, model)
	}
	return datamodel.DeepClone(data)
}

func (f *TypeDataField) ToObject(value any) any {
	data, ok := value.(map[string]any)
	if !ok {
		return value
	}
	return datamodel.DeepClone(data)
}

func (f *TypeDataField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Description: f.opts.Hint}
}
