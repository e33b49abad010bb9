// Package fields implements the declarative schema engine: the DataField
// contract (clean/validate/initialize/serialize for one slot), the scalar
// field catalog, record schemas, sequence fields, tagged unions, open
// polymorphic payloads, and embedded-collection fields.
package fields

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// DataField is one named, possibly nested schema node. A field instance is
// declared once inside a static schema and bound to exactly one parent; only
// the name/parent bookkeeping mutates after construction.
//
// Lifecycle of a value: Clean coerces raw input toward the field's native
// representation and fills defaults; Validate returns a Failure describing any
// remaining problem; Initialize produces the live in-memory shape; ToObject
// inverts Initialize back to a plain serializable value.
type DataField interface {
	// Name returns the field's name within its parent schema, or "" while unbound.
	Name() string
	// Parent returns the schema the field is bound into, or nil.
	Parent() *SchemaField
	// Options exposes the shared field options.
	Options() FieldOptions
	// InitialValue resolves the declared initial, evaluating thunks against
	// the full source record. Fields with no usable initial return Absent.
	InitialValue(source map[string]any) any
	// Clean coerces value to the field's native representation. Cast failures
	// pass the value through untouched for Validate to report.
	Clean(value any, opts datamodel.CleanOptions) any
	// Validate returns nil on success or a structured failure.
	Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure
	// Initialize transforms cleaned source data into the live in-memory
	// shape. It must not mutate value.
	Initialize(value any, model datamodel.Document) any
	// ToObject is the inverse of Initialize.
	ToObject(value any) any
	// Apply folds a change delta onto the current value under the given mode.
	Apply(mode datamodel.ChangeMode, value, delta any) (any, error)
	// JSONSchema projects the field into a JSON Schema fragment.
	JSONSchema() *jsonschema.Schema

	bind(name string, parent *SchemaField)
	// recursive reports whether the joint-validation pass descends into the field.
	recursive() bool
}

// Validator is a custom per-field predicate. Returning an error rejects the
// value; wrap a *datamodel.Failure to control the reported shape.
type Validator func(value any) error

// FieldOptions are shared by every field kind.
type FieldOptions struct {
	// Required rejects absent values. A field is satisfied by an explicit
	// value, by null (iff Nullable), or by its initial value (iff not Required).
	Required bool
	// Nullable admits explicit null.
	Nullable bool
	// Initial is the default value, either a literal or a
	// func(source map[string]any) any thunk evaluated against the record.
	Initial any
	// ReadOnly marks the field immutable after construction; updates through
	// the document layer are rejected.
	ReadOnly bool
	// Validate is an optional custom predicate, run after the field's own
	// type-specific rule.
	Validate Validator
	// ValidationError overrides the message of type-rule failures.
	ValidationError string
	Label           string
	Hint            string
}

// BaseField carries options and bind-once bookkeeping for concrete fields.
type BaseField struct {
	name   string
	parent *SchemaField
	opts   FieldOptions
}

func newBase(opts FieldOptions) BaseField { return BaseField{opts: opts} }

func (b *BaseField) Name() string          { return b.name }
func (b *BaseField) Parent() *SchemaField  { return b.parent }
func (b *BaseField) Options() FieldOptions { return b.opts }
func (b *BaseField) recursive() bool       { return false }

// bind attaches the field to its declaring schema. Sharing one field instance
// across two schemas is a programmer error and panics at declaration time.
func (b *BaseField) bind(name string, parent *SchemaField) {
	if b.parent != nil && b.parent != parent {
		panic(fmt.Sprintf("fields: field %q already belongs to another parent schema", b.name))
	}
	b.name = name
	b.parent = parent
}

// InitialValue resolves the declared initial value against the source record.
func (b *BaseField) InitialValue(source map[string]any) any {
	switch init := b.opts.Initial.(type) {
	case nil:
		if b.opts.Nullable {
			return nil
		}
		return datamodel.Absent
	case func(map[string]any) any:
		return init(source)
	default:
		return datamodel.DeepClone(init)
	}
}

// Apply implements the modes shared by every kind; field kinds with richer
// semantics override this.
func (b *BaseField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	switch mode {
	case datamodel.ChangeOverride, datamodel.ChangeCustom:
		return delta, nil
	default:
		return value, datamodel.ErrUnsupportedChange
	}
}

// ---- shared clean/validate orchestration ----

// cleanValue runs the kind-independent part of Clean: null admissibility,
// default application, then cast and kind-specific cleaning.
func cleanValue(f DataField, value any, opts datamodel.CleanOptions, cast func(any) any, cleanType func(any, datamodel.CleanOptions) any) any {
	if value == nil {
		if f.Options().Nullable {
			return nil
		}
		value = datamodel.Absent
	}
	if datamodel.IsAbsent(value) {
		return f.InitialValue(opts.Source)
	}
	v := value
	if cast != nil {
		v = cast(v)
	}
	if cleanType != nil {
		v = cleanType(v, opts)
	}
	return v
}

// validateValue runs the evaluation order shared by every kind: special-case
// admissibility, the kind's own rule, then the custom predicate. The first
// definitive answer short-circuits.
func validateValue(f DataField, value any, opts datamodel.ValidateOptions, validateType func(any, datamodel.ValidateOptions) *datamodel.Failure) *datamodel.Failure {
	o := f.Options()
	if datamodel.IsAbsent(value) {
		if o.Required && !opts.Partial {
			return datamodel.NewFailure(datamodel.CodeRequired, "may not be undefined", nil)
		}
		return nil
	}
	if value == nil {
		if o.Nullable {
			return nil
		}
		return datamodel.NewFailure(datamodel.CodeNotNullable, "may not be null", nil)
	}
	if validateType != nil {
		if fail := validateType(value, opts); fail != nil {
			if o.ValidationError != "" {
				fail.Message = o.ValidationError
			}
			return fail
		}
	}
	if o.Validate != nil {
		if err := o.Validate(value); err != nil {
			if fail, ok := datamodel.AsFailure(err); ok {
				return fail
			}
			return datamodel.NewFailure(datamodel.CodeCustomRule, err.Error(), value)
		}
	}
	return nil
}
