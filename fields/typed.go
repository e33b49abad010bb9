package fields

import (
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// TypeTagKey is the discriminant key of tagged-union and polymorphic values.
const TypeTagKey = "type"

// TypedSchemaField is a closed tagged union: a fixed map from discriminant
// value to record schema. Every branch must redeclare the discriminant as a
// required, non-nullable, non-blank string field whose initial value is the
// branch key, so a branch's default record is self-identifying.
type TypedSchemaField struct {
	BaseField
	keys     []string
	branches map[string]*SchemaField
}

// NewTypedSchema declares the union. Malformed branch declarations are
// programmer errors and panic.
func NewTypedSchema(branches map[string]*SchemaField, opts FieldOptions) *TypedSchemaField {
	keys := make([]string, 0, len(branches))
	for k := range branches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		checkBranchTag(key, branches[key])
	}
	f := &TypedSchemaField{BaseField: newBase(opts), keys: keys, branches: branches}
	if f.opts.Initial == nil && len(keys) > 0 && !f.opts.Nullable {
		first := keys[0]
		f.opts.Initial = func(source map[string]any) any {
			return branches[first].InitialValue(source)
		}
	}
	return f
}

func checkBranchTag(key string, branch *SchemaField) {
	if branch == nil {
		panic(fmt.Sprintf("fields: typed schema branch %q is nil", key))
	}
	tag, ok := branch.Field(TypeTagKey)
	if !ok {
		panic(fmt.Sprintf("fields: typed schema branch %q lacks a %q field", key, TypeTagKey))
	}
	sf, ok := tag.(*StringField)
	if !ok {
		panic(fmt.Sprintf("fields: typed schema branch %q: %q must be a string field", key, TypeTagKey))
	}
	o := sf.Options()
	if !o.Required || o.Nullable || !sf.str.NonBlank {
		panic(fmt.Sprintf("fields: typed schema branch %q: %q must be required, non-nullable and non-blank", key, TypeTagKey))
	}
	if init, _ := o.Initial.(string); init != key {
		panic(fmt.Sprintf("fields: typed schema branch %q: %q initial must equal the branch key", key, TypeTagKey))
	}
}

// Keys returns the branch discriminants in sorted order.
func (f *TypedSchemaField) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Branch returns the schema for a discriminant value.
func (f *TypedSchemaField) Branch(key string) (*SchemaField, bool) {
	b, ok := f.branches[key]
	return b, ok
}

func (f *TypedSchemaField) recursive() bool { return true }

// branchOf resolves the branch from a record's own discriminant.
func (f *TypedSchemaField) branchOf(value any) (*SchemaField, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	tag, ok := m[TypeTagKey].(string)
	if !ok {
		return nil, false
	}
	b, ok := f.branches[tag]
	return b, ok
}

// Clean delegates to the branch named by the record's discriminant. Records
// with no resolvable branch pass through untouched for Validate to report.
func (f *TypedSchemaField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, nil, func(v any, o datamodel.CleanOptions) any {
		if branch, ok := f.branchOf(v); ok {
			return branch.Clean(v, o)
		}
		return v
	})
}

func (f *TypedSchemaField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateUnion)
}

func (f *TypedSchemaField) validateUnion(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	m, ok := value.(map[string]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", value)
	}
	tag, ok := m[TypeTagKey].(string)
	if !ok || tag == "" {
		return datamodel.NewFailure(datamodel.CodeSubtypeMissing, "does not have a valid type", value)
	}
	branch, ok := f.branches[tag]
	if !ok {
		return datamodel.NewFailure(datamodel.CodeSubtypeUnknown, "does not have a valid type", value)
	}
	return branch.Validate(value, opts)
}

// ValidateJoint descends into the active branch's joint rules.
func (f *TypedSchemaField) ValidateJoint(data map[string]any) *datamodel.Failure {
	if branch, ok := f.branchOf(data); ok {
		return branch.ValidateJoint(data)
	}
	return nil
}

func (f *TypedSchemaField) Initialize(value any, model datamodel.Document) any {
	if branch, ok := f.branchOf(value); ok {
		return branch.Initialize(value, model)
	}
	return value
}

func (f *TypedSchemaField) ToObject(value any) any {
	if branch, ok := f.branchOf(value); ok {
		return branch.ToObject(value)
	}
	return value
}

func (f *TypedSchemaField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	if branch, ok := f.branchOf(value); ok {
		return branch.Apply(mode, value, delta)
	}
	return f.BaseField.Apply(mode, value, delta)
}

func (f *TypedSchemaField) JSONSchema() *jsonschema.Schema {
	one := make([]*jsonschema.Schema, 0, len(f.keys))
	for _, key := range f.keys {
		one = append(one, f.branches[key].JSONSchema())
	}
	return &jsonschema.Schema{OneOf: one, Description: f.opts.Hint}
}
