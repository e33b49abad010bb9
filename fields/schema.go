package fields

import (
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// JointRule is a cross-field validator run only after every individual field
// has passed. Joint failures are always fatal: there is no principled
// substitute value for a bad combination.
type JointRule func(data map[string]any) error

// SchemaField is an ordered mapping of field names to DataFields forming a
// record type. Contained fields are bound to exactly this schema; sharing a
// field instance across schemas panics at declaration time.
type SchemaField struct {
	BaseField
	names  []string
	fields map[string]DataField
	joint  []JointRule
}

func (s *SchemaField) recursive() bool { return true }

// SchemaBuilder assembles a SchemaField in declaration order.
type SchemaBuilder struct {
	schema *SchemaField
}

// Schema starts a record schema declaration.
func Schema() *SchemaBuilder {
	return &SchemaBuilder{schema: &SchemaField{
		BaseField: newBase(FieldOptions{Required: true}),
		fields:    map[string]DataField{},
	}}
}

// Field declares a named field. Duplicate names panic.
func (b *SchemaBuilder) Field(name string, f DataField) *SchemaBuilder {
	if _, dup := b.schema.fields[name]; dup {
		panic(fmt.Sprintf("fields: duplicate field %q in schema", name))
	}
	f.bind(name, b.schema)
	b.schema.names = append(b.schema.names, name)
	b.schema.fields[name] = f
	return b
}

// Joint registers a cross-field validation rule.
func (b *SchemaBuilder) Joint(rule JointRule) *SchemaBuilder {
	b.schema.joint = append(b.schema.joint, rule)
	return b
}

// Options replaces the schema's own field options (for nested use).
func (b *SchemaBuilder) Options(opts FieldOptions) *SchemaBuilder {
	name, parent := b.schema.name, b.schema.parent
	b.schema.BaseField = newBase(opts)
	b.schema.name, b.schema.parent = name, parent
	return b
}

// Build finalizes the schema.
func (b *SchemaBuilder) Build() *SchemaField { return b.schema }

// Names returns field names in declaration order.
func (s *SchemaField) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Field returns the declared field for name.
func (s *SchemaField) Field(name string) (DataField, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// UnknownKeys lists input keys with no declared field, in input-independent
// sorted order. Cleaning drops them; callers may want to report them.
func (s *SchemaField) UnknownKeys(data map[string]any) []string {
	var unknown []string
	for _, k := range sortedMapKeys(data) {
		if _, known := s.fields[k]; !known {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// InitialValue of a schema is the record of its fields' initial values.
func (s *SchemaField) InitialValue(source map[string]any) any {
	out := map[string]any{}
	for _, name := range s.names {
		v := s.fields[name].InitialValue(source)
		if !datamodel.IsAbsent(v) {
			out[name] = v
		}
	}
	return out
}

// Clean coerces a record: every declared field in declaration order, defaults
// for absent keys (unless partial), unknown keys dropped.
func (s *SchemaField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(s, value, opts, nil, s.cleanRecord)
}

func (s *SchemaField) cleanRecord(value any, opts datamodel.CleanOptions) any {
	src, ok := value.(map[string]any)
	if !ok {
		return value
	}
	inner := opts
	if inner.Source == nil {
		inner.Source = src
	}
	out := make(map[string]any, len(s.names))
	for _, name := range s.names {
		v, present := src[name]
		if !present {
			if opts.Partial {
				continue
			}
			v = datamodel.Absent
		}
		cleaned := s.fields[name].Clean(v, inner)
		if !datamodel.IsAbsent(cleaned) {
			out[name] = cleaned
		}
	}
	return out
}

// Validate checks every field, aggregating per-field failures into a single
// structured failure keyed by field name; it never short-circuits on the
// first bad field. In fallback mode an invalid value may be repaired in place
// with the field's own initial value, but only when that initial value
// independently validates.
func (s *SchemaField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(s, value, opts, s.validateRecord)
}

func (s *SchemaField) validateRecord(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	data, ok := value.(map[string]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", value)
	}
	inner := opts
	if inner.Source == nil {
		inner.Source = data
	}
	agg := &datamodel.Failure{InvalidValue: value}
	for _, name := range s.names {
		field := s.fields[name]
		v, present := data[name]
		if !present {
			if opts.Partial {
				continue
			}
			v = datamodel.Absent
		}
		fail := field.Validate(v, inner)
		if fail == nil {
			continue
		}
		if opts.Fallback {
			if fail.HasFallback && !fail.Unresolved {
				// The field repaired itself (set splicing); commit its fallback.
				data[name] = fail.Fallback
			} else if fail.Unresolved {
				initial := field.InitialValue(inner.Source)
				retry := inner
				retry.Fallback = false
				if field.Validate(initial, retry) == nil {
					fail.Resolve(initial)
					data[name] = initial
				}
			}
		}
		agg.WithField(name, fail)
	}
	if agg.Empty() {
		return nil
	}
	agg.Message = "has invalid fields"
	agg.Code = datamodel.CodeInvalidType
	return agg
}

// ValidateJoint runs cross-field rules: the schema's own rules first, then a
// descent into composite fields flagged recursive. Invoked only after
// individual field validation has passed.
func (s *SchemaField) ValidateJoint(data map[string]any) *datamodel.Failure {
	for _, rule := range s.joint {
		if err := rule(data); err != nil {
			if fail, ok := datamodel.AsFailure(err); ok {
				return fail
			}
			return datamodel.NewFailure(datamodel.CodeJointRule, err.Error(), data)
		}
	}
	agg := &datamodel.Failure{InvalidValue: data}
	for _, name := range s.names {
		field := s.fields[name]
		if !field.recursive() {
			continue
		}
		child, ok := fieldAsJointValidator(field)
		if !ok {
			continue
		}
		if sub, ok := data[name].(map[string]any); ok {
			if fail := child.ValidateJoint(sub); fail != nil {
				agg.WithField(name, fail)
			}
		}
	}
	if agg.Empty() {
		return nil
	}
	agg.Message = "has invalid field combinations"
	agg.Code = datamodel.CodeJointRule
	return agg
}

type jointValidator interface {
	ValidateJoint(data map[string]any) *datamodel.Failure
}

func fieldAsJointValidator(f DataField) (jointValidator, bool) {
	jv, ok := f.(jointValidator)
	return jv, ok
}

// Initialize builds the live record. Fields may install Computed wrappers for
// derived values; readers resolve them through datamodel.Resolve.
func (s *SchemaField) Initialize(value any, model datamodel.Document) any {
	data, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(s.names))
	for _, name := range s.names {
		v, present := data[name]
		if !present {
			continue
		}
		out[name] = s.fields[name].Initialize(v, model)
	}
	return out
}

// ToObject serializes the live record back to a plain one, recursing through
// contained fields in declaration order.
func (s *SchemaField) ToObject(value any) any {
	data, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(s.names))
	for _, name := range s.names {
		v, present := data[name]
		if !present {
			continue
		}
		out[name] = s.fields[name].ToObject(datamodel.Resolve(v))
	}
	return out
}

// Apply delegates the change to the named fields present in the delta.
func (s *SchemaField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	cur, ok := value.(map[string]any)
	if !ok {
		return value, datamodel.ErrUnsupportedChange
	}
	d, ok := delta.(map[string]any)
	if !ok {
		return value, datamodel.ErrUnsupportedChange
	}
	out := make(map[string]any, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	for _, name := range s.names {
		dv, present := d[name]
		if !present {
			continue
		}
		applied, err := s.fields[name].Apply(mode, out[name], dv)
		if err != nil {
			return value, err
		}
		out[name] = applied
	}
	return out, nil
}

func (s *SchemaField) JSONSchema() *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(s.names))
	var required []string
	for _, name := range s.names {
		f := s.fields[name]
		props[name] = f.JSONSchema()
		if f.Options().Required {
			required = append(required, name)
		}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required, Description: s.opts.Hint}
}

func sortedMapKeys(m map[string]any) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
