package fields

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// ---- BooleanField ----

// BooleanField stores a true/false value. Change semantics: Add is logical OR,
// Multiply is logical AND, Upgrade/Downgrade behave like OR/AND.
type BooleanField struct {
	BaseField
}

// NewBoolean builds a boolean field. The initial defaults to false for
// non-nullable fields with no declared initial.
func NewBoolean(opts FieldOptions) *BooleanField {
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = false
	}
	return &BooleanField{newBase(opts)}
}

func castBool(v any) any {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true
		case "false":
			return false
		}
		return v
	default:
		if n, ok := toFloat(v); ok {
			return n != 0
		}
		return v
	}
}

func (f *BooleanField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castBool, nil)
}

func (f *BooleanField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		if _, ok := v.(bool); !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a boolean", v)
		}
		return nil
	})
}

func (f *BooleanField) Initialize(value any, _ datamodel.Document) any { return value }
func (f *BooleanField) ToObject(value any) any                         { return value }

func (f *BooleanField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	cur, _ := value.(bool)
	d, ok := delta.(bool)
	if !ok {
		return value, datamodel.ErrUnsupportedChange
	}
	switch mode {
	case datamodel.ChangeAdd, datamodel.ChangeUpgrade:
		return cur || d, nil
	case datamodel.ChangeMultiply, datamodel.ChangeDowngrade:
		return cur && d, nil
	default:
		return f.BaseField.Apply(mode, value, delta)
	}
}

func (f *BooleanField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: f.opts.Hint}
}

// ---- NumberField ----

// NumberOptions extend the shared options with numeric constraints.
type NumberOptions struct {
	FieldOptions
	Min, Max *float64
	// Step constrains the value to multiples of the step above Min (or zero).
	Step *float64
	// Integer rounds during cleaning and rejects non-integers.
	Integer bool
	// Positive rejects values <= 0.
	Positive bool
	Choices  []float64
}

// NumberField stores a float64. Cleaning casts and rounds; range clamping is
// deliberately left to validation so out-of-range input surfaces as a failure.
type NumberField struct {
	BaseField
	num NumberOptions
}

// NewNumber builds a numeric field.
func NewNumber(opts NumberOptions) *NumberField {
	return &NumberField{newBase(opts.FieldOptions), opts}
}

// Float returns a pointer for NumberOptions bounds.
func Float(v float64) *float64 { return &v }

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (f *NumberField) castNumber(v any) any {
	if n, ok := toFloat(v); ok {
		return n
	}
	return v
}

func (f *NumberField) cleanNumber(v any, _ datamodel.CleanOptions) any {
	n, ok := v.(float64)
	if !ok {
		return v
	}
	if f.num.Integer {
		n = math.Round(n)
	}
	return n
}

func (f *NumberField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, f.castNumber, f.cleanNumber)
}

func (f *NumberField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateNumber)
}

func (f *NumberField) validateNumber(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
	n, ok := v.(float64)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a number", v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a finite number", v)
	}
	if f.num.Integer && n != math.Trunc(n) {
		return datamodel.NewFailure(datamodel.CodeInvalidFormat, "must be an integer", v)
	}
	if f.num.Positive && n <= 0 {
		return datamodel.NewFailure(datamodel.CodeTooSmall, "must be positive", v)
	}
	if f.num.Min != nil && n < *f.num.Min {
		return datamodel.NewFailure(datamodel.CodeTooSmall, fmt.Sprintf("must be at least %v", *f.num.Min), v)
	}
	if f.num.Max != nil && n > *f.num.Max {
		return datamodel.NewFailure(datamodel.CodeTooBig, fmt.Sprintf("must be at most %v", *f.num.Max), v)
	}
	if f.num.Step != nil {
		base := 0.0
		if f.num.Min != nil {
			base = *f.num.Min
		}
		if r := math.Mod(n-base, *f.num.Step); math.Abs(r) > 1e-9 && math.Abs(r-*f.num.Step) > 1e-9 {
			return datamodel.NewFailure(datamodel.CodeInvalidFormat, fmt.Sprintf("must be a multiple of %v", *f.num.Step), v)
		}
	}
	if len(f.num.Choices) > 0 {
		for _, c := range f.num.Choices {
			if n == c {
				return nil
			}
		}
		return datamodel.NewFailure(datamodel.CodeInvalidChoice, "is not a valid choice", v)
	}
	return nil
}

func (f *NumberField) Initialize(value any, _ datamodel.Document) any { return value }
func (f *NumberField) ToObject(value any) any                         { return value }

func (f *NumberField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	cur, _ := toFloat(value)
	d, ok := toFloat(delta)
	if !ok {
		return value, datamodel.ErrUnsupportedChange
	}
	switch mode {
	case datamodel.ChangeAdd:
		return cur + d, nil
	case datamodel.ChangeMultiply:
		return cur * d, nil
	case datamodel.ChangeUpgrade:
		return math.Max(cur, d), nil
	case datamodel.ChangeDowngrade:
		return math.Min(cur, d), nil
	default:
		return f.BaseField.Apply(mode, value, delta)
	}
}

func (f *NumberField) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "number", Description: f.opts.Hint}
	if f.num.Integer {
		s.Type = "integer"
	}
	s.Minimum = f.num.Min
	s.Maximum = f.num.Max
	if len(f.num.Choices) > 0 {
		for _, c := range f.num.Choices {
			s.Enum = append(s.Enum, c)
		}
	}
	return s
}

// ---- StringField ----

// StringOptions extend the shared options with string constraints. The zero
// value admits blank strings and trims surrounding whitespace.
type StringOptions struct {
	FieldOptions
	// NonBlank rejects the empty string.
	NonBlank bool
	// NoTrim keeps surrounding whitespace during cleaning.
	NoTrim  bool
	Choices []string
	Pattern *regexp.Regexp
	MinLen  int
	MaxLen  int
}

// StringField stores a string. Change semantics: Add concatenates; Multiply,
// Upgrade and Downgrade are undefined.
type StringField struct {
	BaseField
	str StringOptions
}

// NewString builds a string field. Non-nullable fields with no declared
// initial default to the empty string when blank values are admitted.
func NewString(opts StringOptions) *StringField {
	if opts.Initial == nil && !opts.Nullable && !opts.NonBlank && len(opts.Choices) == 0 {
		opts.Initial = ""
	}
	return &StringField{newBase(opts.FieldOptions), opts}
}

func castString(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprintf("%v", t)
	default:
		return v
	}
}

func (f *StringField) cleanString(v any, _ datamodel.CleanOptions) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if !f.str.NoTrim {
		s = strings.TrimSpace(s)
	}
	return s
}

func (f *StringField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castString, f.cleanString)
}

func (f *StringField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateString)
}

func (f *StringField) validateString(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
	s, ok := v.(string)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a string", v)
	}
	if s == "" {
		if f.str.NonBlank {
			return datamodel.NewFailure(datamodel.CodeBlank, "may not be blank", v)
		}
		return nil
	}
	if f.str.MinLen > 0 && len(s) < f.str.MinLen {
		return datamodel.NewFailure(datamodel.CodeTooShort, fmt.Sprintf("must be at least %d characters", f.str.MinLen), v)
	}
	if f.str.MaxLen > 0 && len(s) > f.str.MaxLen {
		return datamodel.NewFailure(datamodel.CodeTooLong, fmt.Sprintf("must be at most %d characters", f.str.MaxLen), v)
	}
	if len(f.str.Choices) > 0 {
		found := false
		for _, c := range f.str.Choices {
			if s == c {
				found = true
				break
			}
		}
		if !found {
			return datamodel.NewFailure(datamodel.CodeInvalidChoice, "is not a valid choice", v)
		}
	}
	if f.str.Pattern != nil && !f.str.Pattern.MatchString(s) {
		return datamodel.NewFailure(datamodel.CodePattern, "does not match the required pattern", v)
	}
	return nil
}

func (f *StringField) Initialize(value any, _ datamodel.Document) any { return value }
func (f *StringField) ToObject(value any) any                         { return value }

func (f *StringField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	if mode == datamodel.ChangeAdd {
		cur, _ := value.(string)
		d, ok := delta.(string)
		if !ok {
			return value, datamodel.ErrUnsupportedChange
		}
		return cur + d, nil
	}
	return f.BaseField.Apply(mode, value, delta)
}

func (f *StringField) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Description: f.opts.Hint}
	if len(f.str.Choices) > 0 {
		for _, c := range f.str.Choices {
			s.Enum = append(s.Enum, c)
		}
	}
	if f.str.Pattern != nil {
		s.Pattern = f.str.Pattern.String()
	}
	return s
}

// ---- ObjectField ----

// ObjectField stores an arbitrary plain object, deep-cloned on every boundary
// so callers never alias engine state.
type ObjectField struct {
	BaseField
}

// NewObject builds an object field defaulting to an empty object.
func NewObject(opts FieldOptions) *ObjectField {
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = func(map[string]any) any { return map[string]any{} }
	}
	return &ObjectField{newBase(opts)}
}

func castObject(v any) any {
	if m, ok := v.(map[string]any); ok {
		return datamodel.DeepClone(m)
	}
	return v
}

func (f *ObjectField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castObject, nil)
}

func (f *ObjectField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		if _, ok := v.(map[string]any); !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an object", v)
		}
		return nil
	})
}

func (f *ObjectField) Initialize(value any, _ datamodel.Document) any {
	return datamodel.DeepClone(value)
}

func (f *ObjectField) ToObject(value any) any { return datamodel.DeepClone(value) }

func (f *ObjectField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Description: f.opts.Hint}
}

// ---- AnyField ----

// AnyField admits any value unchanged.
type AnyField struct {
	BaseField
}

// NewAny builds a field with no type rule.
func NewAny(opts FieldOptions) *AnyField { return &AnyField{newBase(opts)} }

func (f *AnyField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, nil, nil)
}

func (f *AnyField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, nil)
}

func (f *AnyField) Initialize(value any, _ datamodel.Document) any { return value }
func (f *AnyField) ToObject(value any) any                         { return value }
func (f *AnyField) JSONSchema() *jsonschema.Schema                 { return &jsonschema.Schema{} }

// ---- JSONField ----

// JSONField stores a string that must itself contain valid JSON. The live
// representation is the parsed document; ToObject re-serializes it.
type JSONField struct {
	BaseField
}

// NewJSON builds a JSON-payload string field.
func NewJSON(opts FieldOptions) *JSONField { return &JSONField{newBase(opts)} }

func (f *JSONField) castJSON(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	// Non-string payloads are serialized so round-tripping stays possible.
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return v
}

func (f *JSONField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, f.castJSON, nil)
}

func (f *JSONField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		s, ok := v.(string)
		if !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a string", v)
		}
		if !json.Valid([]byte(s)) {
			return datamodel.NewFailure(datamodel.CodeInvalidFormat, "must be a serialized JSON string", v)
		}
		return nil
	})
}

func (f *JSONField) Initialize(value any, _ datamodel.Document) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return value
	}
	return out
}

func (f *JSONField) ToObject(value any) any {
	if _, ok := value.(string); ok {
		return value
	}
	b, err := json.Marshal(value)
	if err != nil {
		return value
	}
	return string(b)
}

func (f *JSONField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: f.opts.Hint, Format: "json"}
}
