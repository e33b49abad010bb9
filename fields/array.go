package fields

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// ArrayOptions extend the shared options with length constraints. MaxLen 0
// means unbounded.
type ArrayOptions struct {
	FieldOptions
	MinLen int
	MaxLen int
}

// ArrayField stores an ordered sequence whose elements all satisfy one inner
// field. Element validation is all-or-nothing: a single bad element rejects
// the whole array, and fallback replaces the whole array with its initial.
// Change semantics: Add appends the delta elements.
type ArrayField struct {
	BaseField
	element DataField
	arr     ArrayOptions
}

// NewArray declares an array of element. A nil Initial defaults to a fresh
// empty slice per record.
func NewArray(element DataField, opts ArrayOptions) *ArrayField {
	if element == nil {
		panic("fields: array element field must not be nil")
	}
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = func(map[string]any) any { return []any{} }
	}
	return &ArrayField{BaseField: newBase(opts.FieldOptions), element: element, arr: opts}
}

// Element returns the inner element field.
func (f *ArrayField) Element() DataField { return f.element }

// castArray coerces array-like inputs to []any: slices of any element type, a
// live Set, or a sparse index map whose keys are all decimal indices (ordered
// numerically). Any other value wraps into a single-element array.
func castArray(v any) any {
	switch t := v.(type) {
	case []any:
		return t
	case *Set:
		return t.Values()
	case map[string]any:
		if vals, ok := sparseIndexValues(t); ok {
			return vals
		}
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// sparseIndexValues interprets {"0": a, "2": b} as [a, b]. Every key must be a
// non-negative decimal integer or the map is not index-shaped.
func sparseIndexValues(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return []any{}, true
	}
	idx := make([]int, 0, len(m))
	byIdx := make(map[int]any, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			return nil, false
		}
		idx = append(idx, i)
		byIdx[i] = v
	}
	sort.Ints(idx)
	out := make([]any, 0, len(idx))
	for _, i := range idx {
		out = append(out, byIdx[i])
	}
	return out, true
}

func (f *ArrayField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castArray, f.cleanElements)
}

// cleanElements rebuilds the slice, cleaning each element. Cleaning always
// replaces the stored array wholesale; there is no partial element merge.
func (f *ArrayField) cleanElements(value any, opts datamodel.CleanOptions) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	elemOpts := opts
	elemOpts.Partial = false
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = f.element.Clean(v, elemOpts)
	}
	return out
}

func (f *ArrayField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateType)
}

func (f *ArrayField) validateType(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	arr, ok := value.([]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be an array", value)
	}
	if fail := f.validateLength(len(arr), value); fail != nil {
		return fail
	}
	return f.validateElements(arr, opts)
}

func (f *ArrayField) validateLength(n int, value any) *datamodel.Failure {
	if n < f.arr.MinLen {
		return datamodel.NewFailure(datamodel.CodeTooShort, fmt.Sprintf("must contain at least %d elements", f.arr.MinLen), value)
	}
	if f.arr.MaxLen > 0 && n > f.arr.MaxLen {
		return datamodel.NewFailure(datamodel.CodeTooLong, fmt.Sprintf("must contain at most %d elements", f.arr.MaxLen), value)
	}
	return nil
}

// validateElements rejects the whole array when any element fails. The field
// never repairs individual elements; fallback resolution happens one level up
// by replacing the entire value.
func (f *ArrayField) validateElements(arr []any, opts datamodel.ValidateOptions) *datamodel.Failure {
	elemOpts := opts
	elemOpts.Partial = false
	elemOpts.Fallback = false
	agg := &datamodel.Failure{InvalidValue: arr}
	for i, v := range arr {
		if fail := f.element.Validate(v, elemOpts); fail != nil {
			agg.WithElement(i, elementID(v), fail)
		}
	}
	if agg.Empty() {
		return nil
	}
	agg.Code = datamodel.CodeElementInvalid
	agg.Message = "has invalid elements"
	return agg
}

func elementID(v any) string {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["_id"].(string); ok {
			return id
		}
	}
	return ""
}

func (f *ArrayField) Initialize(value any, model datamodel.Document) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = f.element.Initialize(v, model)
	}
	return out
}

func (f *ArrayField) ToObject(value any) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = f.element.ToObject(datamodel.Resolve(v))
	}
	return out
}

func (f *ArrayField) Apply(mode datamodel.ChangeMode, value, delta any) (any, error) {
	if mode != datamodel.ChangeAdd {
		return f.BaseField.Apply(mode, value, delta)
	}
	cur, ok := value.([]any)
	if !ok {
		return value, datamodel.ErrUnsupportedChange
	}
	add, ok := castArray(delta).([]any)
	if !ok {
		return value, datamodel.ErrUnsupportedChange
	}
	out := make([]any, 0, len(cur)+len(add))
	out = append(out, cur...)
	out = append(out, add...)
	return out, nil
}

func (f *ArrayField) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "array", Items: f.element.JSONSchema(), Description: f.opts.Hint}
	if f.arr.MinLen > 0 {
		n := f.arr.MinLen
		s.MinItems = &n
	}
	if f.arr.MaxLen > 0 {
		n := f.arr.MaxLen
		s.MaxItems = &n
	}
	return s
}

// ---- set ----

// Set is an insertion-ordered collection of unique values. Uniqueness uses Go
// equality; values that are not comparable (maps, slices) are kept without
// deduplication.
type Set struct {
	order []any
	seen  map[any]struct{}
}

// NewSet builds a set from values, preserving first-occurrence order.
func NewSet(values ...any) *Set {
	s := &Set{seen: map[any]struct{}{}}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v unless already present. Returns true when the set grew.
func (s *Set) Add(v any) bool {
	if !comparableValue(v) {
		s.order = append(s.order, v)
		return true
	}
	if _, dup := s.seen[v]; dup {
		return false
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Has reports membership for comparable values.
func (s *Set) Has(v any) bool {
	if !comparableValue(v) {
		return false
	}
	_, ok := s.seen[v]
	return ok
}

// Delete removes v. Returns true when present.
func (s *Set) Delete(v any) bool {
	if !comparableValue(v) {
		return false
	}
	if _, ok := s.seen[v]; !ok {
		return false
	}
	delete(s.seen, v)
	for i, cur := range s.order {
		if cur == v {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the element count.
func (s *Set) Len() int { return len(s.order) }

// Values returns elements in insertion order.
func (s *Set) Values() []any {
	out := make([]any, len(s.order))
	copy(out, s.order)
	return out
}

func comparableValue(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}

// SetField stores an unordered unique collection, serialized as an array.
// Unlike ArrayField, element validation is per-element: with fallback enabled
// the invalid elements are spliced out and the remainder survives.
type SetField struct {
	ArrayField
}

// NewSetField declares a set of element values.
func NewSetField(element DataField, opts ArrayOptions) *SetField {
	return &SetField{ArrayField: *NewArray(element, opts)}
}

// Clean additionally drops duplicate values so cleaned data is set-shaped
// before validation sees it.
func (f *SetField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castArray, f.cleanSetElements)
}

func (f *SetField) cleanSetElements(value any, opts datamodel.CleanOptions) any {
	cleaned := f.ArrayField.cleanElements(value, opts)
	arr, ok := cleaned.([]any)
	if !ok {
		return cleaned
	}
	return NewSet(arr...).Values()
}

func (f *SetField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, f.validateType)
}

func (f *SetField) validateType(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	arr, ok := value.([]any)
	if !ok {
		return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a set of values", value)
	}
	if fail := f.validateLength(len(arr), value); fail != nil {
		return fail
	}
	return f.validateSetElements(arr, opts)
}

// validateSetElements walks the elements from the back so splice indices stay
// stable, and in fallback mode resolves the failure to the surviving slice
// instead of discarding the whole set.
func (f *SetField) validateSetElements(arr []any, opts datamodel.ValidateOptions) *datamodel.Failure {
	elemOpts := opts
	elemOpts.Partial = false
	elemOpts.Fallback = false
	agg := &datamodel.Failure{InvalidValue: arr}
	kept := make([]any, len(arr))
	copy(kept, arr)
	for i := len(arr) - 1; i >= 0; i-- {
		fail := f.element.Validate(arr[i], elemOpts)
		if fail == nil {
			continue
		}
		agg.WithElement(i, elementID(arr[i]), fail)
		if opts.Fallback {
			kept = append(kept[:i], kept[i+1:]...)
		}
	}
	if agg.Empty() {
		return nil
	}
	agg.Code = datamodel.CodeElementInvalid
	agg.Message = "has invalid elements"
	if opts.Fallback {
		agg.Resolve(kept)
	}
	return agg
}

// Initialize materializes the live Set, preserving order and uniqueness.
func (f *SetField) Initialize(value any, model datamodel.Document) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}
	s := NewSet()
	for _, v := range arr {
		s.Add(f.element.Initialize(v, model))
	}
	return s
}

// ToObject serializes the live Set back to a plain slice.
func (f *SetField) ToObject(value any) any {
	switch t := value.(type) {
	case *Set:
		vals := t.Values()
		out := make([]any, len(vals))
		for i, v := range vals {
			out[i] = f.element.ToObject(datamodel.Resolve(v))
		}
		return out
	case []any:
		return f.ArrayField.ToObject(t)
	default:
		return value
	}
}

func (f *SetField) JSONSchema() *jsonschema.Schema {
	s := f.ArrayField.JSONSchema()
	s.Description = f.opts.Hint
	return s
}
