package fields_test

import (
	"testing"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/fields"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundedNumbers() *fields.ArrayField {
	return fields.NewArray(fields.NewNumber(fields.NumberOptions{
		FieldOptions: fields.FieldOptions{Required: true},
		Integer:      true,
		Min:          fields.Float(0),
		Max:          fields.Float(1),
	}), fields.ArrayOptions{})
}

// TestArrayField_CleanScenario reproduces the canonical cast-only cleaning:
// [0.4, "2", -1] becomes [0, 2, -1] and the range violations surface in
// validation, not cleaning.
func TestArrayField_CleanScenario(t *testing.T) {
	f := boundedNumbers()
	cleaned := f.Clean([]any{0.4, "2", -1}, datamodel.CleanOptions{})
	assert.Equal(t, []any{float64(0), float64(2), float64(-1)}, cleaned)

	fail := f.Validate(cleaned, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	require.Len(t, fail.Elements, 2)
	assert.Equal(t, 1, fail.Elements[0].Index)
	assert.Equal(t, 2, fail.Elements[1].Index)
}

// TestArrayField_WholeFieldRejection checks that fallback never yields a
// partial array: one bad element leaves the whole field unresolved.
func TestArrayField_WholeFieldRejection(t *testing.T) {
	f := boundedNumbers()
	fail := f.Validate([]any{float64(0), float64(7)}, datamodel.ValidateOptions{Fallback: true})
	require.NotNil(t, fail)
	assert.True(t, fail.Unresolved)
	assert.False(t, fail.HasFallback)
}

func TestArrayField_CastShapes(t *testing.T) {
	f := fields.NewArray(fields.NewNumber(fields.NumberOptions{}), fields.ArrayOptions{})

	// A single value wraps into a one-element array.
	assert.Equal(t, []any{float64(3)}, f.Clean(3, datamodel.CleanOptions{}))

	// A sparse index map flattens in numeric key order.
	sparse := map[string]any{"2": 30, "0": 10, "10": 40}
	assert.Equal(t, []any{float64(10), float64(30), float64(40)}, f.Clean(sparse, datamodel.CleanOptions{}))

	// A live set flattens to its values.
	s := fields.NewSet(float64(1), float64(2))
	assert.Equal(t, []any{float64(1), float64(2)}, f.Clean(s, datamodel.CleanOptions{}))
}

func TestArrayField_LengthBounds(t *testing.T) {
	f := fields.NewArray(fields.NewNumber(fields.NumberOptions{}), fields.ArrayOptions{MinLen: 2, MaxLen: 3})
	fail := f.Validate([]any{float64(1)}, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeTooShort, fail.Code)
	fail = f.Validate([]any{float64(1), float64(2), float64(3), float64(4)}, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeTooLong, fail.Code)
	assert.Nil(t, f.Validate([]any{float64(1), float64(2)}, datamodel.ValidateOptions{}))
}

// Length bounds export under the array keywords, not the numeric ones.
func TestArrayField_JSONSchemaLengthBounds(t *testing.T) {
	f := fields.NewArray(fields.NewNumber(fields.NumberOptions{}), fields.ArrayOptions{MinLen: 2, MaxLen: 3})
	s := f.JSONSchema()
	require.NotNil(t, s.MinItems)
	assert.Equal(t, 2, *s.MinItems)
	require.NotNil(t, s.MaxItems)
	assert.Equal(t, 3, *s.MaxItems)
	assert.Nil(t, s.Minimum)

	unbounded := fields.NewArray(fields.NewNumber(fields.NumberOptions{}), fields.ArrayOptions{})
	assert.Nil(t, unbounded.JSONSchema().MinItems)
	assert.Nil(t, unbounded.JSONSchema().MaxItems)
}

func TestArrayField_ApplyAddAppends(t *testing.T) {
	f := fields.NewArray(fields.NewNumber(fields.NumberOptions{}), fields.ArrayOptions{})
	got, err := f.Apply(datamodel.ChangeAdd, []any{float64(1)}, []any{float64(2), float64(3)})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, got)
}

// TestSetField_SpliceKeepsValidElements checks the set policy: with fallback,
// invalid elements are dropped and the survivors keep their relative order.
func TestSetField_SpliceKeepsValidElements(t *testing.T) {
	f := fields.NewSetField(fields.NewNumber(fields.NumberOptions{
		Min: fields.Float(0), Max: fields.Float(1),
	}), fields.ArrayOptions{})

	in := []any{float64(0), float64(7), float64(1), float64(-2)}
	fail := f.Validate(in, datamodel.ValidateOptions{Fallback: true})
	require.NotNil(t, fail)
	assert.False(t, fail.Unresolved)
	require.True(t, fail.HasFallback)
	assert.Equal(t, []any{float64(0), float64(1)}, fail.Fallback)
}

// Without fallback the set behaves like the array: unresolved rejection.
func TestSetField_NoFallbackRejects(t *testing.T) {
	f := fields.NewSetField(fields.NewNumber(fields.NumberOptions{
		Min: fields.Float(0),
	}), fields.ArrayOptions{})
	fail := f.Validate([]any{float64(-1)}, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.True(t, fail.Unresolved)
}

func TestSetField_CleanDeduplicates(t *testing.T) {
	f := fields.NewSetField(fields.NewString(fields.StringOptions{}), fields.ArrayOptions{})
	cleaned := f.Clean([]any{"a", "b", "a"}, datamodel.CleanOptions{})
	assert.Equal(t, []any{"a", "b"}, cleaned)
}

func TestSetField_InitializeProducesSet(t *testing.T) {
	f := fields.NewSetField(fields.NewString(fields.StringOptions{}), fields.ArrayOptions{})
	live := f.Initialize([]any{"x", "y", "x"}, nil)
	s, ok := live.(*fields.Set)
	require.True(t, ok)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("x"))
	assert.Equal(t, []any{"x", "y"}, f.ToObject(s))
}

func TestSet_Operations(t *testing.T) {
	s := fields.NewSet("a", "b")
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("c"))
	assert.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	assert.Equal(t, []any{"a", "c"}, s.Values())
}
