package fields_test

import (
	"testing"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/fields"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberField_CleanCastsAndRounds(t *testing.T) {
	f := fields.NewNumber(fields.NumberOptions{
		FieldOptions: fields.FieldOptions{Required: true},
		Integer:      true,
		Min:          fields.Float(0),
		Max:          fields.Float(1),
	})

	// Cleaning casts and rounds but never clamps; range violations are left
	// for validation to report.
	assert.Equal(t, float64(0), f.Clean(0.4, datamodel.CleanOptions{}))
	assert.Equal(t, float64(2), f.Clean("2", datamodel.CleanOptions{}))
	assert.Equal(t, float64(-1), f.Clean(-1, datamodel.CleanOptions{}))

	require.Nil(t, f.Validate(float64(0), datamodel.ValidateOptions{}))
	fail := f.Validate(float64(2), datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeTooBig, fail.Code)
	fail = f.Validate(float64(-1), datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeTooSmall, fail.Code)
}

func TestNumberField_ValidateRules(t *testing.T) {
	cases := []struct {
		name string
		opts fields.NumberOptions
		in   float64
		code string
	}{
		{"integer", fields.NumberOptions{Integer: true}, 1.5, datamodel.CodeInvalidFormat},
		{"positive", fields.NumberOptions{Positive: true}, 0, datamodel.CodeTooSmall},
		{"step", fields.NumberOptions{Step: fields.Float(0.5)}, 0.3, datamodel.CodeInvalidFormat},
		{"choices", fields.NumberOptions{Choices: []float64{1, 2}}, 3, datamodel.CodeInvalidChoice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := fields.NewNumber(tc.opts)
			fail := f.Validate(tc.in, datamodel.ValidateOptions{})
			require.NotNil(t, fail)
			assert.Equal(t, tc.code, fail.Code)
		})
	}
}

func TestNumberField_ApplyModes(t *testing.T) {
	f := fields.NewNumber(fields.NumberOptions{})
	got, err := f.Apply(datamodel.ChangeAdd, float64(2), float64(3))
	require.NoError(t, err)
	assert.Equal(t, float64(5), got)
	got, err = f.Apply(datamodel.ChangeMultiply, float64(2), float64(3))
	require.NoError(t, err)
	assert.Equal(t, float64(6), got)
	got, err = f.Apply(datamodel.ChangeUpgrade, float64(2), float64(3))
	require.NoError(t, err)
	assert.Equal(t, float64(3), got)
	got, err = f.Apply(datamodel.ChangeDowngrade, float64(2), float64(3))
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)
	got, err = f.Apply(datamodel.ChangeOverride, float64(2), float64(9))
	require.NoError(t, err)
	assert.Equal(t, float64(9), got)
}

func TestStringField_CleanTrimsAndDefaults(t *testing.T) {
	f := fields.NewString(fields.StringOptions{})
	assert.Equal(t, "hi", f.Clean("  hi  ", datamodel.CleanOptions{}))
	// Absent resolves to the default empty-string initial.
	assert.Equal(t, "", f.Clean(datamodel.Absent, datamodel.CleanOptions{}))
	// Numbers cast to their decimal form.
	assert.Equal(t, "7", f.Clean(7, datamodel.CleanOptions{}))
}

func TestStringField_Rules(t *testing.T) {
	nonBlank := fields.NewString(fields.StringOptions{NonBlank: true})
	fail := nonBlank.Validate("", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeBlank, fail.Code)

	choices := fields.NewString(fields.StringOptions{Choices: []string{"a", "b"}})
	fail = choices.Validate("c", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeInvalidChoice, fail.Code)
	assert.Nil(t, choices.Validate("a", datamodel.ValidateOptions{}))
}

func TestBooleanField_CastAndApply(t *testing.T) {
	f := fields.NewBoolean(fields.FieldOptions{})
	assert.Equal(t, true, f.Clean("true", datamodel.CleanOptions{}))
	assert.Equal(t, false, f.Clean(0, datamodel.CleanOptions{}))
	assert.Equal(t, false, f.Clean(datamodel.Absent, datamodel.CleanOptions{}))

	// Add behaves as logical OR, Multiply as logical AND.
	got, err := f.Apply(datamodel.ChangeAdd, false, true)
	require.NoError(t, err)
	assert.Equal(t, true, got)
	got, err = f.Apply(datamodel.ChangeMultiply, true, false)
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestNullability(t *testing.T) {
	nullable := fields.NewNumber(fields.NumberOptions{FieldOptions: fields.FieldOptions{Nullable: true}})
	assert.Nil(t, nullable.Clean(nil, datamodel.CleanOptions{}))
	assert.Nil(t, nullable.Validate(nil, datamodel.ValidateOptions{}))

	strict := fields.NewNumber(fields.NumberOptions{FieldOptions: fields.FieldOptions{Required: true}})
	// Null on a non-nullable field is treated as absent and falls to the
	// initial; with no initial the requirement fires.
	fail := strict.Validate(datamodel.Absent, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeRequired, fail.Code)
	fail = strict.Validate(nil, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeNotNullable, fail.Code)
}

func TestColorField_RoundTrip(t *testing.T) {
	f := fields.NewColor(fields.FieldOptions{})
	cleaned := f.Clean("#FF8800", datamodel.CleanOptions{})
	assert.Equal(t, "#ff8800", cleaned)
	require.Nil(t, f.Validate(cleaned, datamodel.ValidateOptions{}))

	live := f.Initialize(cleaned.(string), nil)
	c, ok := live.(fields.Color)
	require.True(t, ok)
	assert.InDelta(t, 1.0, c.R, 0.01)
	assert.Equal(t, "#ff8800", f.ToObject(c))

	fail := f.Validate("not-a-color", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeInvalidFormat, fail.Code)
}

func TestAngleField_Normalizes(t *testing.T) {
	f := fields.NewAngle(fields.FieldOptions{})
	assert.Equal(t, float64(30), f.Clean(float64(390), datamodel.CleanOptions{}))
	assert.Equal(t, float64(330), f.Clean(float64(-30), datamodel.CleanOptions{}))
}

func TestFilePathField_Extensions(t *testing.T) {
	f := fields.NewFilePath(fields.FilePathOptions{Categories: []fields.FileCategory{fields.FileImage}})
	assert.Nil(t, f.Validate("tokens/hero.webp", datamodel.ValidateOptions{}))
	fail := f.Validate("tokens/hero.exe", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeInvalidFormat, fail.Code)
	// File paths are nullable by declaration.
	assert.Nil(t, f.Validate(nil, datamodel.ValidateOptions{}))
}

func TestDocumentIdField(t *testing.T) {
	f := fields.NewDocumentId()
	id := datamodel.GenerateID()
	assert.Nil(t, f.Validate(id, datamodel.ValidateOptions{}))
	fail := f.Validate("nope", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeInvalidID, fail.Code)
}

func TestDocumentUUIDField(t *testing.T) {
	f := fields.NewDocumentUUID(fields.DocumentUUIDOptions{Type: "Item"})
	actorID, itemID := datamodel.GenerateID(), datamodel.GenerateID()
	uuid := "Actor." + actorID + ".Item." + itemID
	assert.Nil(t, f.Validate(uuid, datamodel.ValidateOptions{}))

	fail := f.Validate("Actor."+actorID, datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeInvalidUUID, fail.Code)

	fail = f.Validate("Actor.bad-id", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
}

func TestJSONField_ParseRoundTrip(t *testing.T) {
	f := fields.NewJSON(fields.FieldOptions{})
	cleaned := f.Clean(map[string]any{"k": "v"}, datamodel.CleanOptions{})
	s, ok := cleaned.(string)
	require.True(t, ok)
	require.Nil(t, f.Validate(s, datamodel.ValidateOptions{}))

	live := f.Initialize(s, nil)
	m, ok := live.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v", m["k"])

	fail := f.Validate("{broken", datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeInvalidFormat, fail.Code)
}

func TestCustomValidatorRunsLast(t *testing.T) {
	f := fields.NewNumber(fields.NumberOptions{
		FieldOptions: fields.FieldOptions{
			Validate: func(v any) error {
				if v.(float64) == 13 {
					return datamodel.NewFailure(datamodel.CodeCustomRule, "13 is not allowed", v)
				}
				return nil
			},
		},
	})
	assert.Nil(t, f.Validate(float64(7), datamodel.ValidateOptions{}))
	fail := f.Validate(float64(13), datamodel.ValidateOptions{})
	require.NotNil(t, fail)
	assert.Equal(t, datamodel.CodeCustomRule, fail.Code)
}
