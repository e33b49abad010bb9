package fields_test

import (
	"testing"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/fields"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry is a minimal in-memory TypeModelRegistry for field tests.
type fakeRegistry struct {
	schemas   map[string]*fields.SchemaField
	templates map[string]map[string]any
}

func (r *fakeRegistry) key(doc, sub string) string { return doc + "." + sub }

func (r *fakeRegistry) Resolve(doc, sub string) (*fields.SchemaField, bool) {
	s, ok := r.schemas[r.key(doc, sub)]
	return s, ok
}

func (r *fakeRegistry) Template(doc, sub string) (map[string]any, bool) {
	tmpl, ok := r.templates[r.key(doc, sub)]
	return tmpl, ok
}

func (r *fakeRegistry) Provider(doc, sub string) datamodel.Provenance {
	if _, ok := r.schemas[r.key(doc, sub)]; ok {
		return datamodel.ProvenanceSystem
	}
	if _, ok := r.templates[r.key(doc, sub)]; ok {
		return datamodel.ProvenanceModule
	}
	return datamodel.ProvenanceUnknown
}

func characterSchema() *fields.SchemaField {
	return fields.Schema().
		Field("hp", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(10)},
			Integer:      true,
			Min:          fields.Float(0),
		})).
		Field("level", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(1)},
			Integer:      true,
			Positive:     true,
		})).
		Build()
}

func TestTypeDataField_ModelledSubtype(t *testing.T) {
	reg := &fakeRegistry{
		schemas: map[string]*fields.SchemaField{"Actor.character": characterSchema()},
	}
	f := fields.NewTypeData("Actor", reg, fields.FieldOptions{Required: true})

	source := map[string]any{"type": "character"}
	cleaned, ok := f.Clean(map[string]any{"hp": "5"}, datamodel.CleanOptions{Source: source}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), cleaned["hp"])
	assert.Equal(t, float64(1), cleaned["level"], "defaults come from the resolved schema")

	fail := f.Validate(map[string]any{"hp": float64(-1), "level": float64(1)}, datamodel.ValidateOptions{Source: source})
	require.NotNil(t, fail)
	assert.Contains(t, fail.Fields, "hp")
}

// TestTypeDataField_TemplateFallback checks that an unregistered schema falls
// back to a deep clone of the template rather than failing validation.
func TestTypeDataField_TemplateFallback(t *testing.T) {
	tmpl := map[string]any{"cargo": float64(0), "crew": map[string]any{"max": float64(4)}}
	reg := &fakeRegistry{
		templates: map[string]map[string]any{"Actor.vehicle": tmpl},
	}
	f := fields.NewTypeData("Actor", reg, fields.FieldOptions{Required: true})
	source := map[string]any{"type": "vehicle"}

	cleaned, ok := f.Clean(map[string]any{"cargo": float64(7)}, datamodel.CleanOptions{Source: source}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), cleaned["cargo"])
	assert.Equal(t, float64(4), cleaned["crew"].(map[string]any)["max"])

	// The template itself must never be aliased.
	cleaned["crew"].(map[string]any)["max"] = float64(99)
	assert.Equal(t, float64(4), tmpl["crew"].(map[string]any)["max"])

	// Unmodelled payloads validate as-is.
	assert.Nil(t, f.Validate(cleaned, datamodel.ValidateOptions{Source: source}))
}

func TestTypeDataField_UnknownSubtypePassesThrough(t *testing.T) {
	reg := &fakeRegistry{}
	f := fields.NewTypeData("Actor", reg, fields.FieldOptions{Required: true})
	source := map[string]any{"type": "mystery"}

	payload := map[string]any{"anything": true}
	cleaned, ok := f.Clean(payload, datamodel.CleanOptions{Source: source}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, payload, cleaned)
	assert.Nil(t, f.Validate(cleaned, datamodel.ValidateOptions{Source: source}))
}

func TestTypeDataField_Provider(t *testing.T) {
	reg := &fakeRegistry{
		schemas:   map[string]*fields.SchemaField{"Actor.character": characterSchema()},
		templates: map[string]map[string]any{"Actor.vehicle": {}},
	}
	f := fields.NewTypeData("Actor", reg, fields.FieldOptions{})

	assert.Equal(t, datamodel.ProvenanceSystem, f.GetModelProvider(map[string]any{"type": "character"}))
	assert.Equal(t, datamodel.ProvenanceModule, f.GetModelProvider(map[string]any{"type": "vehicle"}))
	assert.Equal(t, datamodel.ProvenanceUnknown, f.GetModelProvider(map[string]any{"type": "nope"}))
}

func TestTypeDataField_DefaultInitial(t *testing.T) {
	f := fields.NewTypeData("Actor", nil, fields.FieldOptions{})
	init := f.InitialValue(nil)
	assert.Equal(t, map[string]any{}, init)
}
