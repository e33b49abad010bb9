package collection_test

import (
	"fmt"
	"testing"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDoc is a minimal Document backed directly by its record.
type stubDoc struct {
	record map[string]any
	parent datamodel.Document
}

func (d *stubDoc) ID() string                 { id, _ := d.record["_id"].(string); return id }
func (d *stubDoc) DocumentName() string       { return "Widget" }
func (d *stubDoc) Parent() datamodel.Document { return d.parent }
func (d *stubDoc) Source() map[string]any     { return d.record }
func (d *stubDoc) ToObject(source bool) map[string]any {
	return datamodel.DeepClone(d.record).(map[string]any)
}

// stubModel accepts every record carrying a valid id and rejects the rest.
type stubModel struct{}

func (stubModel) DocumentName() string { return "Widget" }

func (stubModel) CleanRecord(record map[string]any, _ datamodel.CleanOptions) map[string]any {
	return datamodel.DeepClone(record).(map[string]any)
}

func (stubModel) ValidateRecord(record map[string]any, _ datamodel.ValidateOptions) *datamodel.Failure {
	if id, _ := record["_id"].(string); !datamodel.IsValidID(id) {
		return datamodel.NewFailure(datamodel.CodeInvalidID, "is not a valid document id", record)
	}
	return nil
}

func (stubModel) New(source map[string]any, parent datamodel.Document) (datamodel.Document, error) {
	if id, _ := source["_id"].(string); !datamodel.IsValidID(id) {
		return nil, fmt.Errorf("invalid widget id %q", source["_id"])
	}
	return &stubDoc{record: source, parent: parent}, nil
}

func record(id string, extra map[string]any) map[string]any {
	r := map[string]any{"_id": id}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func TestEmbeddedCollection_InitializeIdempotent(t *testing.T) {
	a, b := datamodel.GenerateID(), datamodel.GenerateID()
	c := collection.New("widgets", nil, stubModel{}, []map[string]any{
		record(a, nil), record(b, nil),
	})
	c.Initialize(false)
	require.Equal(t, 2, c.Size())

	// Repeat initialization must not duplicate entries.
	c.Initialize(false)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, []string{a, b}, c.IDs())

	c.Initialize(true)
	assert.Equal(t, 2, c.Size())
}

func TestEmbeddedCollection_InvalidSideChannel(t *testing.T) {
	a := datamodel.GenerateID()
	c := collection.New("widgets", nil, stubModel{}, []map[string]any{
		record(a, nil), record("bad id", nil),
	})
	c.Initialize(false)

	assert.Equal(t, 1, c.Size())
	invalid, ok := c.Invalid("bad id")
	require.True(t, ok)
	assert.Equal(t, "bad id", invalid["_id"])
	// Invalid records stay in the source so a round trip never loses data.
	assert.Len(t, c.SourceRecords(), 2)
}

func TestEmbeddedCollection_SetAndDelete(t *testing.T) {
	a := datamodel.GenerateID()
	c := collection.New("widgets", nil, stubModel{}, []map[string]any{record(a, nil)})
	c.Initialize(false)

	b := datamodel.GenerateID()
	doc, err := stubModel{}.New(record(b, map[string]any{"n": float64(1)}), nil)
	require.NoError(t, err)
	c.Set(doc)
	assert.Equal(t, 2, c.Size())
	assert.True(t, c.Contains(b))
	assert.Len(t, c.SourceRecords(), 2)

	c.Delete(a)
	assert.False(t, c.Contains(a))
	assert.Len(t, c.SourceRecords(), 1)

	_, err = c.GetStrict(a)
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func TestEmbeddedCollection_ToObject(t *testing.T) {
	a := datamodel.GenerateID()
	c := collection.New("widgets", nil, stubModel{}, []map[string]any{record(a, map[string]any{"n": float64(2)})})
	c.Initialize(false)

	out := c.ToObject(true)
	require.Len(t, out, 1)
	out[0]["n"] = float64(99)
	// Serialized records are clones, never aliases.
	assert.Equal(t, float64(2), c.SourceRecords()[0]["n"])
}
