package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/document"
	"github.com/lorebound/datamodel/fields"
	"github.com/lorebound/datamodel/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heroType() *document.Type {
	schema := fields.Schema().
		Field("_id", fields.NewDocumentId()).
		Field("name", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true},
			NonBlank:     true,
		})).
		Field("hp", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(10)},
			Integer:      true,
			Min:          fields.Float(0),
		})).
		Build()
	return document.NewType("Hero", schema)
}

func openStore(t *testing.T, opts ...store.StoreOption) *store.DocumentStore {
	t.Helper()
	s, err := store.Open(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAssignsID(t *testing.T) {
	s := openStore(t)
	typ := heroType()
	m, err := document.NewDataModel(typ, map[string]any{"name": "Aldric"}, nil)
	require.NoError(t, err)
	require.Equal(t, "", m.ID())

	require.NoError(t, s.Create(context.Background(), m))
	assert.True(t, datamodel.IsValidID(m.ID()))
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	s := openStore(t)
	typ := heroType()
	m, err := document.NewDataModel(typ, map[string]any{"name": "Aldric", "hp": float64(4)}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), m))

	got, err := s.Get(context.Background(), typ, m.ID())
	require.NoError(t, err)
	assert.Equal(t, m.ToObject(true), got.ToObject(true))
}

func TestStore_CreateDuplicateFails(t *testing.T) {
	s := openStore(t)
	typ := heroType()
	id := datamodel.GenerateID()
	m1, err := document.NewDataModel(typ, map[string]any{"_id": id, "name": "Aldric"}, nil)
	require.NoError(t, err)
	m2, err := document.NewDataModel(typ, map[string]any{"_id": id, "name": "Brennan"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Create(context.Background(), m1))
	assert.Error(t, s.Create(context.Background(), m2))
}

func TestStore_Update(t *testing.T) {
	s := openStore(t)
	typ := heroType()
	m, err := document.NewDataModel(typ, map[string]any{"name": "Aldric"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), m))

	require.NoError(t, s.Update(context.Background(), m, map[string]any{"hp": float64(3)}))

	got, err := s.Get(context.Background(), typ, m.ID())
	require.NoError(t, err)
	assert.Equal(t, float64(3), got.Source()["hp"])

	// An invalid change set never reaches the database.
	assert.Error(t, s.Update(context.Background(), m, map[string]any{"hp": float64(-1)}))
}

func TestStore_UpdateMissingDocument(t *testing.T) {
	s := openStore(t)
	m, err := document.NewDataModel(heroType(), map[string]any{
		"_id":  datamodel.GenerateID(),
		"name": "Aldric",
	}, nil)
	require.NoError(t, err)

	err = s.Update(context.Background(), m, map[string]any{"hp": float64(3)})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := openStore(t)
	typ := heroType()
	m, err := document.NewDataModel(typ, map[string]any{"name": "Aldric"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), m))

	require.NoError(t, s.Delete(context.Background(), "Hero", m.ID()))
	_, err = s.Get(context.Background(), typ, m.ID())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "Hero", m.ID()), store.ErrNotFound)
}

func TestStore_List(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	typ := heroType()
	for _, name := range []string{"Aldric", "Brennan"} {
		m, err := document.NewDataModel(typ, map[string]any{"name": name}, nil)
		require.NoError(t, err)
		require.NoError(t, s.Create(context.Background(), m))
	}

	// A row that no longer constructs cleanly is skipped, not fatal.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO documents (name, id, data) VALUES ('Hero', 'zzzzzzzzzzzzzzzz', '{broken')`)
	require.NoError(t, err)

	docs, err := s.List(context.Background(), typ)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	names := []string{docs[0].Source()["name"].(string), docs[1].Source()["name"].(string)}
	assert.ElementsMatch(t, []string{"Aldric", "Brennan"}, names)
}

func TestStore_WithTx(t *testing.T) {
	s := openStore(t)
	typ := heroType()
	ctx := context.Background()

	// A failing transaction rolls every write back.
	var rolledBackID string
	err := s.WithTx(ctx, func(tx *store.DocumentStore) error {
		m, err := document.NewDataModel(typ, map[string]any{"name": "Aldric"}, nil)
		require.NoError(t, err)
		if err := tx.Create(ctx, m); err != nil {
			return err
		}
		rolledBackID = m.ID()
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	_, err = s.Get(ctx, typ, rolledBackID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A successful transaction commits.
	var committedID string
	require.NoError(t, s.WithTx(ctx, func(tx *store.DocumentStore) error {
		m, err := document.NewDataModel(typ, map[string]any{"name": "Brennan"}, nil)
		require.NoError(t, err)
		if err := tx.Create(ctx, m); err != nil {
			return err
		}
		committedID = m.ID()
		return nil
	}))
	_, err = s.Get(ctx, typ, committedID)
	assert.NoError(t, err)
}
