package store_test

import (
	"context"
	"testing"
	"time"

	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/document"
	"github.com/lorebound/datamodel/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, ch <-chan store.Event) store.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return store.Event{}
	}
}

func TestBus_SinkPublishesChangeEvents(t *testing.T) {
	bus, err := store.NewBus()
	require.NoError(t, err)

	got := make(chan store.Event, 1)
	unsub := bus.Subscribe(store.EventCreated, func(_ context.Context, e store.Event) error {
		got <- e
		return nil
	})
	defer unsub()

	id := datamodel.GenerateID()
	bus.Sink().DocumentsCreated("Item", []map[string]any{{"_id": id, "name": "sword"}})

	e := waitForEvent(t, got)
	assert.Equal(t, store.EventCreated, e.Type)
	assert.Equal(t, "Item", e.Document)
	assert.Equal(t, []string{id}, e.IDs)
	require.Len(t, e.Records, 1)
	assert.Equal(t, "sword", e.Records[0]["name"])
}

func TestBus_SinkDeleteCarriesIDsOnly(t *testing.T) {
	bus, err := store.NewBus()
	require.NoError(t, err)

	got := make(chan store.Event, 1)
	unsub := bus.Subscribe(store.EventDeleted, func(_ context.Context, e store.Event) error {
		got <- e
		return nil
	})
	defer unsub()

	id := datamodel.GenerateID()
	bus.Sink().DocumentsDeleted("Item", []string{id})

	e := waitForEvent(t, got)
	assert.Equal(t, store.EventDeleted, e.Type)
	assert.Equal(t, []string{id}, e.IDs)
	assert.Empty(t, e.Records)
}

// TestStore_PublishesLifecycleEvents checks the persistence side of the bus:
// every mutation through the store surfaces as a typed event.
func TestStore_PublishesLifecycleEvents(t *testing.T) {
	bus, err := store.NewBus()
	require.NoError(t, err)
	s := openStore(t, store.WithBus(bus))
	typ := heroType()
	ctx := context.Background()

	created := make(chan store.Event, 1)
	updated := make(chan store.Event, 1)
	deleted := make(chan store.Event, 1)
	defer bus.Subscribe(store.EventCreated, func(_ context.Context, e store.Event) error {
		created <- e
		return nil
	})()
	defer bus.Subscribe(store.EventUpdated, func(_ context.Context, e store.Event) error {
		updated <- e
		return nil
	})()
	defer bus.Subscribe(store.EventDeleted, func(_ context.Context, e store.Event) error {
		deleted <- e
		return nil
	})()

	m, err := document.NewDataModel(typ, map[string]any{"name": "Aldric"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, m))
	e := waitForEvent(t, created)
	assert.Equal(t, "Hero", e.Document)
	assert.Equal(t, []string{m.ID()}, e.IDs)

	require.NoError(t, s.Update(ctx, m, map[string]any{"hp": float64(5)}))
	e = waitForEvent(t, updated)
	assert.Equal(t, float64(5), e.Records[0]["hp"])

	require.NoError(t, s.Delete(ctx, "Hero", m.ID()))
	e = waitForEvent(t, deleted)
	assert.Equal(t, []string{m.ID()}, e.IDs)
}
