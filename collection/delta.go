package collection

import (
	"fmt"

	datamodel "github.com/lorebound/datamodel"
	"go.uber.org/zap"
)

// ChangeSink observes the CRUD events a delta emulates when entries are
// restored to inheritance, so downstream change-notification logic sees
// ordinary create/update traffic. The reference implementation lives in the
// store package; a nil sink is silently ignored.
type ChangeSink interface {
	DocumentsCreated(documentName string, records []map[string]any)
	DocumentsUpdated(documentName string, records []map[string]any)
	DocumentsDeleted(documentName string, ids []string)
}

// Tombstone builds the delta record shape marking a base id as suppressed.
func Tombstone(id string) map[string]any {
	return map[string]any{"_id": id, "_tombstone": true}
}

// IsTombstoneRecord reports whether a delta source record is a tombstone.
func IsTombstoneRecord(record map[string]any) bool {
	t, _ := record["_tombstone"].(bool)
	return t
}

// EmbeddedCollectionDelta overlays a base collection on a separate base
// document with managed overrides and tombstones. Per managed id the state is
// one of:
//
//	INHERITED — no managed entry; the value comes from base
//	OVERRIDE  — a full record stored locally shadows base
//	TOMBSTONE — a local marker suppressing an id that exists in base
//
// Invariants: every tombstone id is managed; an id is never simultaneously a
// live override and inherited.
type EmbeddedCollectionDelta struct {
	EmbeddedCollection

	managed    map[string]struct{}
	tombstones map[string]struct{}
	base       func() *EmbeddedCollection
	sink       ChangeSink
}

// DeltaOption configures a delta collection.
type DeltaOption func(*EmbeddedCollectionDelta)

// WithChangeSink routes emulated CRUD events from restore operations.
func WithChangeSink(s ChangeSink) DeltaOption {
	return func(d *EmbeddedCollectionDelta) { d.sink = s }
}

// WithDeltaLogger attaches a logger for the invalid-document side channel.
func WithDeltaLogger(l *zap.Logger) DeltaOption {
	return func(d *EmbeddedCollectionDelta) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDelta builds a delta collection over locally managed records. base
// resolves lazily because the base document may not be constructed yet when
// the synthetic document initializes.
func NewDelta(name string, parent datamodel.Document, model Model, source []map[string]any, base func() *EmbeddedCollection, opts ...DeltaOption) *EmbeddedCollectionDelta {
	d := &EmbeddedCollectionDelta{
		EmbeddedCollection: *New(name, parent, model, source),
		managed:            map[string]struct{}{},
		tombstones:         map[string]struct{}{},
		base:               base,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// BaseCollection resolves the overlaid base collection, or nil when the base
// document is unavailable.
func (d *EmbeddedCollectionDelta) BaseCollection() *EmbeddedCollection {
	if d.base == nil {
		return nil
	}
	return d.base()
}

// ManagesID reports whether id has a managed entry (override or tombstone).
func (d *EmbeddedCollectionDelta) ManagesID(id string) bool {
	_, ok := d.managed[id]
	return ok
}

// IsTombstone reports whether id is locally suppressed.
func (d *EmbeddedCollectionDelta) IsTombstone(id string) bool {
	_, ok := d.tombstones[id]
	return ok
}

// Initialize materializes the merged view: locally managed non-tombstone
// records first, then every base record whose id is neither managed nor
// tombstoned, cloned so the base document's state is never aliased.
func (d *EmbeddedCollectionDelta) Initialize(full bool) {
	if d.initialized && !full {
		return
	}
	d.reset()
	d.managed = map[string]struct{}{}
	d.tombstones = map[string]struct{}{}
	for _, record := range d.source {
		id, _ := record["_id"].(string)
		d.managed[id] = struct{}{}
		if IsTombstoneRecord(record) {
			d.tombstones[id] = struct{}{}
			continue
		}
		d.createDocument(record)
	}
	if base := d.BaseCollection(); base != nil {
		base.Initialize(false)
		for _, id := range base.IDs() {
			if d.ManagesID(id) {
				continue
			}
			doc, _ := base.Get(id)
			clone := datamodel.DeepClone(doc.Source()).(map[string]any)
			d.createDocument(clone)
		}
	}
	d.initialized = true
}

// Set stores a full override record, clearing any tombstone status.
func (d *EmbeddedCollectionDelta) Set(doc datamodel.Document) {
	id := doc.ID()
	if d.IsTombstone(id) {
		// Drop the tombstone record so it does not coexist with the override.
		d.removeSource(id)
		delete(d.tombstones, id)
	}
	d.managed[id] = struct{}{}
	d.EmbeddedCollection.Set(doc)
}

// Delete removes an id from the merged view. When the id exists in base the
// deletion leaves a tombstone so the base record stays addressable elsewhere
// while hidden here; otherwise the entry is removed entirely.
func (d *EmbeddedCollectionDelta) Delete(id string) {
	base := d.BaseCollection()
	inBase := base != nil && base.Contains(id)
	if inBase && !d.IsTombstone(id) {
		d.EmbeddedCollection.Delete(id)
		d.source = append(d.source, Tombstone(id))
		d.managed[id] = struct{}{}
		d.tombstones[id] = struct{}{}
		return
	}
	if !inBase {
		d.EmbeddedCollection.Delete(id)
		delete(d.managed, id)
		delete(d.tombstones, id)
	}
}

// RestoreDocument returns a single managed id to pure inheritance. See
// RestoreDocuments.
func (d *EmbeddedCollectionDelta) RestoreDocument(id string) (datamodel.Document, error) {
	docs, err := d.RestoreDocuments([]string{id})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// RestoreDocuments drops the given ids from both the managed set and the
// tombstone set so their values inherit from base again. Each restore is
// reported to the change sink as an update (an override existed) or a create
// (the id was a tombstone), emulating the CRUD event downstream logic expects.
// Restores are all-or-nothing: every id is checked and its replacement
// document instantiated before any state changes, so a bad id never leaves
// the delta partially restored with unreported events.
func (d *EmbeddedCollectionDelta) RestoreDocuments(ids []string) ([]datamodel.Document, error) {
	base := d.BaseCollection()
	if base == nil {
		return nil, fmt.Errorf("restore: no base collection for %s", d.name)
	}
	base.Initialize(false)

	restored := make([]datamodel.Document, 0, len(ids))
	records := make([]map[string]any, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("restore: duplicate %s id %q", d.model.DocumentName(), id)
		}
		seen[id] = struct{}{}
		if !d.ManagesID(id) {
			return nil, fmt.Errorf("restore: %s %q is not managed by this delta", d.model.DocumentName(), id)
		}
		baseDoc, ok := base.Get(id)
		if !ok {
			return nil, fmt.Errorf("restore: %s %q: %w", d.model.DocumentName(), id, ErrNotFound)
		}
		record := datamodel.DeepClone(baseDoc.Source()).(map[string]any)
		doc, err := d.model.New(record, d.parent)
		if err != nil {
			return nil, fmt.Errorf("restore: %s %q: %w", d.model.DocumentName(), id, err)
		}
		restored = append(restored, doc)
		records = append(records, record)
	}

	var created, updated []map[string]any
	for i, id := range ids {
		wasTombstone := d.IsTombstone(id)
		d.EmbeddedCollection.Delete(id)
		delete(d.managed, id)
		delete(d.tombstones, id)
		d.insert(id, restored[i])
		if wasTombstone {
			created = append(created, records[i])
		} else {
			updated = append(updated, records[i])
		}
	}
	if d.sink != nil {
		if len(created) > 0 {
			d.sink.DocumentsCreated(d.model.DocumentName(), created)
		}
		if len(updated) > 0 {
			d.sink.DocumentsUpdated(d.model.DocumentName(), updated)
		}
	}
	return restored, nil
}
