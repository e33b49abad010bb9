package store

import (
	"context"

	events "github.com/asaidimu/go-events"
	"github.com/lorebound/datamodel/collection"
)

// EventType names a document lifecycle event on the bus.
type EventType string

const (
	EventCreated EventType = "documents.created"
	EventUpdated EventType = "documents.updated"
	EventDeleted EventType = "documents.deleted"
)

// Event is the payload of a document lifecycle notification.
type Event struct {
	Type     EventType          `json:"type"`
	Document string             `json:"document"`
	IDs      []string           `json:"ids"`
	Records  []map[string]any   `json:"records,omitempty"`
}

// Bus distributes document lifecycle events to subscribers.
type Bus struct {
	bus *events.TypedEventBus[Event]
}

// NewBus builds an event bus with default delivery configuration.
func NewBus() (*Bus, error) {
	b, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &Bus{bus: b}, nil
}

// Subscribe registers a callback for one event type, returning an unsubscribe
// function.
func (b *Bus) Subscribe(t EventType, cb func(ctx context.Context, event Event) error) func() {
	return b.bus.Subscribe(string(t), cb)
}

func (b *Bus) emit(e Event) {
	if b != nil && b.bus != nil {
		b.bus.Emit(string(e.Type), e)
	}
}

func recordIDs(records []map[string]any) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id, ok := r["_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sink adapts the bus to the change-sink contract delta collections use to
// report emulated CRUD traffic.
type Sink struct {
	bus *Bus
}

var _ collection.ChangeSink = (*Sink)(nil)

// Sink returns a change sink publishing onto the bus.
func (b *Bus) Sink() *Sink { return &Sink{bus: b} }

func (s *Sink) DocumentsCreated(documentName string, records []map[string]any) {
	s.bus.emit(Event{Type: EventCreated, Document: documentName, IDs: recordIDs(records), Records: records})
}

func (s *Sink) DocumentsUpdated(documentName string, records []map[string]any) {
	s.bus.emit(Event{Type: EventUpdated, Document: documentName, IDs: recordIDs(records), Records: records})
}

func (s *Sink) DocumentsDeleted(documentName string, ids []string) {
	s.bus.emit(Event{Type: EventDeleted, Document: documentName, IDs: ids})
}
