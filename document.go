package datamodel

// Document is the minimal contract a schema-described unit of content
// satisfies. Concrete implementations live in the document package; the
// interface exists so fields and collections can hold children without
// depending on the orchestration layer.
type Document interface {
	// ID returns the document's _id, or "" when unset.
	ID() string
	// DocumentName names the document type (Actor, Item, ...).
	DocumentName() string
	// Parent returns the owning document, or nil for a top-level document.
	Parent() Document
	// Source returns the cleaned plain source record backing the document.
	Source() map[string]any
	// ToObject serializes back to a plain record. With source true the
	// persisted source is emitted; otherwise the initialized representation
	// is folded back through each field's ToObject.
	ToObject(source bool) map[string]any
}

// Provenance records which package contributed a document subtype. It is a
// lookup result, not an ownership relation.
type Provenance int

const (
	ProvenanceUnknown Provenance = iota
	ProvenanceCore
	ProvenanceSystem
	ProvenanceModule
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceCore:
		return "core"
	case ProvenanceSystem:
		return "system"
	case ProvenanceModule:
		return "module"
	default:
		return "unknown"
	}
}
