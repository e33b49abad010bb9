// Package jsonschema exports document type declarations as JSON Schema
// documents, for editors and external validators that consume the wire format
// without linking the engine.
package jsonschema

import (
	"fmt"

	"github.com/goccy/go-json"
	js "github.com/google/jsonschema-go/jsonschema"
	"github.com/lorebound/datamodel/document"
)

const dialect = "https://json-schema.org/draft/2020-12/schema"

// Document projects one document type into a standalone schema.
func Document(t *document.Type) *js.Schema {
	s := t.JSONSchema()
	s.Schema = dialect
	return s
}

// Marshal renders one document type's schema as indented JSON.
func Marshal(t *document.Type) ([]byte, error) {
	b, err := json.MarshalIndent(Document(t), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jsonschema: export %s: %w", t.Name(), err)
	}
	return b, nil
}

// Bundle renders several document types as one schema document carrying each
// type under $defs.
func Bundle(types ...*document.Type) ([]byte, error) {
	root := &js.Schema{
		Schema: dialect,
		Defs:   make(map[string]*js.Schema, len(types)),
	}
	for _, t := range types {
		if _, dup := root.Defs[t.Name()]; dup {
			return nil, fmt.Errorf("jsonschema: duplicate type %s in bundle", t.Name())
		}
		root.Defs[t.Name()] = t.JSONSchema()
	}
	b, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jsonschema: export bundle: %w", err)
	}
	return b, nil
}
