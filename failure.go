package datamodel

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Failure describes why a value was rejected by a field. Composite fields
// aggregate child failures under Fields (keyed by field name) or Elements
// (positional/id-keyed), mirroring the schema shape.
//
// Unresolved reports whether the failure still stands after any fallback
// substitution: a failure with a validated fallback is recorded but resolved,
// and callers may accept the repaired value.
type Failure struct {
	InvalidValue any
	Message      string
	Code         string
	Unresolved   bool
	Fallback     any
	HasFallback  bool
	Fields       map[string]*Failure
	Elements     []ElementFailure
}

// ElementFailure ties a child failure to its position in a sequence field, and
// to the child's id when the element is an embedded document record.
type ElementFailure struct {
	Index   int
	ID      string
	Failure *Failure
}

// NewFailure constructs a leaf failure for an offending value.
func NewFailure(code, message string, value any) *Failure {
	return &Failure{InvalidValue: value, Code: code, Message: message, Unresolved: true}
}

// Resolve records a fallback value that independently validated, clearing the
// unresolved flag while keeping the original complaint.
func (f *Failure) Resolve(fallback any) *Failure {
	f.Fallback = fallback
	f.HasFallback = true
	f.Unresolved = false
	return f
}

// WithField attaches a child failure under the given field name, initializing
// the map when needed. The parent inherits the child's unresolved state.
func (f *Failure) WithField(name string, child *Failure) *Failure {
	if child == nil {
		return f
	}
	if f.Fields == nil {
		f.Fields = map[string]*Failure{}
	}
	f.Fields[name] = child
	if child.Unresolved {
		f.Unresolved = true
	}
	return f
}

// WithElement attaches a child failure for a sequence element.
func (f *Failure) WithElement(index int, id string, child *Failure) *Failure {
	if child == nil {
		return f
	}
	f.Elements = append(f.Elements, ElementFailure{Index: index, ID: id, Failure: child})
	if child.Unresolved {
		f.Unresolved = true
	}
	return f
}

// Empty reports whether the failure carries no complaint at all. Composite
// validators build a candidate failure and discard it when nothing attached.
func (f *Failure) Empty() bool {
	return f == nil || (f.Code == "" && len(f.Fields) == 0 && len(f.Elements) == 0)
}

// Error summarizes the first few flattened issues.
func (f *Failure) Error() string {
	iss := f.Issues()
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	lim := len(iss)
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(b, "%s at %s", iss[i].Code, iss[i].Path)
	}
	if len(iss) > lim {
		fmt.Fprintf(b, "; ... (total %d)", len(iss))
	}
	return b.String()
}

// Issue is one flattened validation entry addressed by a JSON Pointer.
type Issue struct {
	Path    string // e.g. /items/2/price
	Code    string
	Message string
}

// Issues flattens the failure tree into path-addressed entries in a
// deterministic order: at each level the node's own complaint first, then
// fields in sorted name order, then elements in recorded order.
func (f *Failure) Issues() []Issue {
	var out []Issue
	f.flatten("", &out)
	return out
}

func (f *Failure) flatten(base string, out *[]Issue) {
	if f == nil {
		return
	}
	if f.Code != "" {
		p := base
		if p == "" {
			p = "/"
		}
		*out = append(*out, Issue{Path: p, Code: f.Code, Message: f.Message})
	}
	for _, name := range sortedKeys(f.Fields) {
		f.Fields[name].flatten(base+"/"+name, out)
	}
	for _, el := range f.Elements {
		seg := fmt.Sprintf("%d", el.Index)
		if el.ID != "" {
			seg = el.ID
		}
		el.Failure.flatten(base+"/"+seg, out)
	}
}

// AsFailure extracts a *Failure from an error when one is wrapped inside.
func AsFailure(err error) (*Failure, bool) {
	if err == nil {
		return nil, false
	}
	for e := err; e != nil; {
		if f, ok := e.(*Failure); ok {
			return f, true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		e = u.Unwrap()
	}
	return nil, false
}

// MarshalJSON emits the wire shape consumed by external error reporting:
// {invalidValue, message, unresolved, fallback?, fields?, elements?}.
func (f *Failure) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"invalidValue": f.InvalidValue,
		"message":      f.Message,
		"unresolved":   f.Unresolved,
	}
	if f.HasFallback {
		m["fallback"] = f.Fallback
	}
	if len(f.Fields) > 0 {
		m["fields"] = f.Fields
	}
	if len(f.Elements) > 0 {
		els := make([]map[string]any, 0, len(f.Elements))
		for _, el := range f.Elements {
			em := map[string]any{"failure": el.Failure}
			if el.ID != "" {
				em["id"] = el.ID
			} else {
				em["index"] = el.Index
			}
			els = append(els, em)
		}
		m["elements"] = els
	}
	return json.Marshal(m)
}
