package datamodel

import "sort"

// absent is the type of the Absent sentinel.
type absent struct{}

// Absent marks a key that was not present in the input record, as opposed to a
// key explicitly set to null. Cleaning maps Absent to the field's initial
// value; validation rejects it only for required fields.
var Absent any = absent{}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

// Computed wraps a derived value resolved on read. Schema initialization
// installs Computed values for lazy fields instead of eagerly evaluating them.
type Computed struct {
	Fn func() any
}

// Resolve evaluates v if it is a Computed wrapper, otherwise returns v as-is.
func Resolve(v any) any {
	if c, ok := v.(Computed); ok && c.Fn != nil {
		return c.Fn()
	}
	return v
}

// CleanOptions steer coercion and default application.
type CleanOptions struct {
	// Partial skips schema fields absent from the input instead of filling
	// their defaults, preserving partial-update semantics.
	Partial bool
	// Source is the full record being cleaned, available to initial-value
	// thunks that depend on sibling values.
	Source map[string]any
}

// ValidateOptions steer structural validation.
type ValidateOptions struct {
	Partial bool
	// Fallback permits substituting a field's own initial value for an invalid
	// one, when that initial value independently validates.
	Fallback bool
	// DropInvalidEmbedded diverts invalid embedded children into the owning
	// collection's invalid side channel instead of failing the whole field.
	DropInvalidEmbedded bool
	Source              map[string]any
}

// DeepClone copies plain JSON-shaped data (maps, slices, scalars). Values of
// other types are returned as-is.
func DeepClone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepClone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepClone(val)
		}
		return out
	default:
		return v
	}
}

// MergeObject merges src onto a deep clone of base, non-strictly: keys missing
// from base are inserted, nested objects merge recursively, everything else is
// replaced. Neither argument is mutated.
func MergeObject(base, src map[string]any) map[string]any {
	out, _ := DeepClone(base).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range src {
		if bm, ok := out[k].(map[string]any); ok {
			if sm, ok := v.(map[string]any); ok {
				out[k] = MergeObject(bm, sm)
				continue
			}
		}
		out[k] = DeepClone(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
