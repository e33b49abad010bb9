package datamodel

import "errors"

// ChangeMode selects how a delta value is applied onto a current field value.
// Semantics are defined per field kind; modes a kind does not support return
// ErrUnsupportedChange.
type ChangeMode int

const (
	ChangeCustom ChangeMode = iota
	ChangeMultiply
	ChangeAdd
	ChangeDowngrade
	ChangeUpgrade
	ChangeOverride
)

// ErrUnsupportedChange indicates a change mode with no defined semantics for
// the field kind (for example, multiply on a string).
var ErrUnsupportedChange = errors.New("datamodel: change mode not supported by field")

func (m ChangeMode) String() string {
	switch m {
	case ChangeCustom:
		return "custom"
	case ChangeMultiply:
		return "multiply"
	case ChangeAdd:
		return "add"
	case ChangeDowngrade:
		return "downgrade"
	case ChangeUpgrade:
		return "upgrade"
	case ChangeOverride:
		return "override"
	default:
		return "unknown"
	}
}
