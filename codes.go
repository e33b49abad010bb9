package datamodel

// Failure codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType        = "invalid_type"
	CodeRequired           = "required"
	CodeNotNullable        = "not_nullable"
	CodeUnknownKey         = "unknown_key"
	CodeTooSmall           = "too_small"
	CodeTooBig             = "too_big"
	CodeTooShort           = "too_short"
	CodeTooLong            = "too_long"
	CodePattern            = "pattern"
	CodeInvalidChoice      = "invalid_choice"
	CodeInvalidFormat      = "invalid_format"
	CodeBlank              = "blank"
	CodeInvalidID          = "invalid_id"
	CodeInvalidUUID        = "invalid_uuid"
	CodeSubtypeMissing     = "subtype_missing"
	CodeSubtypeUnknown     = "subtype_unknown"
	CodeTombstoneShape     = "tombstone_shape"
	CodeElementInvalid     = "element_invalid"
	CodeJointRule          = "joint_rule"
	CodeCustomRule         = "custom_rule"
	CodeParseError         = "parse_error"
	CodeReadonly           = "readonly"
	CodeDocumentNotFound   = "document_not_found"
	CodeDuplicateID        = "duplicate_id"
)
