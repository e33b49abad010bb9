package fields

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	datamodel "github.com/lorebound/datamodel"
)

// ---- Color ----

// Color is the live representation of a ColorField value, with channels in [0,1].
type Color struct {
	R, G, B, A float64
}

// ParseColor parses #rgb, #rrggbb and #rrggbbaa notations.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "#") {
		return Color{}, fmt.Errorf("color %q: missing # prefix", s)
	}
	hex := s[1:]
	expand := func(c byte) string { return string([]byte{c, c}) }
	switch len(hex) {
	case 3:
		hex = expand(hex[0]) + expand(hex[1]) + expand(hex[2])
	case 6, 8:
	default:
		return Color{}, fmt.Errorf("color %q: invalid length", s)
	}
	channel := func(i int) (float64, error) {
		n, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		return float64(n) / 255, err
	}
	c := Color{A: 1}
	var err error
	if c.R, err = channel(0); err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	if c.G, err = channel(2); err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	if c.B, err = channel(4); err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	if len(hex) == 8 {
		if c.A, err = channel(6); err != nil {
			return Color{}, fmt.Errorf("color %q: %w", s, err)
		}
	}
	return c, nil
}

// String renders the canonical #rrggbb or #rrggbbaa form.
func (c Color) String() string {
	b := func(f float64) uint8 { return uint8(math.Round(f * 255)) }
	if c.A < 1 {
		return fmt.Sprintf("#%02x%02x%02x%02x", b(c.R), b(c.G), b(c.B), b(c.A))
	}
	return fmt.Sprintf("#%02x%02x%02x", b(c.R), b(c.G), b(c.B))
}

// ColorField stores a hex color string and initializes to a Color value.
type ColorField struct {
	StringField
}

// NewColor builds a color field.
func NewColor(opts FieldOptions) *ColorField {
	return &ColorField{StringField{newBase(opts), StringOptions{FieldOptions: opts}}}
}

func (f *ColorField) Clean(value any, opts datamodel.CleanOptions) any {
	v := f.StringField.Clean(value, opts)
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return v
}

func (f *ColorField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		s, ok := v.(string)
		if !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a string", v)
		}
		if _, err := ParseColor(s); err != nil {
			return datamodel.NewFailure(datamodel.CodeInvalidFormat, "must be a hex color string", v)
		}
		return nil
	})
}

func (f *ColorField) Initialize(value any, _ datamodel.Document) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	c, err := ParseColor(s)
	if err != nil {
		return value
	}
	return c
}

func (f *ColorField) ToObject(value any) any {
	if c, ok := value.(Color); ok {
		return c.String()
	}
	return value
}

func (f *ColorField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "color", Description: f.opts.Hint}
}

// ---- FilePathField ----

// FileCategory names a group of admissible file extensions.
type FileCategory string

const (
	FileImage FileCategory = "IMAGE"
	FileVideo FileCategory = "VIDEO"
	FileAudio FileCategory = "AUDIO"
	FileText  FileCategory = "TEXT"
	FileFont  FileCategory = "FONT"
)

var fileExtensions = map[FileCategory][]string{
	FileImage: {"apng", "avif", "bmp", "gif", "jpeg", "jpg", "png", "svg", "tiff", "webp"},
	FileVideo: {"m4v", "mp4", "ogv", "webm"},
	FileAudio: {"aac", "flac", "m4a", "mid", "mp3", "ogg", "opus", "wav", "webm"},
	FileText:  {"csv", "json", "md", "pdf", "tsv", "txt", "xml", "yml", "yaml"},
	FileFont:  {"otf", "ttf", "woff", "woff2"},
}

// FilePathOptions restrict a path to one or more file categories.
type FilePathOptions struct {
	FieldOptions
	Categories []FileCategory
	// Wildcard admits paths containing * segments (used by token ring art).
	Wildcard bool
}

// FilePathField stores a relative or absolute content path restricted by
// category-specific extensions.
type FilePathField struct {
	StringField
	file FilePathOptions
}

// NewFilePath builds a file path field. Paths default to nullable with a null
// initial, matching how content references are persisted.
func NewFilePath(opts FilePathOptions) *FilePathField {
	opts.Nullable = true
	return &FilePathField{StringField{newBase(opts.FieldOptions), StringOptions{FieldOptions: opts.FieldOptions}}, opts}
}

func (f *FilePathField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		s, ok := v.(string)
		if !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a string", v)
		}
		if s == "" {
			return nil
		}
		if f.file.Wildcard && strings.Contains(s, "*") {
			return nil
		}
		if len(f.file.Categories) == 0 {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(pathExt(s), "."))
		for _, cat := range f.file.Categories {
			for _, e := range fileExtensions[cat] {
				if ext == e {
					return nil
				}
			}
		}
		return datamodel.NewFailure(datamodel.CodeInvalidFormat,
			fmt.Sprintf("does not have a valid file extension for %v", f.file.Categories), v)
	})
}

func pathExt(s string) string {
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i:]
	}
	return ""
}

func (f *FilePathField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "uri-reference", Description: f.opts.Hint}
}

// ---- AngleField / AlphaField / HueField ----

// AngleField stores an angle in degrees normalized to [0, 360).
type AngleField struct {
	NumberField
}

// NewAngle builds an angle field with a 0 initial unless declared otherwise.
func NewAngle(opts FieldOptions) *AngleField {
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = float64(0)
	}
	return &AngleField{NumberField{newBase(opts), NumberOptions{FieldOptions: opts}}}
}

func normalizeDegrees(n float64) float64 {
	n = math.Mod(n, 360)
	if n < 0 {
		n += 360
	}
	return n
}

func (f *AngleField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, f.castNumber, func(v any, _ datamodel.CleanOptions) any {
		if n, ok := v.(float64); ok {
			return normalizeDegrees(n)
		}
		return v
	})
}

// NewAlpha builds an opacity field constrained to [0, 1] with initial 1.
func NewAlpha(opts FieldOptions) *NumberField {
	if opts.Initial == nil && !opts.Nullable {
		opts.Initial = float64(1)
	}
	return NewNumber(NumberOptions{FieldOptions: opts, Min: Float(0), Max: Float(1)})
}

// NewHue builds a hue field normalized like an angle with initial 0.
func NewHue(opts FieldOptions) *AngleField { return NewAngle(opts) }

// ---- DocumentIdField ----

// DocumentIdField stores a 16-character document id or null.
type DocumentIdField struct {
	BaseField
}

// NewDocumentId builds an id field. Ids are readonly and nullable by default:
// a new document has no id until the persistence collaborator assigns one.
func NewDocumentId() *DocumentIdField {
	return &DocumentIdField{newBase(FieldOptions{Required: true, Nullable: true, ReadOnly: true, Initial: nil})}
}

func castDocumentId(v any) any {
	if doc, ok := v.(datamodel.Document); ok {
		return doc.ID()
	}
	return v
}

func (f *DocumentIdField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castDocumentId, nil)
}

func (f *DocumentIdField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		s, ok := v.(string)
		if !ok || !datamodel.IsValidID(s) {
			return datamodel.NewFailure(datamodel.CodeInvalidID, "is not a valid document id", v)
		}
		return nil
	})
}

func (f *DocumentIdField) Initialize(value any, _ datamodel.Document) any { return value }
func (f *DocumentIdField) ToObject(value any) any                         { return value }

func (f *DocumentIdField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "document-id"}
}

// ---- DocumentUUIDField ----

// UUID addresses a document through its embedding chain:
// Name.id(.Name.id)* from the primary document down.
type UUID struct {
	Steps []UUIDStep
}

// UUIDStep is one (documentName, id) pair of a UUID chain.
type UUIDStep struct {
	Name string
	ID   string
}

// ParseUUID splits and checks a document UUID string.
func ParseUUID(s string) (UUID, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts)%2 != 0 {
		return UUID{}, fmt.Errorf("uuid %q: expected Name.id pairs", s)
	}
	u := UUID{}
	for i := 0; i < len(parts); i += 2 {
		name, id := parts[i], parts[i+1]
		if name == "" || !datamodel.IsValidID(id) {
			return UUID{}, fmt.Errorf("uuid %q: invalid step %q.%q", s, name, id)
		}
		u.Steps = append(u.Steps, UUIDStep{Name: name, ID: id})
	}
	return u, nil
}

// String renders the canonical dotted form.
func (u UUID) String() string {
	parts := make([]string, 0, len(u.Steps)*2)
	for _, st := range u.Steps {
		parts = append(parts, st.Name, st.ID)
	}
	return strings.Join(parts, ".")
}

// DocumentUUIDOptions optionally pin the addressed document type.
type DocumentUUIDOptions struct {
	FieldOptions
	// Type restricts the terminal document name of the chain.
	Type string
}

// DocumentUUIDField stores a dotted document UUID.
type DocumentUUIDField struct {
	BaseField
	uuid DocumentUUIDOptions
}

// NewDocumentUUID builds a UUID reference field.
func NewDocumentUUID(opts DocumentUUIDOptions) *DocumentUUIDField {
	opts.Nullable = true
	return &DocumentUUIDField{newBase(opts.FieldOptions), opts}
}

func (f *DocumentUUIDField) Clean(value any, opts datamodel.CleanOptions) any {
	return cleanValue(f, value, opts, castString, nil)
}

func (f *DocumentUUIDField) Validate(value any, opts datamodel.ValidateOptions) *datamodel.Failure {
	return validateValue(f, value, opts, func(v any, _ datamodel.ValidateOptions) *datamodel.Failure {
		s, ok := v.(string)
		if !ok {
			return datamodel.NewFailure(datamodel.CodeInvalidType, "must be a string", v)
		}
		u, err := ParseUUID(s)
		if err != nil {
			return datamodel.NewFailure(datamodel.CodeInvalidUUID, "is not a valid document UUID", v)
		}
		if f.uuid.Type != "" && u.Steps[len(u.Steps)-1].Name != f.uuid.Type {
			return datamodel.NewFailure(datamodel.CodeInvalidUUID,
				fmt.Sprintf("must reference a %s document", f.uuid.Type), v)
		}
		return nil
	})
}

func (f *DocumentUUIDField) Initialize(value any, _ datamodel.Document) any { return value }
func (f *DocumentUUIDField) ToObject(value any) any                         { return value }

func (f *DocumentUUIDField) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "document-uuid"}
}

// ---- ForeignDocumentField ----

// ForeignDocumentOptions configure the lookup of a referenced document.
type ForeignDocumentOptions struct {
	FieldOptions
	// Resolver maps a stored id to the live referenced document, or nil when
	// the reference is dangling. A nil resolver keeps the field id-only.
	Resolver func(id string) datamodel.Document
}

// ForeignDocumentField stores the id of a document owned elsewhere. The live
// representation is a lazily resolved reference so load order between
// documents does not matter; dangling references resolve to nil.
type ForeignDocumentField struct {
	DocumentIdField
	foreign ForeignDocumentOptions
}

// NewForeignDocument builds a foreign reference field.
func NewForeignDocument(opts ForeignDocumentOptions) *ForeignDocumentField {
	opts.Nullable = true
	return &ForeignDocumentField{DocumentIdField{newBase(opts.FieldOptions)}, opts}
}

func (f *ForeignDocumentField) Initialize(value any, _ datamodel.Document) any {
	id, ok := value.(string)
	if !ok || f.foreign.Resolver == nil {
		return value
	}
	resolver := f.foreign.Resolver
	return datamodel.Computed{Fn: func() any {
		if doc := resolver(id); doc != nil {
			return doc
		}
		return nil
	}}
}

func (f *ForeignDocumentField) ToObject(value any) any {
	switch t := datamodel.Resolve(value).(type) {
	case datamodel.Document:
		return t.ID()
	default:
		return t
	}
}
