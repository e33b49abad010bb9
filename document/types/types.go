// Package types declares the core document catalog: Actor, Item, Token,
// ActorDelta and Region. Game packages extend the catalog through the subtype
// registry; the declarations here cover the fields the engine itself relies on.
package types

import (
	datamodel "github.com/lorebound/datamodel"
	"github.com/lorebound/datamodel/collection"
	"github.com/lorebound/datamodel/document"
	"github.com/lorebound/datamodel/fields"
	"go.uber.org/zap"
)

// Config wires the catalog into its collaborators.
type Config struct {
	// Registry resolves subtype payload schemas and templates.
	Registry fields.TypeModelRegistry
	// Logger receives invalid-document and repair diagnostics.
	Logger *zap.Logger
	// Sink observes the CRUD events delta restores emulate.
	Sink collection.ChangeSink
	// ResolveActor maps an actor id to its live document. Token deltas overlay
	// the resolved actor's items; a nil resolver leaves deltas baseless.
	ResolveActor func(id string) *document.DataModel
}

// Catalog holds the declared core document types.
type Catalog struct {
	Item       *document.Type
	Actor      *document.Type
	ActorDelta *document.Type
	Token      *document.Type
	Region     *document.Type
}

// ByName returns the declared type for a document name.
func (c *Catalog) ByName(name string) (*document.Type, bool) {
	switch name {
	case "Item":
		return c.Item, true
	case "Actor":
		return c.Actor, true
	case "ActorDelta":
		return c.ActorDelta, true
	case "Token":
		return c.Token, true
	case "Region":
		return c.Region, true
	default:
		return nil, false
	}
}

// All returns every declared type.
func (c *Catalog) All() []*document.Type {
	return []*document.Type{c.Item, c.Actor, c.ActorDelta, c.Token, c.Region}
}

// NewCatalog declares the core types against the given collaborators.
func NewCatalog(cfg Config) *Catalog {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Catalog{}
	c.Item = newItemType(cfg)
	c.Actor = newActorType(cfg, c.Item)
	c.ActorDelta = newActorDeltaType(cfg, c.Item)
	c.Token = newTokenType(cfg, c.ActorDelta)
	c.Region = newRegionType(cfg)
	return c
}

func newItemType(cfg Config) *document.Type {
	schema := fields.Schema().
		Field("_id", fields.NewDocumentId()).
		Field("name", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true},
			NonBlank:     true,
		})).
		Field("type", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true, Initial: "base"},
			NonBlank:     true,
		})).
		Field("img", fields.NewFilePath(fields.FilePathOptions{
			Categories: []fields.FileCategory{fields.FileImage},
		})).
		Field("system", fields.NewTypeData("Item", cfg.Registry, fields.FieldOptions{Required: true})).
		Field("sort", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(0)},
			Integer:      true,
		})).
		Field("flags", fields.NewObject(fields.FieldOptions{})).
		Build()
	return document.NewType("Item", schema,
		document.WithTypeLogger(cfg.Logger),
		document.WithMigration(migrateSystemData))
}

// migrateSystemData upgrades records persisted before the payload key was
// renamed from "data" to "system".
func migrateSystemData(source map[string]any) map[string]any {
	if _, has := source["system"]; has {
		return source
	}
	if legacy, ok := source["data"].(map[string]any); ok {
		source["system"] = legacy
		delete(source, "data")
	}
	return source
}

func newActorType(cfg Config, item *document.Type) *document.Type {
	schema := fields.Schema().
		Field("_id", fields.NewDocumentId()).
		Field("name", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true},
			NonBlank:     true,
		})).
		Field("type", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true, Initial: "base"},
			NonBlank:     true,
		})).
		Field("img", fields.NewFilePath(fields.FilePathOptions{
			Categories: []fields.FileCategory{fields.FileImage},
		})).
		Field("system", fields.NewTypeData("Actor", cfg.Registry, fields.FieldOptions{Required: true})).
		Field("items", fields.NewEmbeddedCollection(item, fields.EmbeddedOptions{
			Logger: cfg.Logger,
		})).
		Field("prototypeToken", fields.NewObject(fields.FieldOptions{})).
		Field("sort", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(0)},
			Integer:      true,
		})).
		Field("flags", fields.NewObject(fields.FieldOptions{})).
		Build()
	return document.NewType("Actor", schema,
		document.WithTypeLogger(cfg.Logger),
		document.WithMigration(migrateSystemData))
}

// newActorDeltaType declares the synthetic overlay a token applies to its
// actor. Every descriptive field is nullable: null means "inherit from the
// base actor", a concrete value overrides it.
func newActorDeltaType(cfg Config, item *document.Type) *document.Type {
	schema := fields.Schema().
		Field("_id", fields.NewDocumentId()).
		Field("name", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Nullable: true},
			NonBlank:     true,
		})).
		Field("type", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Nullable: true},
			NonBlank:     true,
		})).
		Field("img", fields.NewFilePath(fields.FilePathOptions{
			Categories: []fields.FileCategory{fields.FileImage},
		})).
		Field("system", fields.NewObject(fields.FieldOptions{Nullable: true, Initial: nil})).
		Field("items", fields.NewEmbeddedCollectionDelta(item, fields.DeltaFieldOptions{
			EmbeddedOptions: fields.EmbeddedOptions{Logger: cfg.Logger},
			Base:            baseActorItems(cfg),
			Sink:            cfg.Sink,
		})).
		Field("flags", fields.NewObject(fields.FieldOptions{})).
		Build()
	return document.NewType("ActorDelta", schema, document.WithTypeLogger(cfg.Logger))
}

// baseActorItems resolves the item collection a token delta overlays: the
// delta's parent is the token, the token's actorId names the base actor.
func baseActorItems(cfg Config) fields.BaseResolver {
	return func(parent datamodel.Document) *collection.EmbeddedCollection {
		if cfg.ResolveActor == nil || parent == nil {
			return nil
		}
		token := parent.Parent()
		if token == nil {
			return nil
		}
		actorID, _ := token.Source()["actorId"].(string)
		if actorID == "" {
			return nil
		}
		actor := cfg.ResolveActor(actorID)
		if actor == nil {
			return nil
		}
		items, _ := actor.Collection("items")
		return items
	}
}

func newTokenType(cfg Config, delta *document.Type) *document.Type {
	resolveActor := func(id string) datamodel.Document {
		if cfg.ResolveActor == nil {
			return nil
		}
		if actor := cfg.ResolveActor(id); actor != nil {
			return actor
		}
		return nil
	}
	texture := fields.Schema().
		Field("src", fields.NewFilePath(fields.FilePathOptions{
			Categories: []fields.FileCategory{fields.FileImage, fields.FileVideo},
			Wildcard:   true,
		})).
		Field("tint", fields.NewColor(fields.FieldOptions{Nullable: true})).
		Field("scaleX", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(1)},
			Positive:     true,
		})).
		Field("scaleY", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(1)},
			Positive:     true,
		})).
		Build()
	schema := fields.Schema().
		Field("_id", fields.NewDocumentId()).
		Field("name", fields.NewString(fields.StringOptions{})).
		Field("actorId", fields.NewForeignDocument(fields.ForeignDocumentOptions{
			Resolver: resolveActor,
		})).
		Field("delta", fields.NewEmbeddedDocument(delta, fields.EmbeddedOptions{Logger: cfg.Logger})).
		Field("texture", texture).
		Field("x", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Required: true, Initial: float64(0)},
			Integer:      true,
		})).
		Field("y", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Required: true, Initial: float64(0)},
			Integer:      true,
		})).
		Field("width", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(1)},
			Positive:     true,
		})).
		Field("height", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(1)},
			Positive:     true,
		})).
		Field("rotation", fields.NewAngle(fields.FieldOptions{})).
		Field("alpha", fields.NewAlpha(fields.FieldOptions{})).
		Field("hidden", fields.NewBoolean(fields.FieldOptions{Initial: false})).
		Field("lockRotation", fields.NewBoolean(fields.FieldOptions{Initial: false})).
		Field("elevation", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(0)},
		})).
		Field("sort", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(0)},
			Integer:      true,
		})).
		Field("flags", fields.NewObject(fields.FieldOptions{})).
		Build()
	return document.NewType("Token", schema, document.WithTypeLogger(cfg.Logger))
}

func newRegionType(cfg Config) *document.Type {
	elevation := fields.Schema().
		Field("bottom", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Nullable: true, Initial: nil},
		})).
		Field("top", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Nullable: true, Initial: nil},
		})).
		Joint(elevationOrdered).
		Build()
	schema := fields.Schema().
		Field("_id", fields.NewDocumentId()).
		Field("name", fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true},
			NonBlank:     true,
		})).
		Field("color", fields.NewColor(fields.FieldOptions{Initial: "#ffffff"})).
		Field("shapes", fields.NewArray(newShapeUnion(), fields.ArrayOptions{})).
		Field("elevation", elevation).
		Field("visibility", fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Initial: float64(0)},
			Integer:      true,
			Choices:      []float64{0, 1, 2},
		})).
		Field("locked", fields.NewBoolean(fields.FieldOptions{Initial: false})).
		Field("flags", fields.NewObject(fields.FieldOptions{})).
		Build()
	return document.NewType("Region", schema, document.WithTypeLogger(cfg.Logger))
}

func elevationOrdered(data map[string]any) error {
	bottom, bok := data["bottom"].(float64)
	top, tok := data["top"].(float64)
	if bok && tok && bottom > top {
		return datamodel.NewFailure(datamodel.CodeJointRule, "elevation bottom may not exceed top", data)
	}
	return nil
}

// newShapeUnion declares the region shape geometry as a closed tagged union.
func newShapeUnion() *fields.TypedSchemaField {
	tag := func(key string) *fields.StringField {
		return fields.NewString(fields.StringOptions{
			FieldOptions: fields.FieldOptions{Required: true, Initial: key},
			NonBlank:     true,
			Choices:      []string{key},
		})
	}
	coord := func() *fields.NumberField {
		return fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Required: true, Initial: float64(0)},
		})
	}
	extent := func() *fields.NumberField {
		return fields.NewNumber(fields.NumberOptions{
			FieldOptions: fields.FieldOptions{Required: true},
			Positive:     true,
		})
	}
	hole := func() *fields.BooleanField {
		return fields.NewBoolean(fields.FieldOptions{Initial: false})
	}
	circle := fields.Schema().
		Field("type", tag("circle")).
		Field("x", coord()).
		Field("y", coord()).
		Field("radius", extent()).
		Field("hole", hole()).
		Build()
	ellipse := fields.Schema().
		Field("type", tag("ellipse")).
		Field("x", coord()).
		Field("y", coord()).
		Field("radiusX", extent()).
		Field("radiusY", extent()).
		Field("rotation", fields.NewAngle(fields.FieldOptions{})).
		Field("hole", hole()).
		Build()
	rectangle := fields.Schema().
		Field("type", tag("rectangle")).
		Field("x", coord()).
		Field("y", coord()).
		Field("width", extent()).
		Field("height", extent()).
		Field("rotation", fields.NewAngle(fields.FieldOptions{})).
		Field("hole", hole()).
		Build()
	polygon := fields.Schema().
		Field("type", tag("polygon")).
		Field("points", fields.NewArray(
			fields.NewNumber(fields.NumberOptions{FieldOptions: fields.FieldOptions{Required: true}}),
			fields.ArrayOptions{
				FieldOptions: fields.FieldOptions{
					Required: true,
					Validate: evenPointCount,
				},
				MinLen: 6,
			},
		)).
		Field("hole", hole()).
		Build()
	return fields.NewTypedSchema(map[string]*fields.SchemaField{
		"circle":    circle,
		"ellipse":   ellipse,
		"rectangle": rectangle,
		"polygon":   polygon,
	}, fields.FieldOptions{Required: true})
}

func evenPointCount(value any) error {
	if pts, ok := value.([]any); ok && len(pts)%2 != 0 {
		return datamodel.NewFailure(datamodel.CodeCustomRule, "points must come in x,y pairs", value)
	}
	return nil
}
