// Package datamodel provides:
//
//   - A declarative schema engine for game-content documents
//     (clean/validate/initialize/serialize)
//   - A stable failure model via Failure trees (per-field aggregation,
//     fallback substitution)
//   - Embedded document collections and delta overlays (overrides +
//     tombstones against a base)
//   - An explicit subtype registry for open polymorphic document payloads
//
// Design policy:
//
//   - Keep only public contracts in the root package; field and schema
//     implementations live under fields/, collections under collection/,
//     document orchestration under document/.
//   - Data errors never panic; validation returns a Failure describing the
//     problem. Only malformed schema declarations panic, at declaration time.
//   - Plain serialized records in, plain serialized records out: the engine
//     never retains a transport or storage handle.
//
// Typical usage:
//
//	catalog := types.NewCatalog(types.Config{Registry: reg})
//	actor, err := document.NewDataModel(catalog.Actor, source, nil)
//	out := actor.ToObject(true)
package datamodel
