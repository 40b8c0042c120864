// Package catalog defines the data contract shared by every other package:
// the fixed core fields of an event version record, the configurable extra
// fields, the typed value representation stored in the catalog, and the
// error taxonomy surfaced to callers.
//
// The package has no behavior beyond type coercion and comparison; storage,
// reconciliation, and selection live in their own packages and depend on
// this one.
package catalog
