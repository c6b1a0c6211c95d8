// Package records persists job records in one JSON document per store.
//
// The document is a versioned container ({"version":"2","data":{...}}) keyed
// by video id. Every mutation reloads the file before merging so concurrent
// writers lose as little as possible, and WithLock wraps a read-modify-write
// cycle in both an in-process mutex and an advisory file lock on
// "<path>.lock" for workers that share one store file.
//
// Documents without a version tag are the legacy layout and are migrated once
// on load. A document carrying any other version is refused with
// ErrSchemaMismatch; nothing is read or written until an operator runs
// "reeler store upgrade" against a matching binary.
package records
