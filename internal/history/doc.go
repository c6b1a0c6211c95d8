// Package history keeps an append-only SQLite journal of record status
// transitions.
//
// The JSON record store stays the source of truth for current state. The
// journal answers "what happened to #42 and who did it" after the store has
// been overwritten: each successful coordinator transition appends one event
// row with the record id, the transition kind, the resulting statuses, and the
// worker host. The database is disposable; deleting it loses only history.
package history
