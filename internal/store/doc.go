// Package store persists bridge options in a local SQLite database.
//
// It backs the runtime-settings write-through mirror: the in-memory copy is
// authoritative while the process runs, the stored copy seeds it after a
// restart. Options live in a single key/value table with JSON values, so
// new option kinds need no schema changes.
package store
