// Package storage keeps the firing journal: an append-only record of every
// firing, fault, rejection and task run published on the event bus.
//
// Drivers:
//   - "none": journal disabled (Open returns a nil Store)
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file": JSON Lines file
//
// The journal is an audit trail only. Schedules never read it back.
package storage
