// Package store provides SQLite-backed durable storage for session event logs.
//
// The store is an append-only log with:
//   - Sessions: one row per recognizer lifetime (reinitialize to dispose)
//   - Events: every session transition and engine event, in arrival order
//
// Ordering uses the events.seq autoincrement column, never timestamps, so a
// trace reads back in the order the Recorder wrote it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
