// Package store provides SQLite-backed durable storage for the budget history.
//
// The store implements an append-only log with:
//   - Commits: hashed, sealed history events linked by parent hash
//   - Changes: the before/after tuples each commit carries
//
// # Critical Patterns
//
// Atomic append:
//   - A commit and its changes are written in one transaction
//   - A commit without its changes (or vice versa) is never observable
//
// Logical order:
//   - Commits are ordered by seq (insertion order), NEVER by timestamp
//   - History reads return most-recent-first by seq
//
// Append-only:
//   - No method updates or deletes an individual commit or change
//   - Clear wipes the whole history and is the only destructive operation
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Schema changes are versioned migrations under migrations/, embedded in the
// binary and applied by golang-migrate on Open.
package store
