// Package engine implements the budget history tracker.
//
// The tracker is the only component that writes history. It turns budget
// mutations into hashed, sealed commits and serves the read side (history
// views, integrity verification, restore and export).
//
// ARCHITECTURE:
//
// Commit building:
// Every write goes through one path:
//  1. Change tuples are built by internal/recorder and validated
//  2. The snapshot of the new state is sealed with the caller's key
//  3. Timestamp and device fingerprint are taken from injected providers
//  4. The commit hash is computed over the canonical payload
//  5. Commit and changes are appended in one store transaction
//
// Any failing step aborts the whole write. Nothing is persisted and the
// caller receives a typed *Error (SerializationError, EncryptionError,
// StorageError, ...).
//
// Dependencies are injected:
// The store, key provider, identity provider, clock and logger are all
// passed to New. The tracker holds no global state and never stores keys.
//
// Read side:
// History queries degrade gracefully. A failing read is logged and returns
// an empty result, because viewing history is never critical to budgeting.
// Integrity verification reports problems in its result instead of failing.
//
// Notifications:
// Consumers that need to react to new history (caches, viewers) call
// Subscribe and receive Notification values on a channel. Sends never
// block the writer.
package engine
