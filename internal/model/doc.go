// Package model provides the foundational types of the budget history engine.
//
// This package contains the commit/change data model, the typed entity payloads,
// money handling, and the canonical serialization used for content addressing.
// All other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - NO float types in hashed data - money is int64 cents (Amount)
//   - Entity payloads are a closed sum type (Payload), one variant per EntityType
//   - Commits and changes are immutable once built; the store only appends
//   - Commit hashes use RFC 8785 canonical JSON + SHA-256 with domain separation
//   - All JSON tags use camelCase to match the exported history bundle format
package model
