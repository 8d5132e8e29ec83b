package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EntityType is the category of budget data affected by a change.
type EntityType string

const (
	EntityUnassignedCash EntityType = "unassignedCash"
	EntityActualBalance  EntityType = "actualBalance"
	EntityDebt           EntityType = "debt"
	EntityEnvelope       EntityType = "envelope"
	EntityTransaction    EntityType = "transaction"
	EntityBill           EntityType = "bill"
)

// SingletonID is the entity id used for entities that exist once per budget.
const SingletonID = "main"

// EntityTypes lists every valid entity type in display order.
var EntityTypes = []EntityType{
	EntityUnassignedCash,
	EntityActualBalance,
	EntityDebt,
	EntityEnvelope,
	EntityTransaction,
	EntityBill,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, et := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// IsSingleton reports whether the entity type always uses SingletonID.
func (t EntityType) IsSingleton() bool {
	return t == EntityUnassignedCash || t == EntityActualBalance
}

// Noun returns a lower-case human name used in descriptions ("unassigned cash").
func (t EntityType) Noun() string {
	switch t {
	case EntityUnassignedCash:
		return "unassigned cash"
	case EntityActualBalance:
		return "actual balance"
	default:
		return string(t)
	}
}

// ParseEntityType parses a user-supplied entity type.
// Matching is case-insensitive.
func ParseEntityType(s string) (EntityType, error) {
	for _, et := range EntityTypes {
		if strings.EqualFold(string(et), strings.TrimSpace(s)) {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ChangeType is the kind of mutation recorded by a change.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// Valid reports whether c is add, modify or delete.
func (c ChangeType) Valid() bool {
	return c == ChangeAdd || c == ChangeModify || c == ChangeDelete
}

// ParseChangeType parses a user-supplied change type.
func ParseChangeType(s string) (ChangeType, error) {
	c := ChangeType(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown change type %q: must be add, modify or delete", s)
	}
	return c, nil
}

// Commit is an immutable, hashed record of one logical change event.
type Commit struct {
	Hash              string `json:"hash"`              // Content address (see CommitHash)
	Seq               int64  `json:"seq"`               // Store insertion order, not hashed
	Timestamp         int64  `json:"timestamp"`         // Epoch milliseconds
	Message           string `json:"message"`           // Human-readable description
	Author            string `json:"author"`            // Free-text actor identity
	ParentHash        string `json:"parentHash"`        // Previous commit, empty for roots
	EncryptedSnapshot string `json:"encryptedSnapshot"` // Opaque sealed Snapshot
	DeviceFingerprint string `json:"deviceFingerprint"` // Provenance only
}

// ShortHash returns the first 8 characters of the commit hash.
func (c Commit) ShortHash() string {
	return ShortHash(c.Hash)
}

// ShortHash abbreviates a hash for display.
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

// Change is the structured before/after description of what a commit altered.
type Change struct {
	CommitHash  string     `json:"commitHash"`
	EntityType  EntityType `json:"entityType"`
	EntityID    string     `json:"entityId"`
	ChangeType  ChangeType `json:"changeType"`
	Description string     `json:"description"`
	BeforeData  Payload    `json:"beforeData"`
	AfterData   Payload    `json:"afterData"`
}

// Errors returned by Change.Validate.
var (
	ErrInvalidChange = errors.New("invalid change")
)

// Validate checks the change tuple invariants:
//   - entity type and change type are known
//   - entity id is non-empty ("main" for singletons)
//   - add has no beforeData, delete has no afterData, modify has both
//   - payload variants match the entity type
func (c Change) Validate() error {
	if !c.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidChange, c.EntityType)
	}
	if !c.ChangeType.Valid() {
		return fmt.Errorf("%w: unknown change type %q", ErrInvalidChange, c.ChangeType)
	}
	if strings.TrimSpace(c.EntityID) == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidChange)
	}
	if c.EntityType.IsSingleton() && c.EntityID != SingletonID {
		return fmt.Errorf("%w: %s must use entity id %q", ErrInvalidChange, c.EntityType, SingletonID)
	}

	switch c.ChangeType {
	case ChangeAdd:
		if c.BeforeData != nil {
			return fmt.Errorf("%w: add must not carry beforeData", ErrInvalidChange)
		}
		if c.AfterData == nil {
			return fmt.Errorf("%w: add requires afterData", ErrInvalidChange)
		}
	case ChangeDelete:
		if c.AfterData != nil {
			return fmt.Errorf("%w: delete must not carry afterData", ErrInvalidChange)
		}
		if c.BeforeData == nil {
			return fmt.Errorf("%w: delete requires beforeData", ErrInvalidChange)
		}
	case ChangeModify:
		if c.BeforeData == nil || c.AfterData == nil {
			return fmt.Errorf("%w: modify requires beforeData and afterData", ErrInvalidChange)
		}
	}

	for _, p := range []Payload{c.BeforeData, c.AfterData} {
		if p != nil && p.EntityType() != c.EntityType {
			return fmt.Errorf("%w: %s payload on %s change", ErrInvalidChange, p.EntityType(), c.EntityType)
		}
	}
	return nil
}

// ChangeRecord is a change joined with the commit that carries it, as
// returned by history queries.
type ChangeRecord struct {
	Change
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Author    string `json:"author"`
	Message   string `json:"message"`
}

// UnmarshalJSON decodes a change record. It is needed because the embedded
// Change's decoder would otherwise be promoted and drop the commit fields.
func (r *ChangeRecord) UnmarshalJSON(data []byte) error {
	var meta struct {
		Seq       int64  `json:"seq"`
		Timestamp int64  `json:"timestamp"`
		Author    string `json:"author"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	var ch Change
	if err := json.Unmarshal(data, &ch); err != nil {
		return err
	}
	*r = ChangeRecord{
		Change:    ch,
		Seq:       meta.Seq,
		Timestamp: meta.Timestamp,
		Author:    meta.Author,
		Message:   meta.Message,
	}
	return nil
}
