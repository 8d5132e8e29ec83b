package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainCommit is the domain prefix for commit content addresses.
// Version suffix enables future algorithm migration.
const DomainCommit = "tally/commit/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest returns the hex SHA-256 of a sealed snapshot.
// The digest (not the ciphertext) is what goes into the commit hash.
func SnapshotDigest(encryptedSnapshot string) string {
	sum := sha256.Sum256([]byte(encryptedSnapshot))
	return hex.EncodeToString(sum[:])
}

// HashPayload builds the object hashed into a commit's content address.
//
// The first change contributes the flat fields (entityType, entityId,
// changeType, description, beforeData, afterData); any further changes are
// listed under additionalChanges. Commit fields contribute author, timestamp,
// deviceFingerprint, message, parentHash and the digest of the sealed snapshot,
// so altering any stored column changes the hash. Hash and Seq are excluded.
func HashPayload(c Commit, changes []Change) (map[string]any, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: commit has no changes", ErrSerialization)
	}

	first := changes[0]
	obj := changeFields(first)
	obj["author"] = c.Author
	obj["timestamp"] = c.Timestamp
	obj["deviceFingerprint"] = c.DeviceFingerprint
	obj["message"] = c.Message
	obj["parentHash"] = c.ParentHash
	obj["snapshotDigest"] = SnapshotDigest(c.EncryptedSnapshot)

	if len(changes) > 1 {
		extra := make([]any, 0, len(changes)-1)
		for _, ch := range changes[1:] {
			extra = append(extra, changeFields(ch))
		}
		obj["additionalChanges"] = extra
	}
	return obj, nil
}

func changeFields(ch Change) map[string]any {
	return map[string]any{
		"entityType":  string(ch.EntityType),
		"entityId":    ch.EntityID,
		"changeType":  string(ch.ChangeType),
		"description": ch.Description,
		"beforeData":  payloadValue(ch.BeforeData),
		"afterData":   payloadValue(ch.AfterData),
	}
}

// payloadValue maps a nil Payload interface to an untyped nil so it
// serializes as JSON null.
func payloadValue(p Payload) any {
	if p == nil {
		return nil
	}
	return p
}

// CommitHash computes the content address of a commit and its changes.
// Returns an error wrapping ErrSerialization if the payload cannot be
// canonically marshaled; callers must not persist anything in that case.
func CommitHash(c Commit, changes []Change) (string, error) {
	obj, err := HashPayload(c, changes)
	if err != nil {
		return "", err
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CommitHash: %w", err)
	}

	return hashWithDomain(DomainCommit, canonical), nil
}

// MustCommitHash is like CommitHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCommitHash(c Commit, changes []Change) string {
	h, err := CommitHash(c, changes)
	if err != nil {
		panic(err)
	}
	return h
}
