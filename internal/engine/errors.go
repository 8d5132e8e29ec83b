package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/model"
)

// ErrorKind categorizes tracker errors.
type ErrorKind string

const (
	// KindSerialization indicates a payload could not be canonically serialized.
	KindSerialization ErrorKind = "SerializationError"

	// KindEncryption indicates the snapshot could not be sealed.
	KindEncryption ErrorKind = "EncryptionError"

	// KindDecryption indicates a sealed snapshot could not be opened.
	KindDecryption ErrorKind = "DecryptionError"

	// KindStorage indicates a database read or write failed.
	KindStorage ErrorKind = "StorageError"

	// KindNotFound indicates the referenced commit does not exist.
	KindNotFound ErrorKind = "NotFoundError"

	// KindValidation indicates a malformed change tuple or payload.
	KindValidation ErrorKind = "ValidationError"
)

// Error represents a failed tracker operation.
//
// Error includes structured fields for diagnostics so the failure can be
// logged with its entity and commit context.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op is the tracker operation that failed (e.g. "track debt").
	Op string

	// EntityType and EntityID identify the affected entity, when known.
	EntityType model.EntityType
	EntityID   string

	// Hash identifies the affected commit, when known.
	Hash string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	var ctx []string
	if e.EntityType != "" {
		ctx = append(ctx, fmt.Sprintf("entity=%s/%s", e.EntityType, e.EntityID))
	}
	if e.Hash != "" {
		ctx = append(ctx, "commit="+model.ShortHash(e.Hash))
	}
	if len(ctx) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(ctx, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a tracker error, or "" if err is not one.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsSerialization reports whether err is a SerializationError.
func IsSerialization(err error) bool { return KindOf(err) == KindSerialization }

// IsEncryption reports whether err is an EncryptionError.
func IsEncryption(err error) bool { return KindOf(err) == KindEncryption }

// IsDecryption reports whether err is a DecryptionError.
func IsDecryption(err error) bool { return KindOf(err) == KindDecryption }

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// withEntity attaches entity context from the first change.
func (e *Error) withEntity(changes []model.Change) *Error {
	if len(changes) > 0 {
		e.EntityType = changes[0].EntityType
		e.EntityID = changes[0].EntityID
	}
	return e
}
