package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tally/internal/model"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindStorage},
			want: "StorageError",
		},
		{
			name: "op and cause",
			err:  newError(KindEncryption, "track debt", errors.New("no key")),
			want: "EncryptionError: track debt: no key",
		},
		{
			name: "entity context",
			err: newError(KindValidation, "track entity", errors.New("bad")).withEntity([]model.Change{
				{EntityType: model.EntityDebt, EntityID: "debt-1"},
			}),
			want: "ValidationError: track entity: bad (entity=debt/debt-1)",
		},
		{
			name: "commit context",
			err:  &Error{Kind: KindNotFound, Op: "restore", Hash: "abcdef0123456789"},
			want: "NotFoundError: restore (commit=abcdef01)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_KindHelpers(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("outer: %w", newError(KindDecryption, "restore", cause))

	assert.Equal(t, KindDecryption, KindOf(wrapped))
	assert.True(t, IsDecryption(wrapped))
	assert.False(t, IsEncryption(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Equal(t, ErrorKind(""), KindOf(nil))

	assert.True(t, IsSerialization(&Error{Kind: KindSerialization}))
	assert.True(t, IsStorage(&Error{Kind: KindStorage}))
	assert.True(t, IsNotFound(&Error{Kind: KindNotFound}))
	assert.True(t, IsValidation(&Error{Kind: KindValidation}))
	assert.True(t, IsEncryption(&Error{Kind: KindEncryption}))
}

func TestError_WithEntityNoChanges(t *testing.T) {
	err := newError(KindStorage, "op", nil).withEntity(nil)
	assert.Empty(t, err.EntityType)
	assert.Equal(t, "StorageError: op", err.Error())
}
