package engine

import (
	"context"
	"errors"
)

// ErrNoKey is returned by key providers that have no key for the session.
var ErrNoKey = errors.New("no snapshot key available")

// KeyProvider supplies the symmetric snapshot key.
//
// The key is requested once per operation and dropped afterwards; the
// tracker never stores or derives keys. Deriving the key from a password is
// the provider's job.
type KeyProvider interface {
	SnapshotKey(ctx context.Context) ([]byte, error)
}

// KeyFunc adapts a function to the KeyProvider interface.
type KeyFunc func(ctx context.Context) ([]byte, error)

// SnapshotKey calls f.
func (f KeyFunc) SnapshotKey(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticKey returns a provider that always supplies a copy of key.
// A nil or empty key makes every operation fail with ErrNoKey.
func StaticKey(key []byte) KeyProvider {
	held := append([]byte(nil), key...)
	return KeyFunc(func(context.Context) ([]byte, error) {
		if len(held) == 0 {
			return nil, ErrNoKey
		}
		return append([]byte(nil), held...), nil
	})
}

// IdentityProvider supplies the current user and device.
type IdentityProvider interface {
	// Author returns the current user's display identity, or "" if unknown.
	Author(ctx context.Context) string

	// DeviceFingerprint identifies the originating device (provenance only).
	DeviceFingerprint(ctx context.Context) string
}

// StaticIdentity is an IdentityProvider with fixed values.
type StaticIdentity struct {
	User   string
	Device string
}

// Author returns the fixed user.
func (s StaticIdentity) Author(context.Context) string { return s.User }

// DeviceFingerprint returns the fixed device.
func (s StaticIdentity) DeviceFingerprint(context.Context) string { return s.Device }
