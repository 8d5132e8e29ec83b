// Package seal encrypts and decrypts commit snapshots.
//
// The caller owns the key. This package never derives, stores or caches keys;
// every Sealer is built from the key supplied for the current operation.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tally/internal/model"
)

var (
	// ErrWeakKey is returned for empty, wrongly sized or placeholder keys.
	ErrWeakKey = errors.New("weak or invalid snapshot key")

	// ErrDecrypt is returned when a sealed value cannot be opened, either
	// because the key is wrong or the ciphertext was altered.
	ErrDecrypt = errors.New("snapshot decryption failed")
)

// Sealer seals and opens snapshots using AES-GCM.
type Sealer struct {
	aead cipher.AEAD
	rand io.Reader
}

// New builds a Sealer from a raw AES key of 16, 24 or 32 bytes.
func New(key []byte) (*Sealer, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead, rand: rand.Reader}, nil
}

// CheckKey rejects keys that must never be used for real data.
// A key made of a single repeated byte (e.g. the all-42s placeholder) counts as weak.
func CheckKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: key length %d, want 16, 24 or 32 bytes", ErrWeakKey, len(key))
	}
	for _, b := range key[1:] {
		if b != key[0] {
			return nil
		}
	}
	return fmt.Errorf("%w: key is a single repeated byte", ErrWeakKey)
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	if s == nil || s.aead == nil {
		return "", fmt.Errorf("sealer is not configured")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)
	payload := append(nonce, ciphertext...)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	if s == nil || s.aead == nil {
		return nil, fmt.Errorf("sealer is not configured")
	}

	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: decode sealed value: %v", ErrDecrypt, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed value is too short", ErrDecrypt)
	}
	nonce := payload[:nonceSize]
	ciphertext := payload[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// SealSnapshot serializes a snapshot as canonical JSON and seals it.
func (s *Sealer) SealSnapshot(snap model.Snapshot) (string, error) {
	data, err := model.MarshalCanonical(snap)
	if err != nil {
		return "", err
	}
	return s.Seal(data)
}

// OpenSnapshot opens a sealed snapshot and decodes it.
func (s *Sealer) OpenSnapshot(sealed string) (model.Snapshot, error) {
	data, err := s.Open(sealed)
	if err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
