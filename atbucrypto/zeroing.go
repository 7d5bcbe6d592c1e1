// Package atbucrypto implements the object body cipher (AES-CBC with
// PKCS7 padding, spec.md §4.2) and password-derived key handling
// (spec.md §9 "Password-derived keys and zeroing"), adapting the
// zeroing idiom used by the pack's CodeCracker-oss-Picocrypt-NG
// internal/crypto package to atbu-go's AES-CBC cipher instead of
// XChaCha20/Serpent.
package atbucrypto

import "crypto/subtle"

// SecureZero overwrites b with zeros in a way the compiler cannot optimize
// away, reducing the window a key or derived key lives in memory. Go's
// garbage collector means this cannot guarantee erasure, only narrow the
// exposure.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// KeyMaterial wraps sensitive key bytes with deterministic, idempotent
// zeroing on Close. Passphrases and derived keys flow through a
// KeyMaterial rather than a bare []byte so every holder has one place to
// release it.
type KeyMaterial struct {
	data   []byte
	closed bool
}

// NewKeyMaterial copies data into an owned KeyMaterial.
func NewKeyMaterial(data []byte) *KeyMaterial {
	km := &KeyMaterial{data: make([]byte, len(data))}
	copy(km.data, data)
	return km
}

// Bytes returns the underlying key bytes, or nil once Close has been
// called.
func (km *KeyMaterial) Bytes() []byte {
	if km == nil || km.closed {
		return nil
	}
	return km.data
}

// Close zeros the underlying bytes and marks the KeyMaterial closed. Safe
// to call multiple times and on a nil receiver.
func (km *KeyMaterial) Close() {
	if km == nil || km.closed {
		return
	}
	SecureZero(km.data)
	km.data = nil
	km.closed = true
}
