package atbucrypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KeyLen is the AES-256 key length produced by DeriveKey.
const KeyLen = 32

// DefaultKDFIterations follows current PBKDF2-HMAC-SHA256 guidance. Callers
// persisting a backup long-term must record both the salt and the iteration
// count used alongside it, since every later session has to re-derive the
// identical key from the same passphrase.
const DefaultKDFIterations = 600_000

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using
// PBKDF2-HMAC-SHA256. The returned KeyMaterial must be Closed by the
// caller once the key is no longer needed.
func DeriveKey(passphrase *KeyMaterial, salt []byte, iterations int) (*KeyMaterial, error) {
	if passphrase == nil || len(passphrase.Bytes()) == 0 {
		return nil, fmt.Errorf("atbucrypto: empty passphrase")
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	key := pbkdf2.Key(passphrase.Bytes(), salt, iterations, KeyLen, sha256.New)
	km := NewKeyMaterial(key)
	SecureZero(key)
	return km, nil
}

// DeriveSubkey expands master into a purpose-scoped subkey of length n
// using HKDF-SHA256, keyed by info (e.g. "object-body" or
// "object-name-salt"). The PBKDF2 pass in DeriveKey is deliberately the
// only expensive step per passphrase; every other key this package needs
// — a distinct key for the object-name hash salt so it can't be
// reconstructed from the body key, for instance — is a cheap HKDF expand
// of that one master key rather than a second PBKDF2 run.
func DeriveSubkey(master *KeyMaterial, info string, n int) (*KeyMaterial, error) {
	if master == nil || len(master.Bytes()) == 0 {
		return nil, fmt.Errorf("atbucrypto: empty master key")
	}
	if n <= 0 {
		n = KeyLen
	}
	r := hkdf.New(sha256.New, master.Bytes(), nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("atbucrypto: deriving subkey %q: %w", info, err)
	}
	km := NewKeyMaterial(out)
	SecureZero(out)
	return km, nil
}
