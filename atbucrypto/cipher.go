package atbucrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// BlockSize is the AES block size, and therefore the PKCS7 padding modulus
// and the required IV length (spec.md §4.2).
const BlockSize = aes.BlockSize

// NewIV returns a fresh random 16-byte AES IV.
func NewIV() ([]byte, error) {
	iv := make([]byte, BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("atbucrypto: generating IV: %w", err)
	}
	return iv, nil
}

// PKCS7Pad appends PKCS7 padding to round len(data) up to a multiple of
// BlockSize. At least one byte of padding is always added, so data whose
// length is already a multiple of BlockSize gets a full block of padding.
func PKCS7Pad(data []byte) []byte {
	padLen := BlockSize - len(data)%BlockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// PKCS7Unpad validates and strips PKCS7 padding, returning an error if the
// padding is malformed (wrong length byte, or insufficient/inconsistent
// padding bytes).
func PKCS7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("atbucrypto: padded data is not a multiple of the block size")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > BlockSize || padLen > len(data) {
		return nil, fmt.Errorf("atbucrypto: invalid PKCS7 padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("atbucrypto: inconsistent PKCS7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// Encryptor encrypts a plaintext stream in AES-CBC/PKCS7 blocks. Callers
// feed it whole plaintext chunks; the final chunk must be marked via
// Final so padding is applied exactly once.
type Encryptor struct {
	mode cipher.BlockMode
}

// NewEncryptor constructs an Encryptor keyed by key (16/24/32 bytes for
// AES-128/192/256) using iv as the CBC initialization vector.
func NewEncryptor(key, iv []byte) (*Encryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("atbucrypto: %w", err)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("atbucrypto: IV must be %d bytes, got %d", BlockSize, len(iv))
	}
	return &Encryptor{mode: cipher.NewCBCEncrypter(block, iv)}, nil
}

// EncryptFinal pads plaintext with PKCS7 and encrypts it into a newly
// allocated buffer, returning the ciphertext. Use this for the common case of encrypting a
// complete in-memory body (the preamble + file bytes); for true streaming
// of large files, pad only the final call's input and feed
// already-block-aligned chunks to successive calls sharing one Encryptor.
func (e *Encryptor) EncryptFinal(plaintext []byte) []byte {
	padded := PKCS7Pad(plaintext)
	out := make([]byte, len(padded))
	e.mode.CryptBlocks(out, padded)
	return out
}

// EncryptBlocks encrypts an already block-aligned chunk of plaintext
// into a newly allocated buffer with the running CBC state, for streaming large bodies across
// multiple upload chunks. Callers MUST pad (PKCS7Pad) only the very last
// chunk before calling this.
func (e *Encryptor) EncryptBlocks(plaintext []byte) ([]byte, error) {
	if len(plaintext)%BlockSize != 0 {
		return nil, fmt.Errorf("atbucrypto: streamed chunk of %d bytes is not block-aligned", len(plaintext))
	}
	out := make([]byte, len(plaintext))
	e.mode.CryptBlocks(out, plaintext)
	return out, nil
}

// Decryptor mirrors Encryptor for AES-CBC decryption.
type Decryptor struct {
	mode cipher.BlockMode
}

// NewDecryptor constructs a Decryptor keyed by key using iv as the CBC
// initialization vector (the same IV the Encryptor used).
func NewDecryptor(key, iv []byte) (*Decryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("atbucrypto: %w", err)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("atbucrypto: IV must be %d bytes, got %d", BlockSize, len(iv))
	}
	return &Decryptor{mode: cipher.NewCBCDecrypter(block, iv)}, nil
}

// DecryptFinal decrypts a complete ciphertext and strips its PKCS7 padding.
func (d *Decryptor) DecryptFinal(ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("atbucrypto: ciphertext of %d bytes is not block-aligned", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	d.mode.CryptBlocks(out, ciphertext)
	return PKCS7Unpad(out)
}

// DecryptBlocks decrypts an already block-aligned ciphertext chunk without
// removing padding, for streaming decryption where the caller strips
// padding from the final chunk itself once EOF is known.
func (d *Decryptor) DecryptBlocks(ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("atbucrypto: streamed chunk of %d bytes is not block-aligned", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	d.mode.CryptBlocks(out, ciphertext)
	return out, nil
}
