package atbucrypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPKCS7RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 33} {
		data := bytes.Repeat([]byte{0xAB}, n)
		padded := PKCS7Pad(data)
		require.Zero(t, len(padded)%BlockSize)
		require.Greater(t, len(padded), len(data)-1)
		got, err := PKCS7Unpad(padded)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
}

func TestPKCS7UnpadRejectsGarbage(t *testing.T) {
	_, err := PKCS7Unpad([]byte{1, 2, 3})
	require.Error(t, err)

	bad := make([]byte, BlockSize)
	bad[len(bad)-1] = 0
	_, err = PKCS7Unpad(bad)
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeyLen)
	for i := range key {
		key[i] = byte(i)
	}
	iv, err := NewIV()
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	enc, err := NewEncryptor(key, iv)
	require.NoError(t, err)
	ciphertext := enc.EncryptFinal(plaintext)
	require.Zero(t, len(ciphertext)%BlockSize)

	dec, err := NewDecryptor(key, iv)
	require.NoError(t, err)
	got, err := dec.DecryptFinal(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	pass := NewKeyMaterial([]byte("correct horse battery staple"))
	defer pass.Close()
	salt := []byte("some-salt-bytes-here")

	k1, err := DeriveKey(pass, salt, 10)
	require.NoError(t, err)
	defer k1.Close()
	k2, err := DeriveKey(pass, salt, 10)
	require.NoError(t, err)
	defer k2.Close()
	require.Equal(t, k1.Bytes(), k2.Bytes())
	require.Len(t, k1.Bytes(), KeyLen)
}

func TestDeriveSubkeyDeterministicAndDistinctByInfo(t *testing.T) {
	master := NewKeyMaterial([]byte("0123456789abcdef0123456789abcdef"))
	defer master.Close()

	a1, err := DeriveSubkey(master, "object-body", KeyLen)
	require.NoError(t, err)
	defer a1.Close()
	a2, err := DeriveSubkey(master, "object-body", KeyLen)
	require.NoError(t, err)
	defer a2.Close()
	require.Equal(t, a1.Bytes(), a2.Bytes())

	b, err := DeriveSubkey(master, "object-name-salt", KeyLen)
	require.NoError(t, err)
	defer b.Close()
	require.NotEqual(t, a1.Bytes(), b.Bytes())
}

func TestKeyMaterialCloseZeroes(t *testing.T) {
	km := NewKeyMaterial([]byte{1, 2, 3, 4})
	km.Close()
	require.Nil(t, km.Bytes())
	km.Close() // idempotent
}

func TestResolveSecretLiteral(t *testing.T) {
	km, err := ResolveSecret("plain-secret")
	require.NoError(t, err)
	defer km.Close()
	require.Equal(t, "plain-secret", string(km.Bytes()))
}

func TestResolveSecretFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(p, []byte("file-secret\n"), 0o600))
	km, err := ResolveSecret(p)
	require.NoError(t, err)
	defer km.Close()
	require.Equal(t, "file-secret", string(km.Bytes()))
}

func TestResolveSecretEnvPointsAtFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(p, []byte("env-secret"), 0o600))
	t.Setenv("ATBU_TEST_SECRET_PATH", p)

	km, err := ResolveSecret("ATBU_TEST_SECRET_PATH")
	require.NoError(t, err)
	defer km.Close()
	require.Equal(t, "env-secret", string(km.Bytes()))
}
