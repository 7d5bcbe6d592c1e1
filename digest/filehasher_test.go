package digest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileHasherBasic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o644))

	fh := NewFileHasher(SHA256)
	res, err := fh.Hash(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), res.SizeInBytes)
	require.NotEmpty(t, res.Digest)
	require.Equal(t, 1, res.Attempts)
}

func TestFileHasherDeterministic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("same content"), 0o644))

	fh := NewFileHasher(SHA256)
	r1, err := fh.Hash(context.Background(), p)
	require.NoError(t, err)
	r2, err := fh.Hash(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, r1.Digest, r2.Digest)
}

func TestFileHasherMissingFile(t *testing.T) {
	fh := NewFileHasher(SHA256)
	_, err := fh.Hash(context.Background(), "/nonexistent/does/not/exist")
	require.Error(t, err)
}
