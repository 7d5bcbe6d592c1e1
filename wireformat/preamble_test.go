package wireformat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreambleRoundTrip(t *testing.T) {
	cases := []Preamble{
		{
			DigestAlgorithm: "sha256",
			Digest:          strings.Repeat("a", 64),
			Compression:     CompressionNone,
			Size:            11,
			Modified:        1700000000.5,
			Accessed:        1700000001.25,
			Path:            "dir/a.txt",
		},
		{
			DigestAlgorithm: "sha256",
			Digest:          strings.Repeat("b", 64),
			Compression:     CompressionGzip,
			Size:            1 << 20,
			Modified:        0,
			Accessed:        0,
			Path:            "weird, path = with, commas",
		},
	}
	for _, want := range cases {
		buf, err := want.Encode()
		require.NoError(t, err)
		require.Zero(t, len(buf)%16, "encoded preamble must be a multiple of 16 bytes")

		got, n, err := Parse(buf)
		require.NoError(t, err)
		require.Equal(t, want.Path, got.Path)
		require.Equal(t, want.Size, got.Size)
		require.Equal(t, want.Modified, got.Modified)
		require.Equal(t, want.Accessed, got.Accessed)
		require.Equal(t, want.DigestAlgorithm, got.DigestAlgorithm)
		require.Equal(t, want.Digest, got.Digest)
		wantZ := want.Compression
		if wantZ == "" {
			wantZ = CompressionNone
		}
		require.Equal(t, wantZ, got.Compression)
		require.LessOrEqual(t, n, len(buf))
	}
}

func TestPreambleDefaultsCompressionToNone(t *testing.T) {
	p := Preamble{DigestAlgorithm: "sha256", Digest: "ab", Path: "x"}
	buf, err := p.Encode()
	require.NoError(t, err)
	got, _, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, got.Compression)
}

func TestPreambleRejectsCommaInNonPathField(t *testing.T) {
	p := Preamble{DigestAlgorithm: "sha256,evil", Digest: "ab", Path: "x"}
	_, err := p.Encode()
	require.Error(t, err)
}

func TestPreambleParseRejectsTruncated(t *testing.T) {
	_, _, err := Parse([]byte{0xFF, 0xFF})
	require.Error(t, err)
}

func TestPreambleParseRejectsMissingPath(t *testing.T) {
	body := "v=1,z=none,sha256=ab,size=1,modified=0,accessed=0"
	buf := make([]byte, 2+len(body))
	buf[0] = byte(len(body))
	buf[1] = 0
	copy(buf[2:], body)
	_, _, err := Parse(buf)
	require.Error(t, err)
}
