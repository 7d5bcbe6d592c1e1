package wireformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripNoIV(t *testing.T) {
	h, err := NewHeader(false, nil)
	require.NoError(t, err)
	buf, err := h.Encode()
	require.NoError(t, err)
	require.Len(t, buf, 2)

	got, n, err := ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, h, got)
}

func TestHeaderRoundTripWithIV(t *testing.T) {
	iv := make([]byte, IVSize)
	for i := range iv {
		iv[i] = byte(i)
	}
	h, err := NewHeader(true, iv)
	require.NoError(t, err)
	buf, err := h.Encode()
	require.NoError(t, err)
	require.Len(t, buf, 2+1+IVSize)

	got, n, err := ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, 2+1+IVSize, n)
	require.Equal(t, h.Version, got.Version)
	require.Equal(t, h.Flags, got.Flags)
	require.Equal(t, iv, got.IV)
}

func TestNewHeaderRejectsBadIVLength(t *testing.T) {
	_, err := NewHeader(true, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestParseHeaderRejectsBadVersion(t *testing.T) {
	_, _, err := ParseHeader([]byte{0x02, 0x00})
	require.Error(t, err)
}

func TestParseHeaderShortBuffer(t *testing.T) {
	_, _, err := ParseHeader([]byte{0x01})
	require.Error(t, err)
}
