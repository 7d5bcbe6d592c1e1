// Package wireformat implements the per-object on-wire byte layout
// described in spec.md §4.2: a plaintext header, followed by a body whose
// plaintext begins with a preamble describing the original file.
package wireformat

import (
	"fmt"
)

// HeaderVersion is the only version this implementation produces or
// accepts.
const HeaderVersion byte = 0x01

// FlagIV is bit 0 of the header's flags byte: when set, the header carries
// a 16-byte AES IV immediately following the length byte.
const FlagIV byte = 1 << 0

// IVSize is the AES block size, and therefore the only valid length for an
// embedded IV.
const IVSize = 16

// Header is the plaintext prefix of every stored object. It is always
// present and legible without any key material, which is what lets
// `decrypt` and `recover` operate from header-and-preamble alone
// (spec.md §8 scenario 6).
type Header struct {
	Version byte
	Flags   byte
	IV      []byte // len(IV) == IVSize iff Flags&FlagIV != 0
}

// HasIV reports whether the header carries an IV.
func (h Header) HasIV() bool { return h.Flags&FlagIV != 0 }

// Encode renders the header to its 2-byte (no IV) or 19-byte (with IV) wire
// form.
func (h Header) Encode() ([]byte, error) {
	if h.Flags&FlagIV != 0 && len(h.IV) != IVSize {
		return nil, fmt.Errorf("wireformat: header flags request an IV but IV is %d bytes, want %d", len(h.IV), IVSize)
	}
	if h.Flags&FlagIV == 0 {
		return []byte{h.Version, h.Flags}, nil
	}
	b := make([]byte, 0, 3+IVSize)
	b = append(b, h.Version, h.Flags, byte(IVSize))
	b = append(b, h.IV...)
	return b, nil
}

// NewHeader builds a Header, embedding iv (which must be exactly IVSize
// bytes) when encrypted is true.
func NewHeader(encrypted bool, iv []byte) (Header, error) {
	h := Header{Version: HeaderVersion}
	if !encrypted {
		return h, nil
	}
	if len(iv) != IVSize {
		return Header{}, fmt.Errorf("wireformat: IV must be %d bytes, got %d", IVSize, len(iv))
	}
	h.Flags |= FlagIV
	h.IV = append([]byte(nil), iv...)
	return h, nil
}

// HeaderByteLen returns the number of header bytes ParseHeader will consume
// given the already-read flags byte: 2 total when no IV, 2+1+IVSize when an
// IV is present. Callers that only have the first byte should read at least
// 2 bytes before calling this.
func HeaderByteLen(flags byte) int {
	if flags&FlagIV == 0 {
		return 2
	}
	return 2 + 1 + IVSize
}

// ParseHeader decodes a Header from buf, which must contain at least the
// full header (2 or 19 bytes depending on flags). It returns the number of
// bytes consumed.
func ParseHeader(buf []byte) (Header, int, error) {
	if len(buf) < 2 {
		return Header{}, 0, fmt.Errorf("wireformat: short header: got %d bytes, need at least 2", len(buf))
	}
	h := Header{Version: buf[0], Flags: buf[1]}
	if h.Version != HeaderVersion {
		return Header{}, 0, fmt.Errorf("wireformat: unsupported header version 0x%02x", h.Version)
	}
	if h.Flags&FlagIV == 0 {
		return h, 2, nil
	}
	if len(buf) < 3 {
		return Header{}, 0, fmt.Errorf("wireformat: short header: IV flag set but no iv_len byte")
	}
	ivLen := int(buf[2])
	if ivLen != IVSize {
		return Header{}, 0, fmt.Errorf("wireformat: iv_len must be %d, got %d", IVSize, ivLen)
	}
	total := 3 + IVSize
	if len(buf) < total {
		return Header{}, 0, fmt.Errorf("wireformat: short header: need %d bytes, got %d", total, len(buf))
	}
	h.IV = append([]byte(nil), buf[3:total]...)
	return h, total, nil
}
