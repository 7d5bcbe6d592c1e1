package wireformat

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// CompressionNone and CompressionGzip are the only values the `z` preamble
// key may take (spec.md §4.2).
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// preambleKeyCount is the number of required, positional keys including
// path: v, z, <digest-algo>, size, modified, accessed, path. The parser
// relies on this to perform the "split N-1 times" rule that lets path
// values contain literal commas.
const preambleKeyCount = 7

// Preamble is the plaintext structure at the start of every object body
// (spec.md §4.2). It carries exactly the metadata needed to restore a file
// without consulting the BID: primary digest, size, timestamps, compression
// flag, and the (unrooted) original path.
type Preamble struct {
	DigestAlgorithm string
	Digest          string
	Compression     string // CompressionNone or CompressionGzip; empty means CompressionNone
	Size            int64
	Modified        float64
	Accessed        float64
	Path            string // path_without_root; may itself contain commas or '='
}

// Encode renders the preamble's `len` + ASCII body + zero padding, such that
// the total length (2 + len(body) + padding) is a multiple of 16 — the AES
// block size, so the cipher stream can be fed directly.
func (p Preamble) Encode() ([]byte, error) {
	z := p.Compression
	if z == "" {
		z = CompressionNone
	}
	if z != CompressionNone && z != CompressionGzip {
		return nil, fmt.Errorf("wireformat: invalid compression value %q", z)
	}
	if strings.ContainsAny(p.DigestAlgorithm, ",=") {
		return nil, fmt.Errorf("wireformat: digest algorithm must not contain ',' or '='")
	}

	fields := []string{
		"v=1",
		"z=" + z,
		p.DigestAlgorithm + "=" + p.Digest,
		"size=" + strconv.FormatInt(p.Size, 10),
		"modified=" + formatFloat(p.Modified),
		"accessed=" + formatFloat(p.Accessed),
		"path=" + p.Path, // must stay last: single-split rule protects commas in Path
	}
	for i, f := range fields[:len(fields)-1] {
		if strings.Contains(f, ",") {
			return nil, fmt.Errorf("wireformat: non-path preamble field %d contains a comma", i)
		}
	}
	body := strings.Join(fields, ",")

	bodyBytes := []byte(body)
	if len(bodyBytes) > 0xFFFF {
		return nil, fmt.Errorf("wireformat: preamble body too long: %d bytes", len(bodyBytes))
	}

	total := 2 + len(bodyBytes)
	pad := (16 - total%16) % 16
	out := make([]byte, total+pad)
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(bodyBytes)))
	copy(out[2:], bodyBytes)
	// out[2+len(bodyBytes):] is already zero from make().
	return out, nil
}

// ParsePreambleLen parses only the 2-byte length prefix, returning the byte
// length of the body (not including padding), so a caller can decide how
// many more bytes to read before calling Parse.
func ParsePreambleLen(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("wireformat: short preamble length prefix")
	}
	return int(binary.LittleEndian.Uint16(buf[0:2])), nil
}

// Parse decodes a Preamble from buf, which must contain at least
// 2+bodyLen bytes (the length prefix and the ASCII body; trailing padding
// bytes, if present, are ignored). It returns the number of bytes consumed
// not including padding, i.e. 2+bodyLen.
func Parse(buf []byte) (Preamble, int, error) {
	bodyLen, err := ParsePreambleLen(buf)
	if err != nil {
		return Preamble{}, 0, fmt.Errorf("%w: %v", ErrMalformedPreamble, err)
	}
	need := 2 + bodyLen
	if len(buf) < need {
		return Preamble{}, 0, fmt.Errorf("%w: short preamble body: need %d bytes, got %d", ErrMalformedPreamble, need, len(buf))
	}
	body := string(buf[2:need])

	parts := strings.SplitN(body, ",", preambleKeyCount)
	if len(parts) != preambleKeyCount {
		return Preamble{}, 0, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedPreamble, preambleKeyCount, len(parts))
	}

	var p Preamble
	for i, part := range parts[:len(parts)-1] {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Preamble{}, 0, fmt.Errorf("%w: field %d missing '='", ErrMalformedPreamble, i)
		}
		switch {
		case i == 0:
			if k != "v" || v != "1" {
				return Preamble{}, 0, fmt.Errorf("%w: unsupported version field %q=%q", ErrMalformedPreamble, k, v)
			}
		case i == 1:
			if k != "z" {
				return Preamble{}, 0, fmt.Errorf("%w: expected 'z' field, got %q", ErrMalformedPreamble, k)
			}
			if v != CompressionNone && v != CompressionGzip {
				return Preamble{}, 0, fmt.Errorf("%w: invalid compression value %q", ErrMalformedPreamble, v)
			}
			p.Compression = v
		case i == 2:
			p.DigestAlgorithm = k
			p.Digest = v
		case k == "size":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Preamble{}, 0, fmt.Errorf("%w: invalid size %q: %v", ErrMalformedPreamble, v, err)
			}
			p.Size = n
		case k == "modified":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Preamble{}, 0, fmt.Errorf("%w: invalid modified %q: %v", ErrMalformedPreamble, v, err)
			}
			p.Modified = f
		case k == "accessed":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Preamble{}, 0, fmt.Errorf("%w: invalid accessed %q: %v", ErrMalformedPreamble, v, err)
			}
			p.Accessed = f
		default:
			return Preamble{}, 0, fmt.Errorf("%w: unexpected field %q", ErrMalformedPreamble, k)
		}
	}

	last := parts[len(parts)-1]
	k, v, ok := strings.Cut(last, "=")
	if !ok || k != "path" {
		return Preamble{}, 0, fmt.Errorf("%w: final field must be 'path=...'", ErrMalformedPreamble)
	}
	p.Path = v

	return p, need, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
