// Package digest implements the streaming content hasher used throughout
// atbu-go to identify file content independent of path or storage backend
// (spec.md §4.1).
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algorithm names recognized by New.
const (
	SHA256 = "sha256"
	SHA512 = "sha512"
)

// DefaultAlgorithm is the primary digest algorithm used for content
// identity, overridable for tests the way the original's global_hasher
// module allowed swapping the shared hasher.
var DefaultAlgorithm = SHA256

// New returns a fresh hash.Hash for the named algorithm.
func New(algo string) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("digest: unknown algorithm %q", algo)
	}
}

// Streaming wraps a hash.Hash with the name it was constructed from, so
// Finalize can report a self-describing hex digest without the caller
// needing to track the algorithm separately.
type Streaming struct {
	algo string
	h    hash.Hash
}

// NewStreaming constructs a Streaming digest for algo, defaulting to
// DefaultAlgorithm when algo is empty.
func NewStreaming(algo string) (*Streaming, error) {
	if algo == "" {
		algo = DefaultAlgorithm
	}
	h, err := New(algo)
	if err != nil {
		return nil, err
	}
	return &Streaming{algo: algo, h: h}, nil
}

// Algorithm returns the algorithm name this Streaming digest was
// constructed with.
func (s *Streaming) Algorithm() string { return s.algo }

// Update feeds bytes into the running hash. It never returns an error, per
// the hash.Hash contract, but is named Update (rather than Write) to match
// spec.md §4.1's `update(bytes)` vocabulary.
func (s *Streaming) Update(p []byte) {
	s.h.Write(p)
}

// Write implements io.Writer so a Streaming digest can be used directly as
// an io.TeeReader/io.MultiWriter destination.
func (s *Streaming) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

// Finalize returns the accumulated digest as a lowercase hex string. Calling
// Finalize does not reset the underlying hash; construct a new Streaming to
// start over.
func (s *Streaming) Finalize() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// Reset clears the running hash so the same Streaming value can be reused
// for another attempt, as the file hasher's restart policy requires.
func (s *Streaming) Reset() {
	s.h.Reset()
}
