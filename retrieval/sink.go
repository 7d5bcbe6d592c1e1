// Package retrieval implements the restore/verify/decrypt engine (spec.md
// §4.7): download one stored object, undo compression and encryption, check
// it against the BFI that described it at backup time, and hand the
// recovered bytes to a caller-supplied Sink.
package retrieval

import "github.com/AshleyT3/atbu-go/wireformat"

// Sink receives one retrieved file's plaintext body. Restore, verify, and
// decrypt are all the same engine driven by a different Sink:
//   - a restore sink maps preamble.Path under a destination root and writes
//     the file;
//   - a verify sink opens nothing and discards Write's bytes, relying on
//     Retrieve's own digest/size checks;
//   - a decrypt sink writes directly to a path derived from preamble.Path,
//     recovering a file from header-and-preamble alone with no BID.
type Sink interface {
	// Open is called once, after the preamble has been parsed and the
	// body fully verified, before any Write. Returning an error aborts
	// the retrieval without any Write call.
	Open(preamble wireformat.Preamble) error
	// Write receives the file's plaintext body. Retrieve calls it at
	// most once per attempt (the body is verified in full before any
	// Write, so partial output never reaches a sink).
	Write(p []byte) (int, error)
	// Close finalizes the sink, exactly once per attempt. cause is
	// Retrieve's error for this attempt, if any; a restore/decrypt sink
	// should remove any file it created when cause is non-nil.
	Close(cause error) error
}

// DiscardSink is the verify Sink: it never opens a destination and throws
// away every byte, relying entirely on Retrieve's built-in digest, size, and
// mtime checks.
type DiscardSink struct{}

func (DiscardSink) Open(wireformat.Preamble) error { return nil }
func (DiscardSink) Write(p []byte) (int, error)    { return len(p), nil }
func (DiscardSink) Close(error) error              { return nil }
