// Package objectstore defines the narrow capability the backup/restore core
// consumes from a pluggable storage backend (spec.md §4.3), plus the
// generic retry wrapper (spec.md §7 Transient I/O) that every driver call
// in the pipeline and retrieval engine goes through.
package objectstore

import (
	"context"
	"io"
)

// Chunk sizes are provider-specific; a driver reports the values it wants
// and the core round-trips them (spec.md §4.3).
const (
	DefaultUploadChunkSize   = 5 << 20  // 5 MiB
	DefaultDownloadChunkSize = 50 << 20 // 50 MiB
)

// ObjectInfo describes one stored object's identity and size, independent
// of driver.
type ObjectInfo struct {
	Name  string
	Size  int64
	ETag  string
}

// Object is a handle to one stored blob, obtained from Container.GetObject
// or Container.ListObjects.
type Object interface {
	Info() ObjectInfo
}

// ChunkIterator yields forward-only byte chunks, with an empty final chunk
// signalling EOF — the contract upload_stream_to_object and
// download_object_as_stream share (spec.md §4.3).
type ChunkIterator interface {
	// Next returns the next chunk. It returns io.EOF once the final
	// (possibly empty) chunk has already been returned.
	Next(ctx context.Context) ([]byte, error)
}

// Container groups objects under one named destination (e.g. a bucket, a
// local directory).
type Container interface {
	Name() string
	// GetObject resolves name to an Object, or returns an error wrapping
	// atbu.ErrObjectDoesNotExist.
	GetObject(ctx context.Context, name string) (Object, error)
	// DeleteObject removes name; deleting an absent object is not an
	// error (mirrors the semantics needed for "delete any partial
	// upload" cleanup, spec.md §4.5 step 8).
	DeleteObject(ctx context.Context, name string) error
	// ListObjects lists every object whose name has the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]Object, error)
	// UploadStream consumes chunks from src, writing them to a new or
	// replaced object named name. sourcePath is advisory, used only for
	// driver-side logging/content-type sniffing.
	UploadStream(ctx context.Context, name string, src ChunkIterator, sourcePath string) error
	// DownloadStream opens name for streaming read in chunks of roughly
	// chunkSize bytes (the driver may choose its own size; the core
	// round-trips whatever is reported).
	DownloadStream(ctx context.Context, name string, chunkSize int) (ChunkIterator, error)
	// UploadChunkSize and DownloadChunkSize report the driver's
	// provider-specific defaults.
	UploadChunkSize() int
	DownloadChunkSize() int
}

// Store is the top-level capability: container lifecycle plus the set of
// error kinds this particular driver considers transient.
type Store interface {
	// GetContainer resolves an existing container by name.
	GetContainer(ctx context.Context, name string) (Container, error)
	// CreateContainer creates a new container. A trailing '*' in name
	// requests auto-find-and-create with a random UUID suffix, retried
	// up to 100 times on collision (spec.md §4.3).
	CreateContainer(ctx context.Context, name string) (Container, error)
	// IsRetryable reports whether err represents a transient failure
	// eligible for the exponential-backoff retry loop. Each driver
	// registers its own predicate rather than the core relying on a
	// global exception list (spec.md §9).
	IsRetryable(err error) bool
}

// ByteChunkReader adapts a ChunkIterator to io.Reader, for callers that
// want to use streaming codecs (gzip, AES-CBC) without reimplementing
// buffering.
type ByteChunkReader struct {
	ctx   context.Context
	it    ChunkIterator
	buf   []byte
	eof   bool
}

// NewByteChunkReader wraps it as an io.Reader scoped to ctx.
func NewByteChunkReader(ctx context.Context, it ChunkIterator) *ByteChunkReader {
	return &ByteChunkReader{ctx: ctx, it: it}
}

func (r *ByteChunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		chunk, err := r.it.Next(r.ctx)
		if err != nil && err != io.EOF {
			return 0, err
		}
		if err == io.EOF {
			r.eof = true
		}
		if len(chunk) == 0 {
			if r.eof {
				return 0, io.EOF
			}
			continue
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// SliceChunkIterator is a ChunkIterator over an in-memory byte slice, split
// into chunkSize pieces followed by one empty EOF chunk. Used by the
// filesystem driver and by tests.
type SliceChunkIterator struct {
	data        []byte
	chunkSize   int
	offset      int
	sentEmpty   bool
	exhausted   bool
}

// NewSliceChunkIterator builds a ChunkIterator over data, chunked to
// chunkSize bytes (DefaultUploadChunkSize when chunkSize <= 0).
func NewSliceChunkIterator(data []byte, chunkSize int) *SliceChunkIterator {
	if chunkSize <= 0 {
		chunkSize = DefaultUploadChunkSize
	}
	return &SliceChunkIterator{data: data, chunkSize: chunkSize}
}

func (s *SliceChunkIterator) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.exhausted {
		return nil, io.EOF
	}
	if s.offset >= len(s.data) {
		// Exactly one empty chunk signals EOF before Next itself
		// starts returning io.EOF.
		s.exhausted = true
		if s.sentEmpty {
			return nil, io.EOF
		}
		s.sentEmpty = true
		return nil, nil
	}
	end := s.offset + s.chunkSize
	if end > len(s.data) {
		end = len(s.data)
	}
	chunk := s.data[s.offset:end]
	s.offset = end
	return chunk, nil
}
