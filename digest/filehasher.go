package digest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts is the number of times FileHasher re-reads a file
// before giving up with ErrFileChanged (spec.md §4.1, default N=5).
const DefaultMaxAttempts = 5

// ErrFileChanged is returned by FileHasher.Hash when a file's (mtime, size)
// changed on every one of MaxAttempts read attempts.
var ErrFileChanged = errors.New("digest: file changed while hashing")

// FileHasher wraps the streaming digest with a restart policy: it re-reads
// the file up to MaxAttempts times, restarting the hash whenever the file's
// (mtime, size) changes mid-read.
type FileHasher struct {
	Algorithm   string
	MaxAttempts int
	BufferSize  int
}

// NewFileHasher constructs a FileHasher with spec.md §4.1 defaults.
func NewFileHasher(algo string) *FileHasher {
	return &FileHasher{
		Algorithm:   algo,
		MaxAttempts: DefaultMaxAttempts,
		BufferSize:  1 << 20,
	}
}

// Result is the outcome of hashing one file.
type Result struct {
	Digest       string
	SizeInBytes  int64
	ModifiedTime float64
	AccessedTime float64
	Attempts     int
}

// Hash computes the primary digest of path, restarting on detected
// concurrent modification.
func (fh *FileHasher) Hash(ctx context.Context, path string) (Result, error) {
	max := fh.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	bufSize := fh.BufferSize
	if bufSize <= 0 {
		bufSize = 1 << 20
	}
	log := zerolog.Ctx(ctx).With().
		Str("component", "digest/FileHasher.Hash").
		Str("path", path).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, changed, err := fh.attempt(path, bufSize)
		switch {
		case err != nil:
			return Result{}, fmt.Errorf("digest: hashing %q: %w", path, err)
		case changed:
			lastErr = fmt.Errorf("digest: %q changed mid-read on attempt %d", path, attempt)
			log.Debug().Int("attempt", attempt).Msg("file changed while hashing, restarting")
			continue
		default:
			res.Attempts = attempt
			return res, nil
		}
	}
	_ = lastErr
	return Result{}, fmt.Errorf("%w: %s", ErrFileChanged, path)
}

// attempt performs a single read-and-hash pass, comparing the (size, mtime)
// observed before and after the read to detect concurrent modification.
func (fh *FileHasher) attempt(path string, bufSize int) (Result, bool, error) {
	before, err := os.Stat(path)
	if err != nil {
		return Result{}, false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, false, err
	}
	defer f.Close()

	h, err := NewStreaming(fh.Algorithm)
	if err != nil {
		return Result{}, false, err
	}

	r := bufio.NewReaderSize(f, bufSize)
	if _, err := io.Copy(h, r); err != nil {
		return Result{}, false, err
	}

	after, err := f.Stat()
	if err != nil {
		return Result{}, false, err
	}

	if after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) {
		return Result{}, true, nil
	}

	return Result{
		Digest:       h.Finalize(),
		SizeInBytes:  after.Size(),
		ModifiedTime: statTimeToFloat(after),
		AccessedTime: AccessedTime(before),
	}, false, nil
}
