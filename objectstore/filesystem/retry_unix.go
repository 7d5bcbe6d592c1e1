//go:build unix

package filesystem

import (
	"errors"
	"io/fs"
	"syscall"
)

// isRetryableFSError classifies "too many open files" as transient — the
// only local-filesystem failure mode worth a backoff retry (spec.md §4.3
// "each driver registers its own retryable-error predicate").
func isRetryableFSError(err error) bool {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return errors.Is(pe.Err, syscall.EMFILE) || errors.Is(pe.Err, syscall.ENFILE)
	}
	return false
}
