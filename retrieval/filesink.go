package retrieval

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/AshleyT3/atbu-go/wireformat"
)

// FileSink writes a retrieved file's plaintext body under Root, joined with
// either preamble.Path (MapPath nil) or the result of applying MapPath to
// it. Used by both restore (MapPath strips the selection's common prefix,
// spec.md §4.7) and decrypt (MapPath nil: the preamble's own path is used
// verbatim, recovering files with no BID at all).
type FileSink struct {
	Root    string
	MapPath func(pathWithoutRoot string) string
	// Overwrite allows replacing a file already present at the mapped
	// destination path. Without it, Open refuses to clobber an existing
	// file (the `restore --overwrite` / `decrypt --overwrite` flag).
	Overwrite bool

	f        *os.File
	path     string
	modified float64
}

func (s *FileSink) Open(preamble wireformat.Preamble) error {
	rel := preamble.Path
	if s.MapPath != nil {
		rel = s.MapPath(rel)
	}
	path := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("retrieval: creating %q: %w", filepath.Dir(path), err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !s.Overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if !s.Overwrite && os.IsExist(err) {
			return fmt.Errorf("retrieval: %q already exists (use --overwrite): %w", path, err)
		}
		return fmt.Errorf("retrieval: creating %q: %w", path, err)
	}
	s.f = f
	s.path = path
	s.modified = preamble.Modified
	return nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Close closes the underlying file and restores its original modified time
// from the preamble, or removes it if cause is non-nil — a failed
// retrieval must not leave a truncated or unverified file behind.
func (s *FileSink) Close(cause error) error {
	if s.f == nil {
		return nil
	}
	closeErr := s.f.Close()
	if cause != nil {
		os.Remove(s.path)
		return closeErr
	}
	if closeErr != nil {
		return fmt.Errorf("retrieval: closing %q: %w", s.path, closeErr)
	}
	mt := secondsToTime(s.modified)
	if err := os.Chtimes(s.path, mt, mt); err != nil {
		return fmt.Errorf("retrieval: restoring modified time of %q: %w", s.path, err)
	}
	return nil
}

func secondsToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
