package bid

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// Format identifies which on-disk form a BID file uses.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatSQLite
)

// sqliteMagic is the fixed 16-byte header every SQLite database file
// begins with.
var sqliteMagic = []byte("SQLite format 3\x00")

// DetectFormat inspects the first bytes of the file at path and reports
// whether it is the JSON document form or the relational (SQLite) form,
// without fully parsing either (spec.md §4.6, "either may be loaded").
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("bid: opening %q: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, len(sqliteMagic))
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return FormatUnknown, fmt.Errorf("bid: reading %q: %w", path, err)
	}
	buf = buf[:n]

	if bytes.Equal(buf, sqliteMagic) {
		return FormatSQLite, nil
	}
	for _, b := range buf {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return FormatJSON, nil
		default:
			return FormatUnknown, fmt.Errorf("bid: %q: unrecognized file header", path)
		}
	}
	return FormatJSON, nil
}

// Load opens the BID at path regardless of which on-disk form it uses.
func Load(path string) (*Database, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return LoadDocument(path)
	case FormatSQLite:
		return LoadRelational(path)
	default:
		return nil, fmt.Errorf("bid: %q: unknown format", path)
	}
}

// Save persists db to path, preserving whichever on-disk form path already
// uses. When path does not yet exist, it defaults to the JSON document
// form. Pass forceSQLite to force the relational form for a new file.
func Save(db *Database, path string, forceSQLite bool) error {
	format, err := DetectFormat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if forceSQLite {
				return SaveRelational(db, path, nil)
			}
			return SaveDocument(db, path)
		}
		return err
	}
	switch format {
	case FormatSQLite:
		return SaveRelational(db, path, nil)
	default:
		return SaveDocument(db, path)
	}
}
