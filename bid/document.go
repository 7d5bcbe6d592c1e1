package bid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AshleyT3/atbu-go"
)

// jsonDocument is the on-disk shape of the JSON document form of a BID
// (spec.md §4.6). Field names are frozen by the on-disk format and must not
// be renamed without a migration step.
type jsonDocument struct {
	Name            string                            `json:"name"`
	SchemaVersion   int                               `json:"schema_version"`
	SpecificBackups []*atbu.SpecificBackupInformation `json:"specific_backups"`
}

// LoadDocument reads the JSON document form of a BID from path and
// reindexes it. It does not run schema migrations; the package has no
// migration step for the document form. A stored version newer than
// CurrentSchemaVersion is rejected with ErrSchemaDowngrade.
func LoadDocument(path string) (*Database, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bid: reading %q: %w", path, err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("bid: parsing %q: %w", path, err)
	}
	if doc.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("bid: %q has schema version %d, newer than %d: %w",
			path, doc.SchemaVersion, CurrentSchemaVersion, atbu.ErrSchemaDowngrade)
	}
	db := &Database{
		Name:            doc.Name,
		SchemaVersion:   doc.SchemaVersion,
		SpecificBackups: doc.SpecificBackups,
		arena:           NewArena(),
	}
	if err := db.Reindex(); err != nil {
		return nil, fmt.Errorf("bid: %q: %w", path, err)
	}
	return db, nil
}

// SaveDocument persists db in JSON document form to path using the atomic
// save sequence spec.md §9 requires: write "<path>.tmp", fsync it, rotate
// any existing file at path to "<path>.bak" via rename, then rename the
// temp file into place. Before any of that, if a file already exists at
// path, it is preserved as a numbered backup ("<path>.1", "<path>.2", …)
// per spec.md §4.6 — numbered backups accumulate until the user prunes
// them.
func SaveDocument(db *Database, path string) error {
	doc := jsonDocument{
		Name:            db.Name,
		SchemaVersion:   db.SchemaVersion,
		SpecificBackups: db.SpecificBackups,
	}
	b, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("bid: encoding %q: %w", path, err)
	}

	if err := numberedBackup(path); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("bid: creating %q: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("bid: creating %q: %w", tmp, err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("bid: writing %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("bid: syncing %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("bid: closing %q: %w", tmp, err)
	}

	if _, err := os.Stat(path); err == nil {
		bak := path + ".bak"
		os.Remove(bak) // best effort; a stale .bak is harmless
		if err := os.Rename(path, bak); err != nil {
			return fmt.Errorf("bid: rotating %q to %q: %w", path, bak, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("bid: stat %q: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("bid: renaming %q to %q: %w", tmp, path, err)
	}
	return nil
}

// numberedBackup copies an existing file at path to the lowest-numbered
// "<path>.N" suffix not already in use, leaving path itself untouched. It
// is a no-op when path does not yet exist.
func numberedBackup(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("bid: stat %q: %w", path, err)
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d", path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("bid: reading %q for numbered backup: %w", path, err)
			}
			if err := os.WriteFile(candidate, b, 0o644); err != nil {
				return fmt.Errorf("bid: writing numbered backup %q: %w", candidate, err)
			}
			return nil
		}
	}
}
