package bid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// backupInfoObjectPattern matches the object names the seal step of a
// backup session uploads (spec.md §4.5 step 9): "zz-backup-info-" followed
// by a "YYYYMMDD-HHMMSS" timestamp and either the plaintext or encrypted
// backup-info extension.
var backupInfoObjectPattern = regexp.MustCompile(`^zz-backup-info-(\d{8}-\d{6})\.atbuinf(\.enc)?$`)

// IsBackupInfoObjectName reports whether name is one of the whole-BID
// snapshot objects a backup session seals into the store.
func IsBackupInfoObjectName(name string) bool {
	return backupInfoObjectPattern.MatchString(name)
}

// NewestBackupInfoObject returns the name, among names, whose embedded
// timestamp sorts last — the snapshot a recovery pass should restore from,
// per original_source's recover.py ("sort_backup_info_filename_list" /
// "newest_backup_info"). Returns "" if none of names match the pattern.
func NewestBackupInfoObject(names []string) string {
	var candidates []string
	for _, n := range names {
		if IsBackupInfoObjectName(n) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		return backupInfoObjectPattern.FindStringSubmatch(candidates[i])[1] <
			backupInfoObjectPattern.FindStringSubmatch(candidates[j])[1]
	})
	return candidates[len(candidates)-1]
}

// RecoverFromStore reconstructs a Database purely from the decrypted
// plaintext of a whole-BID snapshot object (the caller is responsible for
// downloading and, if encrypted, decrypting the object named by
// NewestBackupInfoObject — this package has no store or cipher
// dependencies). data is detected as either the JSON document form or a
// SQLite relational form and loaded accordingly.
func RecoverFromStore(data []byte) (*Database, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(data, sqliteMagic) {
		return recoverFromSQLiteBytes(data)
	}
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return recoverFromJSONBytes(data)
	}
	return nil, fmt.Errorf("bid: recovered snapshot: unrecognized format")
}

func recoverFromJSONBytes(data []byte) (*Database, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bid: parsing recovered snapshot: %w", err)
	}
	db := &Database{
		Name:            doc.Name,
		SchemaVersion:   doc.SchemaVersion,
		SpecificBackups: doc.SpecificBackups,
		arena:           NewArena(),
	}
	if err := db.Reindex(); err != nil {
		return nil, fmt.Errorf("bid: recovered snapshot: %w", err)
	}
	return db, nil
}

// recoverFromSQLiteBytes stages data to a temp file since modernc.org/sqlite
// only operates on files on disk, then delegates to LoadRelational.
func recoverFromSQLiteBytes(data []byte) (*Database, error) {
	tmpDir, err := os.MkdirTemp("", "atbu-recover-*")
	if err != nil {
		return nil, fmt.Errorf("bid: staging recovered snapshot: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmp := filepath.Join(tmpDir, "recovered.sqlite")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, fmt.Errorf("bid: staging recovered snapshot: %w", err)
	}
	return LoadRelational(tmp)
}
