// Package selection implements the selector language spec.md §4.8 defines
// for restore/verify/list: which storage definition, which backups within
// it, and which files within those backups.
package selection

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/bid"
)

// Target identifies the storage definition half of a selector: either
// "storage:<name>"/"storage-def:<name>", or a bare absolute directory
// (resolved by the host process to a filesystem storage definition rooted
// there).
type Target struct {
	Name      string // set when the token was storage:/storage-def:
	Directory string // set when the token was a bare absolute directory
}

// Selectors is one fully parsed selection expression (spec.md §4.8).
type Selectors struct {
	Target Target
	// Backup is "" (meaning backup:last), "last", or a glob matched
	// against SpecificBackupName (backup:<glob>).
	Backup string
	// Files is zero or more files:<glob> patterns, glob-matched against
	// the normalized full path. No Files entries means every file in the
	// selected backups.
	Files []string
}

// ParseTarget parses one "storage:<name>" / "storage-def:<name>" / bare
// absolute directory token.
func ParseTarget(tok string) (Target, error) {
	switch {
	case strings.HasPrefix(tok, "storage:"):
		return Target{Name: strings.TrimPrefix(tok, "storage:")}, nil
	case strings.HasPrefix(tok, "storage-def:"):
		return Target{Name: strings.TrimPrefix(tok, "storage-def:")}, nil
	case filepath.IsAbs(tok):
		return Target{Directory: tok}, nil
	default:
		return Target{}, fmt.Errorf("selection: %q is not a storage:/storage-def: reference or an absolute directory", tok)
	}
}

// ParseBackupToken parses one "backup:last" / "backup:<glob>" token,
// returning the Backup field value Selectors expects.
func ParseBackupToken(tok string) (string, error) {
	if !strings.HasPrefix(tok, "backup:") {
		return "", fmt.Errorf("selection: %q is not a backup: selector", tok)
	}
	v := strings.TrimPrefix(tok, "backup:")
	if v == "" {
		return "", fmt.Errorf("selection: empty backup: selector")
	}
	return v, nil
}

// ParseFilesToken parses one "files:<glob>" token.
func ParseFilesToken(tok string) (string, error) {
	if !strings.HasPrefix(tok, "files:") {
		return "", fmt.Errorf("selection: %q is not a files: selector", tok)
	}
	v := strings.TrimPrefix(tok, "files:")
	if v == "" {
		return "", fmt.Errorf("selection: empty files: selector")
	}
	return v, nil
}

// matchingSBIs returns db's SpecificBackups matching sel.Backup, newest
// first.
func matchingSBIs(db *bid.Database, backup string) ([]*atbu.SpecificBackupInformation, error) {
	all := append([]*atbu.SpecificBackupInformation(nil), db.SpecificBackups...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].BackupStartTimeUTC.After(all[j].BackupStartTimeUTC)
	})

	if backup == "" || backup == "last" {
		if len(all) == 0 {
			return nil, nil
		}
		return all[:1], nil
	}

	var out []*atbu.SpecificBackupInformation
	for _, sbi := range all {
		ok, err := filepath.Match(backup, sbi.SpecificBackupName)
		if err != nil {
			return nil, fmt.Errorf("selection: invalid backup glob %q: %w", backup, err)
		}
		if ok {
			out = append(out, sbi)
		}
	}
	return out, nil
}

// Resolve walks db's SpecificBackups matching sel.Backup (newest first),
// applies sel.Files within each, and folds duplicates across SBIs
// "latest wins": a path already claimed by a newer SBI is not re-emitted
// from an older one (spec.md §4.8).
func Resolve(db *bid.Database, sel Selectors) ([]*atbu.BackupFileInformation, error) {
	sbis, err := matchingSBIs(db, sel.Backup)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []*atbu.BackupFileInformation
	for _, sbi := range sbis {
		for _, bfi := range sbi.BackupFiles {
			if !bfi.IsSuccessful {
				continue
			}
			path := normalizePath(bfi.PathWithoutRoot)
			if seen[path] {
				continue
			}
			if len(sel.Files) > 0 && !matchesAnyFile(sel.Files, bfi.PathWithoutRoot) {
				continue
			}
			seen[path] = true
			out = append(out, bfi)
		}
	}
	return out, nil
}

func matchesAnyFile(globs []string, path string) bool {
	norm := filepath.ToSlash(path)
	for _, g := range globs {
		if ok, _ := filepath.Match(g, norm); ok {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
