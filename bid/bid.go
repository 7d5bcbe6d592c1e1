// Package bid implements the Backup Information Database: the versioned,
// persistent index of every file ever backed up to one storage definition
// (spec.md §3, §4.6). A BID can be persisted as a single JSON document or
// as a relational (SQLite, optionally Postgres) schema; either may be
// loaded, and Save keeps an existing file in the format it already uses;
// the caller can choose the relational form only for a file that does not
// exist yet (see document.go, relational.go, detect.go).
package bid

import (
	"sort"
	"strings"

	"github.com/AshleyT3/atbu-go"
)

// CurrentSchemaVersion is compared against a loaded BID's stored version to
// decide which migration steps (see migrations) must run.
const CurrentSchemaVersion = 2

// Database holds every SpecificBackupInformation ever recorded for one
// storage definition, plus the derived indices spec.md §3 requires for
// change-detection and deduplication queries.
type Database struct {
	Name           string
	SchemaVersion  int
	SpecificBackups []*atbu.SpecificBackupInformation

	// arena resolves BackingFIKey references lazily, walking SBIs newest
	// to oldest (spec.md §9 "Cyclic references in the BID").
	arena *Arena

	// pathToInfoAll maps normalized path_without_root to the most recent
	// successful BFI touching that path, across all SBIs.
	pathToInfoAll map[string]*atbu.BackupFileInformation
	// pathToInfoLast is the same, restricted to the most recent SBI.
	pathToInfoLast map[string]*atbu.BackupFileInformation
	// digestToListInfo maps primary digest to every physically-backed BFI
	// sharing that digest, fuel for deduplication.
	digestToListInfo map[string][]*atbu.BackupFileInformation
}

// New constructs an empty Database for a storage definition named name.
func New(name string) *Database {
	return &Database{
		Name:          name,
		SchemaVersion: CurrentSchemaVersion,
		arena:         NewArena(),
	}
}

// normalizePath is the key used for both index maps: case-preserved but
// separator-normalized, so "a/b" and "a\\b" collide on platforms where they
// mean the same file.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Reindex rebuilds every derived index and resolves every BackingFIKey
// reference from scratch. Call after mutating SpecificBackups directly
// (e.g. after Load) or after appending a new SBI.
func (db *Database) Reindex() error {
	db.arena = NewArena()
	db.pathToInfoAll = map[string]*atbu.BackupFileInformation{}
	db.pathToInfoLast = map[string]*atbu.BackupFileInformation{}
	db.digestToListInfo = map[string][]*atbu.BackupFileInformation{}

	for sbiIdx, sbi := range db.SpecificBackups {
		for bfiIdx, bfi := range sbi.BackupFiles {
			db.arena.Put(atbu.BackingFIKey{SBIIndex: sbiIdx, BFIIndex: bfiIdx}, bfi)
		}
	}
	if err := db.arena.ResolveBackingFIs(db.SpecificBackups); err != nil {
		return err
	}

	// Walk oldest to newest so "most recent" indices end up pointing at
	// the latest entry for each path.
	for sbiIdx, sbi := range db.SpecificBackups {
		isLast := sbiIdx == len(db.SpecificBackups)-1
		for _, bfi := range sbi.BackupFiles {
			if !bfi.IsSuccessful {
				continue
			}
			key := normalizePath(bfi.PathWithoutRoot)
			db.pathToInfoAll[key] = bfi
			if isLast {
				db.pathToInfoLast[key] = bfi
			}
			physical := db.arena.Physical(bfi)
			if physical == nil || physical != bfi {
				continue
			}
			digest, ok := physical.Digests[primaryAlgorithm(physical)]
			if !ok {
				continue
			}
			db.digestToListInfo[digest] = append(db.digestToListInfo[digest], bfi)
		}
	}
	return nil
}

func primaryAlgorithm(bfi *atbu.BackupFileInformation) string {
	if _, ok := bfi.Digests["sha256"]; ok {
		return "sha256"
	}
	for k := range bfi.Digests {
		return k
	}
	return "sha256"
}

// MostRecentForPath returns the most recent successful BFI at path across
// all sessions, or nil.
func (db *Database) MostRecentForPath(path string) *atbu.BackupFileInformation {
	return db.pathToInfoAll[normalizePath(path)]
}

// MostRecentForPathInLastSBI restricts MostRecentForPath to the most recent
// session only.
func (db *Database) MostRecentForPathInLastSBI(path string) *atbu.BackupFileInformation {
	return db.pathToInfoLast[normalizePath(path)]
}

// PhysicalBFIsByDigest returns every physically-backed BFI sharing digest.
func (db *Database) PhysicalBFIsByDigest(digest string) []*atbu.BackupFileInformation {
	return db.digestToListInfo[digest]
}

// Physical resolves bfi's backing reference, returning bfi itself if it is
// already physically backed.
func (db *Database) Physical(bfi *atbu.BackupFileInformation) *atbu.BackupFileInformation {
	return db.arena.Physical(bfi)
}

// KeyOf reverse-resolves an existing BFI (already present in the database,
// at any path) to its arena key, so a cross-path deduplication match can be
// recorded as a direct BackingFI reference instead of depending on
// ResolveBackingFIs' same-path walk.
func (db *Database) KeyOf(bfi *atbu.BackupFileInformation) (atbu.BackingFIKey, bool) {
	return db.arena.KeyOf(bfi)
}

// LastSBI returns the most recently appended SpecificBackupInformation, or
// nil if the database is empty.
func (db *Database) LastSBI() *atbu.SpecificBackupInformation {
	if len(db.SpecificBackups) == 0 {
		return nil
	}
	return db.SpecificBackups[len(db.SpecificBackups)-1]
}

// AppendSBI appends sbi, validating that its SpecificBackupName is unique
// within the database (spec.md §3 SBI invariant), then reindexes.
func (db *Database) AppendSBI(sbi *atbu.SpecificBackupInformation) error {
	for _, existing := range db.SpecificBackups {
		if existing.SpecificBackupName == sbi.SpecificBackupName {
			return atbu.ErrBIDIntegrity
		}
	}
	db.SpecificBackups = append(db.SpecificBackups, sbi)
	return db.Reindex()
}

// SortedBFIs returns every BFI across every SBI sorted by normalized path,
// the order spec.md §5 requires for deterministic on-disk persistence.
func (db *Database) SortedBFIs() []*atbu.BackupFileInformation {
	var all []*atbu.BackupFileInformation
	for _, sbi := range db.SpecificBackups {
		all = append(all, sbi.BackupFiles...)
	}
	sort.Slice(all, func(i, j int) bool {
		return normalizePath(all[i].PathWithoutRoot) < normalizePath(all[j].PathWithoutRoot)
	})
	return all
}
