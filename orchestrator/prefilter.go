package orchestrator

import "github.com/AshleyT3/atbu-go"

// Prefilter implements spec.md §4.5 step 3: decide, before hashing, whether
// a discovered file needs to enter the pipeline at all.
//
// full: every file is hashed.
// incremental: a file whose (path, size, mtime) matches the most recent
// BFI is skipped; its BFI inherits the predecessor's digest with
// IsBackingFIDigest set, so the BID still records a (cheap) entry for it.
// incremental-plus / incremental-hybrid: every file is hashed; the
// decision happens after hashing (Decide), since these modes want to
// detect sneaky corruption and/or digest-level dedup that a
// size/mtime-only check can't see.
func Prefilter(db *atbu.BackupFileInformation, existing bidLookup, backupType atbu.BackupType) (enterPipeline bool) {
	if backupType != atbu.BackupIncremental {
		return true
	}
	changed, prior := existing.DateSizeChanged(db)
	if changed || prior == nil {
		return true
	}
	db.Digests = cloneDigests(prior.Digests)
	db.IsBackingFIDigest = true
	db.IsUnchangedSinceLast = true
	db.IsSuccessful = true
	return false
}

func cloneDigests(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// bidLookup is the narrow subset of bid.Database's query surface Prefilter
// and the decision stage need, kept as an interface so orchestrator tests
// can substitute a fake without building a full bid.Database.
type bidLookup interface {
	DateSizeChanged(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation)
	DigestChanged(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation)
	Duplicate(mode atbu.DeduplicationOption, algo string, fi *atbu.BackupFileInformation) *atbu.BackupFileInformation
	SneakyCorruption(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation)
	MostRecentForPath(path string) *atbu.BackupFileInformation
	// KeyOf reverse-resolves an existing (possibly cross-path) BFI to its
	// arena key, letting a dedup match be recorded as a direct BackingFI
	// reference (see bid.Database.KeyOf).
	KeyOf(fi *atbu.BackupFileInformation) (atbu.BackingFIKey, bool)
}
