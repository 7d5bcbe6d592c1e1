package bid

import "github.com/AshleyT3/atbu-go"

// DateSizeChanged implements the date/size change-detection query
// (spec.md §4.6): reports whether the most recent BFI at fi's path differs
// in size or mtime, and returns that prior BFI if one exists.
func (db *Database) DateSizeChanged(fi *atbu.BackupFileInformation) (changed bool, prior *atbu.BackupFileInformation) {
	prior = db.MostRecentForPath(fi.PathWithoutRoot)
	if prior == nil {
		return true, nil
	}
	changed = prior.SizeInBytes != fi.SizeInBytes || prior.ModifiedTime != fi.ModifiedTime
	return changed, prior
}

// DigestChanged reports whether fi's primary digest differs from the most
// recent BFI at the same path.
func (db *Database) DigestChanged(algo string, fi *atbu.BackupFileInformation) (changed bool, prior *atbu.BackupFileInformation) {
	prior = db.MostRecentForPath(fi.PathWithoutRoot)
	if prior == nil {
		return true, nil
	}
	priorDigest, priorOK := prior.Digests[algo]
	fiDigest, fiOK := fi.Digests[algo]
	if !priorOK || !fiOK {
		return true, prior
	}
	return priorDigest != fiDigest, prior
}

// Duplicate implements the deduplication query (spec.md §4.6): scans
// physically-backed BFIs sharing fi's primary digest and, in
// atbu.DedupDigestExt mode, requiring a matching extension; a match also
// requires equal size and mtime. Returns the first match, or nil.
func (db *Database) Duplicate(mode atbu.DeduplicationOption, algo string, fi *atbu.BackupFileInformation) *atbu.BackupFileInformation {
	if mode == atbu.DedupNone {
		return nil
	}
	digest, ok := fi.Digests[algo]
	if !ok {
		return nil
	}
	for _, candidate := range db.digestToListInfo[digest] {
		if candidate.SizeInBytes != fi.SizeInBytes || candidate.ModifiedTime != fi.ModifiedTime {
			continue
		}
		if mode == atbu.DedupDigestExt && candidate.Extension() != fi.Extension() {
			continue
		}
		if normalizePath(candidate.PathWithoutRoot) == normalizePath(fi.PathWithoutRoot) {
			continue
		}
		return candidate
	}
	return nil
}

// SneakyCorruption implements the bitrot-detection query (spec.md §4.6,
// §4.5 step 6): true iff a prior BFI at the same path has equal size and
// mtime but a differing primary digest — a content change invisible to
// (size, mtime)-only checks.
func (db *Database) SneakyCorruption(algo string, fi *atbu.BackupFileInformation) (suspected bool, prior *atbu.BackupFileInformation) {
	prior = db.MostRecentForPath(fi.PathWithoutRoot)
	if prior == nil {
		return false, nil
	}
	sameSizeAndTime := prior.SizeInBytes == fi.SizeInBytes && prior.ModifiedTime == fi.ModifiedTime
	if !sameSizeAndTime {
		return false, prior
	}
	priorDigest, priorOK := prior.Digests[algo]
	fiDigest, fiOK := fi.Digests[algo]
	if !priorOK || !fiOK {
		return false, prior
	}
	return priorDigest != fiDigest, prior
}
