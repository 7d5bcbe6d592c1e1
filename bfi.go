package atbu

import "time"

// DeduplicationOption selects how the decision stage treats files whose
// content already exists under a different path (spec.md §3, §4.5 step 6).
type DeduplicationOption string

const (
	// DedupNone disables content-based deduplication; only
	// (path, size, mtime) and digest equality at the same path are
	// considered.
	DedupNone DeduplicationOption = "none"
	// DedupDigest matches on primary digest plus equal size and mtime,
	// regardless of file extension.
	DedupDigest DeduplicationOption = "digest"
	// DedupDigestExt additionally requires the file extension to match.
	DedupDigestExt DeduplicationOption = "digest-ext"
)

// BackingFIKey identifies a BackupFileInformation within the arena that
// holds every BFI across every SpecificBackupInformation in a
// BackupInformationDatabase (spec.md §9, "Cyclic references in the BID").
type BackingFIKey struct {
	SBIIndex int `json:"sbi_index"`
	BFIIndex int `json:"bfi_index"`
}

// Zero reports whether the key is the unset zero value.
func (k BackingFIKey) Zero() bool { return k.SBIIndex == 0 && k.BFIIndex == 0 }

// BackupFileInformation (BFI) records one file's state as observed during one
// backup session. See spec.md §3 for the field-level contract and
// invariants.
type BackupFileInformation struct {
	// Path is the absolute path of the source file.
	Path string `json:"path"`
	// PathWithoutRoot has any drive letter / volume prefix stripped, so it
	// is portable across platforms and safe to hash into an object name.
	PathWithoutRoot string `json:"path_without_root"`
	// DiscoveryPath is the root directory the user asked to back up that
	// contains Path.
	DiscoveryPath string `json:"discovery_path"`

	SizeInBytes  int64   `json:"size_in_bytes"`
	ModifiedTime float64 `json:"modified_time"` // POSIX fractional seconds
	AccessedTime float64 `json:"accessed_time"` // POSIX fractional seconds

	// Digests maps algorithm name (e.g. "sha256") to hex digest. Exactly
	// one primary-algorithm entry (digest.DefaultAlgorithm) is required
	// before a BFI is considered backed up successfully.
	Digests map[string]string `json:"digests"`

	IsBackupEncrypted          bool   `json:"is_backup_encrypted"`
	EncryptionIV               []byte `json:"encryption_iv,omitempty"` // exactly 16 bytes when IsBackupEncrypted
	CiphertextHashDuringBackup string `json:"ciphertext_hash_during_backup,omitempty"`

	// StorageObjectName is the name under which this file's ciphertext
	// lives in the object store. Empty when IsUnchangedSinceLast and no
	// independent physical copy was made.
	StorageObjectName string `json:"storage_object_name,omitempty"`

	// IsUnchangedSinceLast is set when the decision stage concludes this
	// BFI is redundant with an earlier one. BackingFIKey then resolves (at
	// load time, see bid.Arena) to the physically-backed BFI carrying the
	// real digest/IV/object name.
	IsUnchangedSinceLast bool          `json:"is_unchanged_since_last"`
	BackingFI            *BackingFIKey `json:"backing_fi,omitempty"`

	DeduplicationOption DeduplicationOption `json:"deduplication_option"`

	// IsBackingFIDigest is true when Digests was inherited from a prior
	// BFI rather than freshly computed (incremental mode skips re-hashing
	// files whose (size, mtime) are unchanged).
	IsBackingFIDigest bool `json:"is_backing_fi_digest"`

	IsSuccessful bool   `json:"is_successful"`
	Exception    string `json:"exception,omitempty"` // non-empty iff !IsSuccessful
}

// PrimaryDigest returns the primary-algorithm digest and whether it is
// present, satisfying the "exactly one primary digest" invariant check.
func (b *BackupFileInformation) PrimaryDigest(algo string) (string, bool) {
	d, ok := b.Digests[algo]
	return d, ok
}

// Extension returns the lowercased file extension (including the leading
// dot) of PathWithoutRoot, used by dedup "digest-ext" mode and the
// compression stage's per-extension statistics.
func (b *BackupFileInformation) Extension() string {
	return extOf(b.PathWithoutRoot)
}

func extOf(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' && path[i] != '\\' {
		if path[i] == '.' {
			return lower(path[i:])
		}
		i--
	}
	return ""
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// BackupType selects the prefilter and decision-stage strategy (spec.md
// §4.5 step 3).
type BackupType string

const (
	BackupFull               BackupType = "full"
	BackupIncremental        BackupType = "incremental"
	BackupIncrementalPlus    BackupType = "incremental-plus"
	BackupIncrementalHybrid  BackupType = "incremental-hybrid"
)

// specificBackupNameLayout is the Go time layout used to render
// SpecificBackupName from BackupStartTimeUTC.
const specificBackupNameLayout = "20060102-150405"

// FormatSpecificBackupName renders "<base>-YYYYMMDD-HHMMSS" in UTC.
func FormatSpecificBackupName(baseName string, t time.Time) string {
	return baseName + "-" + t.UTC().Format(specificBackupNameLayout)
}
