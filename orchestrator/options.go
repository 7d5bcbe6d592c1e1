// Package orchestrator implements the backup orchestrator (spec.md §4.5):
// discover, stat-refresh, prefilter, hash, decide, compress, upload, and
// seal, wired together as a pipeline.Pipeline[*WorkItem] running over a
// bounded worker pool (spec.md §4.4, §5).
package orchestrator

import (
	"regexp"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/bid"
	"github.com/AshleyT3/atbu-go/lock"
	"github.com/AshleyT3/atbu-go/objectstore"
)

// DefaultNoCompressPattern matches extensions of already-compressed media
// formats, skipped by the compression stage regardless of running-ratio
// statistics (spec.md §4.5 step 7).
var DefaultNoCompressPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|mp3|mp4|mkv|mov|avi|zip|7z|gz|bz2|xz|zst|rar|heic|heif)$`)

// Options configures one backup session. The zero value is not usable;
// construct via NewOptions and fill in SourceRoots/Container/BackupBaseName
// at minimum.
type Options struct {
	// SourceRoots is the set of directories to walk during discovery.
	SourceRoots []string
	// ExcludeGlobs are additional glob patterns (matched against both the
	// absolute path and the base name) to skip during discovery, on top of the built-in
	// platform-specific excludes (spec.md §4.5 step 1).
	ExcludeGlobs []string

	BackupBaseName string
	BackupType     atbu.BackupType

	// DedupMode selects the deduplication query's matching strictness
	// (spec.md §4.5 step 6, §4.6).
	DedupMode atbu.DeduplicationOption

	// Container is the destination the upload stage writes objects to.
	Container objectstore.Container
	// RetryPolicy governs upload retry/backoff (spec.md §4.5 step 8, §7).
	RetryPolicy *objectstore.RetryPolicy

	// Passphrase, when non-nil, enables encryption: every uploaded
	// object is AES-CBC encrypted under a key derived from it (spec.md
	// §4.2, §9 "Password-derived keys and zeroing"). Nil means
	// unencrypted backups (`.atbak` objects).
	Passphrase *atbucrypto.KeyMaterial
	KDFSalt    []byte
	KDFIterations int

	// SneakyCorruptionDetection enables the decision stage's bitrot
	// check (spec.md §4.5 step 6; default on for incremental-plus).
	SneakyCorruptionDetection bool

	// Compression tunes the compression stage's per-extension
	// statistics and thresholds (spec.md §4.5 step 7).
	Compression CompressionOptions

	// MaxSimultaneousFileBackups bounds how many work items the
	// orchestrator keeps outstanding at once, applying backpressure
	// rather than blocking indefinitely on a full pipeline queue
	// (spec.md §4.4 concurrency contract, default 5).
	MaxSimultaneousFileBackups int
	// Workers is the pipeline's worker pool size; DefaultWorkers()
	// (min(cpu/2, 15)) when zero.
	Workers int

	// DB is the Backup Information Database this session consults for
	// change detection and appends the resulting SBI to on seal.
	DB *bid.Database
	// PrimaryBIDPath and SecondaryBIDPaths are where Seal writes the
	// updated BID after a successful session (spec.md §4.5 step 9).
	PrimaryBIDPath    string
	SecondaryBIDPaths []string
	// ForceRelational, when true, saves the BID in its relational form
	// when the BID file does not exist yet (bid.Save's default is JSON for
	// new files); an existing file keeps its current form.
	ForceRelational bool

	// Reservations serializes candidate object-name probing across
	// concurrently uploading work items within this process.
	Reservations *lock.Reservations
}

// CompressionOptions tunes the compression stage (spec.md §4.5 step 7).
type CompressionOptions struct {
	// NoCompressPattern skips compression for matching paths regardless
	// of size or statistics. Defaults to DefaultNoCompressPattern.
	NoCompressPattern *regexp.Regexp
	// MinSizeBytes skips compression for files at or below this size.
	// Default 150.
	MinSizeBytes int64
	// PoorRatioThreshold: once an extension has at least
	// MinSamplesBeforeSkip poor outcomes, compression is skipped for
	// further files of that extension if its running average
	// compressed/original ratio exceeds this threshold. Default 0.9.
	PoorRatioThreshold float64
	// MinSamplesBeforeSkip is the number of poor outcomes required
	// before PoorRatioThreshold starts being enforced. Default 3.
	MinSamplesBeforeSkip int
}

// withDefaults returns a copy of o with zero-valued fields replaced by
// spec.md §4.5's stated defaults.
func (o CompressionOptions) withDefaults() CompressionOptions {
	if o.NoCompressPattern == nil {
		o.NoCompressPattern = DefaultNoCompressPattern
	}
	if o.MinSizeBytes == 0 {
		o.MinSizeBytes = 150
	}
	if o.PoorRatioThreshold == 0 {
		o.PoorRatioThreshold = 0.9
	}
	if o.MinSamplesBeforeSkip == 0 {
		o.MinSamplesBeforeSkip = 3
	}
	return o
}

// MaxSimultaneousFileBackupsDefault is spec.md §4.4's default backpressure
// limit.
const MaxSimultaneousFileBackupsDefault = 5
