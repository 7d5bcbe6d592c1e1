package orchestrator

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/digest"
	"github.com/AshleyT3/atbu-go/pipeline"
)

// Result summarizes one completed backup session for the caller's report
// and exit-code decision (spec.md §6, §7).
type Result struct {
	SBI             *atbu.SpecificBackupInformation
	Stats           atbu.Stats
	Anomalies       atbu.Anomalies
	DiscoverSkipped []string
}

// Session runs one backup against opts.DB/opts.Container, wiring the
// hash/decide/read/compress/upload stages into a pipeline.Pipeline and
// sealing the result on completion (spec.md §4.4, §4.5).
type Session struct {
	opts    Options
	bodyKey *atbucrypto.KeyMaterial // nil means this session is unencrypted
	salt    [32]byte
	stats   *extStats
	pl      *pipeline.Pipeline[*WorkItem]
}

// NewSession prepares a Session: derives the session's body-encryption key
// once (the PBKDF2 pass in atbucrypto.DeriveKey is deliberately expensive,
// so it must not run per file — see UploadStage), picks a fresh
// ObjectNameHashSalt, and builds the stage pipeline.
func NewSession(opts Options) (*Session, error) {
	s := &Session{opts: opts, stats: newExtStats()}

	if _, err := rand.Read(s.salt[:]); err != nil {
		return nil, fmt.Errorf("orchestrator: generating object name salt: %w", err)
	}

	if opts.Passphrase != nil {
		master, err := atbucrypto.DeriveKey(opts.Passphrase, opts.KDFSalt, opts.KDFIterations)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: deriving session key: %w", err)
		}
		bodyKey, err := atbucrypto.DeriveSubkey(master, "object-body", atbucrypto.KeyLen)
		master.Close()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: deriving object-body key: %w", err)
		}
		s.bodyKey = bodyKey
	}

	stages := []*pipeline.Stage[*WorkItem]{
		{Name: "hash", Kind: pipeline.Thread, Fn: HashStage(nil)},
		{Name: "decide", Kind: pipeline.Thread, Fn: DecisionStage(opts.DB, opts)},
		{Name: "read", Kind: pipeline.Thread, Fn: ReadPlainData},
		{Name: "compress", Kind: pipeline.Thread, Fn: CompressionStage(opts.Compression, s.stats)},
		{Name: "upload", Kind: pipeline.Thread, Fn: UploadStage(opts, s.salt, s.bodyKey)},
	}
	s.pl = pipeline.New[*WorkItem](opts.Workers, stages...)
	return s, nil
}

// Close releases the session's derived key material. Safe to call more than
// once.
func (s *Session) Close() {
	if s.bodyKey != nil {
		s.bodyKey.Close()
	}
}

// Run executes one full backup session: discover, prefilter, pipeline the
// survivors through hash/decide/read/compress/upload with
// MaxSimultaneousFileBackups outstanding at a time, then seal.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	defer s.pl.Shutdown()

	paths, skipped, err := Discover(ctx, s.opts.SourceRoots, s.opts.ExcludeGlobs)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: discovering files: %w", err)
	}

	start := time.Now().UTC()
	sbi := &atbu.SpecificBackupInformation{
		BackupBaseName:     s.opts.BackupBaseName,
		SpecificBackupName: atbu.FormatSpecificBackupName(s.opts.BackupBaseName, start),
		BackupStartTimeUTC: start,
		BackupType:         s.opts.BackupType,
		ObjectNameHashSalt: s.salt,
	}

	var anomalies atbu.Anomalies
	maxInFlight := s.opts.MaxSimultaneousFileBackups
	if maxInFlight <= 0 {
		maxInFlight = MaxSimultaneousFileBackupsDefault
	}

	type inflight struct {
		fut *pipeline.Future[*WorkItem]
	}
	var window []inflight

	drainOne := func() error {
		oldest := window[0]
		window = window[1:]
		wi, err := oldest.fut.Wait(ctx)
		if err != nil && wi == nil {
			return err
		}
		sbi.BackupFiles = append(sbi.BackupFiles, wi.BFI)
		if wi.Anomaly != nil {
			anomalies.Add(wi.Anomaly)
		}
		if wi.Failed() {
			anomalies.Add(&atbu.Anomaly{Path: wi.BFI.Path, Kind: "backup-failed", Err: wi.Err})
		}
		return nil
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bfi, err := s.newBFI(p)
		if err != nil {
			anomalies.Add(&atbu.Anomaly{Path: p, Kind: "stat-failed", Err: err})
			continue
		}

		if !Prefilter(bfi, s.opts.DB, s.opts.BackupType) {
			// Prefilter decided this file is unchanged and populated bfi
			// in place; it never enters the pipeline.
			sbi.BackupFiles = append(sbi.BackupFiles, bfi)
			continue
		}

		for len(window) >= maxInFlight {
			if err := drainOne(); err != nil {
				return nil, err
			}
		}
		fut, err := s.pl.Submit(ctx, &WorkItem{BFI: bfi})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: submitting %q: %w", p, err)
		}
		window = append(window, inflight{fut: fut})
	}
	for len(window) > 0 {
		if err := drainOne(); err != nil {
			return nil, err
		}
	}

	if err := Seal(ctx, s.opts.DB, sbi, s.opts, s.bodyKey); err != nil {
		return nil, err
	}

	return &Result{
		SBI:             sbi,
		Stats:           sbi.Compute(),
		Anomalies:       anomalies,
		DiscoverSkipped: skipped,
	}, nil
}

// newBFI stats path and builds its initial BackupFileInformation, ahead of
// the hashing stage (spec.md §4.5 steps 1-2).
func (s *Session) newBFI(path string) (*atbu.BackupFileInformation, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	root := s.discoveryRootFor(path)
	return &atbu.BackupFileInformation{
		Path:                path,
		PathWithoutRoot:     pathWithoutRoot(path),
		DiscoveryPath:       root,
		SizeInBytes:         fi.Size(),
		ModifiedTime:        digest.ModifiedTime(fi),
		AccessedTime:        digest.AccessedTime(fi),
		DeduplicationOption: s.opts.DedupMode,
	}, nil
}

// discoveryRootFor returns the longest SourceRoots entry that contains
// path, or path's directory if none match (shouldn't happen for a path
// Discover actually returned).
func (s *Session) discoveryRootFor(path string) string {
	best := ""
	for _, root := range s.opts.SourceRoots {
		if strings.HasPrefix(path, root) && len(root) > len(best) {
			best = root
		}
	}
	if best == "" {
		return filepath.Dir(path)
	}
	return best
}

// pathWithoutRoot strips any Windows drive/volume prefix and normalizes
// separators to '/', so the result is portable and safe to hash into an
// object name (spec.md §4.5 step 8).
func pathWithoutRoot(p string) string {
	vol := filepath.VolumeName(p)
	return filepath.ToSlash(strings.TrimPrefix(p, vol))
}
