package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/lock"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/orchestrator"
)

// cmdBackup implements `backup <sources...> <dest>` (spec.md §6).
func cmdBackup(ctx context.Context, args []string) int {
	fs := newFlagSet("backup")
	full := fs.Bool("full", false, "full backup (default)")
	incremental := fs.Bool("incremental", false, "incremental backup")
	incrementalPlus := fs.Bool("incremental-plus", false, "incremental-plus backup (enables bitrot detection)")
	incrementalHybrid := fs.Bool("incremental-hybrid", false, "incremental-hybrid backup")
	dedup := fs.String("dedup", "", "digest|digest-ext")
	var excludes stringList
	fs.Var(&excludes, "exclude", "glob to exclude (repeatable)")
	detectBitrot := fs.Bool("detect-bitrot", false, "enable sneaky-corruption detection")
	noDetectBitrot := fs.Bool("no-detect-bitrot", false, "disable sneaky-corruption detection")
	compression := fs.String("compression", "normal", "none|normal")
	dryrun := fs.Bool("dryrun", false, "list what would be backed up and exit 99 without doing it")
	dbType := fs.String("db-type", "default", "default|json|sqlite")
	password := fs.String("password", "", "passphrase, file path, or env var name naming one (spec.md §6)")
	if err := fs.Parse(args); err != nil {
		return exitDryRun
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "backup: need at least one source and a destination")
		return exitDryRun
	}
	sources := fs.Args()[:fs.NArg()-1]
	dest := fs.Args()[fs.NArg()-1]

	backupType := atbu.BackupFull
	switch {
	case *incremental:
		backupType = atbu.BackupIncremental
	case *incrementalPlus:
		backupType = atbu.BackupIncrementalPlus
	case *incrementalHybrid:
		backupType = atbu.BackupIncrementalHybrid
	case *full:
		backupType = atbu.BackupFull
	}

	if *dryrun {
		paths, skipped, err := orchestrator.Discover(ctx, sources, excludes)
		if err != nil {
			fmt.Fprintln(os.Stderr, "backup --dryrun:", err)
			return exitAnomaly
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		for _, s := range skipped {
			fmt.Fprintln(os.Stderr, "skipped (unreadable):", s)
		}
		return exitDryRun
	}

	d, err := openDestination(ctx, dest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backup:", err)
		return exitAnomaly
	}
	db, err := loadOrNewDB(d.BIDPath, dest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backup: loading BID:", err)
		return exitAnomaly
	}
	lease := lock.NewDestination(d.BIDPath + ".lock")
	if err := lease.Acquire(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "backup:", err)
		return exitAnomaly
	}
	defer lease.Release()

	passphrase, err := resolvePassphrase(*password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backup:", err)
		return exitAnomaly
	}

	opts := orchestrator.Options{
		SourceRoots:    sources,
		ExcludeGlobs:   excludes,
		BackupBaseName: dest,
		BackupType:     backupType,
		DedupMode:      atbu.DeduplicationOption(*dedup),
		Container:      d.Container,
		RetryPolicy:    objectstore.NewRetryPolicy(d.Store),
		Passphrase:     passphrase,
		SneakyCorruptionDetection: resolveBitrotFlag(*detectBitrot, *noDetectBitrot, backupType),
		Compression:               compressionOptions(*compression),
		DB:                        db,
		PrimaryBIDPath:            d.BIDPath,
		ForceRelational:           *dbType == "sqlite",
		Reservations:              lock.NewReservations(),
	}
	if passphrase != nil {
		params, err := loadOrCreateKDFParams(dest)
		if err != nil {
			fmt.Fprintln(os.Stderr, "backup:", err)
			return exitAnomaly
		}
		opts.KDFSalt = params.Salt
		opts.KDFIterations = params.Iterations
	}

	sess, err := orchestrator.NewSession(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backup:", err)
		return exitAnomaly
	}
	defer sess.Close()

	log := zerolog.Ctx(ctx).With().Str("component", "cmd.backup").Str("dest", dest).Logger()
	log.Info().Strs("sources", sources).Msg("starting backup session")

	result, err := sess.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backup:", err)
		return exitAnomaly
	}

	fmt.Printf("total files: %d, unchanged: %d, ops: %d, errors: %d, bytes: %d, successful: %d\n",
		result.Stats.TotalFiles, result.Stats.UnchangedSkipped, result.Stats.BackupOperations,
		result.Stats.Errors, result.Stats.BytesBackedUp, result.Stats.SuccessfulBackups)
	for ext, ratio := range result.Stats.CompressionRatios {
		fmt.Printf("  %s: avg ratio %.3f\n", ext, ratio)
	}
	if result.Anomalies.Len() > 0 {
		for _, a := range result.Anomalies.Items() {
			fmt.Fprintln(os.Stderr, "anomaly:", a.Error())
		}
		return exitAnomaly
	}
	return exitSuccess
}

func resolveBitrotFlag(detect, noDetect bool, backupType atbu.BackupType) bool {
	switch {
	case noDetect:
		return false
	case detect:
		return true
	default:
		return backupType == atbu.BackupIncrementalPlus
	}
}

func compressionOptions(mode string) orchestrator.CompressionOptions {
	if mode == "none" {
		return orchestrator.CompressionOptions{NoCompressPattern: regexp.MustCompile(`.*`)}
	}
	return orchestrator.CompressionOptions{}
}

// stringList implements flag.Value to collect a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
