package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/retrieval"
)

// cmdRestore implements `restore <selectors...> <dest> [--overwrite]
// [--auto-mapping|--no-auto-mapping]` (spec.md §6).
func cmdRestore(ctx context.Context, args []string) int {
	fs := newFlagSet("restore")
	overwrite := fs.Bool("overwrite", false, "allow replacing an existing destination file")
	autoMapping := fs.Bool("auto-mapping", true, "strip the selection's common discovery prefix (default)")
	noAutoMapping := fs.Bool("no-auto-mapping", false, "preserve original relative paths instead")
	password := fs.String("password", "", "passphrase, file path, or env var name naming one (spec.md §6)")
	if err := fs.Parse(args); err != nil {
		return exitAnomaly
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "restore: need at least one selector and a destination")
		return exitAnomaly
	}

	tokens := fs.Args()[:fs.NArg()-1]
	destRoot := fs.Args()[fs.NArg()-1]

	sel, sourceDir, err := parseSelectors(tokens)
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		return exitAnomaly
	}

	d, db, bfis, err := resolveSelection(ctx, sourceDir, sel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		return exitAnomaly
	}
	if len(bfis) == 0 {
		fmt.Fprintln(os.Stderr, "restore: selection matched no files")
		return exitAnomaly
	}

	bodyKey, err := sessionBodyKey(sourceDir, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		return exitAnomaly
	}
	if bodyKey != nil {
		defer bodyKey.Close()
	}

	prefix := retrieval.CommonDiscoveryPrefix(bfis)
	if *noAutoMapping || !*autoMapping {
		prefix = ""
	}

	opts := retrieval.Options{
		Container:   d.Container,
		RetryPolicy: objectstore.NewRetryPolicy(d.Store),
		BodyKey:     bodyKey,
	}

	log := zerolog.Ctx(ctx).With().Str("component", "cmd.restore").Logger()
	var failures int
	for _, bfi := range bfis {
		sink := &retrieval.FileSink{Root: destRoot, MapPath: retrieval.AutoMapper(prefix), Overwrite: *overwrite}
		if err := retrieval.Retrieve(ctx, db, bfi, opts, sink); err != nil {
			log.Error().Err(err).Str("path", bfi.PathWithoutRoot).Msg("restore failed")
			failures++
			continue
		}
		fmt.Println(bfi.PathWithoutRoot)
	}
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "restore: %d file(s) failed\n", failures)
		return exitAnomaly
	}
	return exitSuccess
}
