package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/objectstore/filesystem"
	"github.com/AshleyT3/atbu-go/retrieval"
)

// cmdDecrypt implements `decrypt <private-key-storage> <src-glob> <dest>
// [--overwrite]` (spec.md §6, §8 scenario 6): recovers files from raw
// encrypted objects using only each object's own header and preamble, with
// no BID at all — the scenario a lost/corrupted local BID leaves as the
// last resort short of `recover`.
//
// <private-key-storage> names the directory holding the object store (the
// same bare-directory form other commands accept); spec.md's broader
// keyring/YubiKey credential lookup is an external collaborator (§1
// Non-goals) this binary narrows to the --password flag.
func cmdDecrypt(ctx context.Context, args []string) int {
	fs := newFlagSet("decrypt")
	overwrite := fs.Bool("overwrite", false, "allow replacing an existing destination file")
	password := fs.String("password", "", "passphrase, file path, or env var name naming one (spec.md §6)")
	if err := fs.Parse(args); err != nil {
		return exitAnomaly
	}
	if fs.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "decrypt: usage: decrypt <storage-dir> <src-glob> <dest>")
		return exitAnomaly
	}
	storageDir, glob, destRoot := fs.Args()[0], fs.Args()[1], fs.Args()[2]

	store, err := filesystem.New(storageDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt:", err)
		return exitAnomaly
	}
	container, err := store.GetContainer(ctx, "dest")
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt:", err)
		return exitAnomaly
	}

	bodyKey, err := sessionBodyKey(storageDir, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt:", err)
		return exitAnomaly
	}
	if bodyKey != nil {
		defer bodyKey.Close()
	}

	names, err := matchingObjectNames(ctx, container, glob)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decrypt:", err)
		return exitAnomaly
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "decrypt: no objects matched", glob)
		return exitAnomaly
	}

	retryPolicy := objectstore.NewRetryPolicy(store)
	log := zerolog.Ctx(ctx).With().Str("component", "cmd.decrypt").Logger()
	var failures int
	for _, name := range names {
		sink := &retrieval.FileSink{Root: destRoot, Overwrite: *overwrite}
		if err := retrieval.RetrieveRaw(ctx, container, name, retryPolicy, bodyKey, sink); err != nil {
			log.Error().Err(err).Str("object", name).Msg("decrypt failed")
			failures++
			continue
		}
		fmt.Println(name)
	}
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "decrypt: %d object(s) failed\n", failures)
		return exitAnomaly
	}
	return exitSuccess
}

// matchingObjectNames lists every object in container whose base name
// matches glob (shell-glob semantics, spec.md §6's `<src-glob>`).
func matchingObjectNames(ctx context.Context, container objectstore.Container, glob string) ([]string, error) {
	objs, err := container.ListObjects(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	var out []string
	for _, o := range objs {
		name := o.Info().Name
		ok, err := filepath.Match(glob, name)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", glob, err)
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}
