package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/bid"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/objectstore/filesystem"
	"github.com/AshleyT3/atbu-go/wireformat"
)

// cmdRecover implements `recover <storage|config-file> [<config-file>]`
// (spec.md §6, §8 scenario 5): rebuilds the local BID purely from the
// newest zz-backup-info-* snapshot object in the store, for the case where
// the local BID file was lost or deleted. This binary only resolves the
// bare-directory storage form; the optional second <config-file> argument
// belongs to the host's config-file resolution (§1 Non-goals) and is
// rejected here.
func cmdRecover(ctx context.Context, args []string) int {
	fs := newFlagSet("recover")
	password := fs.String("password", "", "passphrase, file path, or env var name naming one (spec.md §6)")
	if err := fs.Parse(args); err != nil {
		return exitAnomaly
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "recover: usage: recover <storage-dir>")
		return exitAnomaly
	}
	dir := fs.Args()[0]

	store, err := filesystem.New(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover:", err)
		return exitAnomaly
	}
	container, err := store.GetContainer(ctx, "dest")
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover:", err)
		return exitAnomaly
	}

	objs, err := container.ListObjects(ctx, "zz-backup-info-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover: listing snapshot objects:", err)
		return exitAnomaly
	}
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Info().Name
	}
	newest := bid.NewestBackupInfoObject(names)
	if newest == "" {
		fmt.Fprintln(os.Stderr, "recover: no zz-backup-info-* snapshot object found in", dir)
		return exitAnomaly
	}

	bodyKey, err := sessionBodyKey(dir, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover:", err)
		return exitAnomaly
	}
	if bodyKey != nil {
		defer bodyKey.Close()
	}

	plaintext, err := downloadAndUnwrapSnapshot(ctx, container, newest, bodyKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover:", err)
		return exitAnomaly
	}

	db, err := bid.RecoverFromStore(plaintext)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover: reconstructing BID:", err)
		return exitAnomaly
	}

	d, err := openDestination(ctx, dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover:", err)
		return exitAnomaly
	}
	if err := bid.Save(db, d.BIDPath, false); err != nil {
		fmt.Fprintln(os.Stderr, "recover: writing recovered BID:", err)
		return exitAnomaly
	}

	fmt.Printf("recovered %d specific backup(s) from %q into %q\n", len(db.SpecificBackups), newest, d.BIDPath)
	return exitSuccess
}

// downloadAndUnwrapSnapshot downloads name in full and strips its
// wireformat header, decrypting under bodyKey when the header carries an
// IV — the inverse of orchestrator.wrapSnapshot. The snapshot carries no
// preamble, since it isn't itself a backed-up file.
func downloadAndUnwrapSnapshot(ctx context.Context, container objectstore.Container, name string, bodyKey *atbucrypto.KeyMaterial) ([]byte, error) {
	it, err := container.DownloadStream(ctx, name, container.DownloadChunkSize())
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", name, err)
	}
	raw, err := io.ReadAll(objectstore.NewByteChunkReader(ctx, it))
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", name, err)
	}

	header, n, err := wireformat.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	body := raw[n:]
	if !header.HasIV() {
		return body, nil
	}
	if bodyKey == nil {
		return nil, fmt.Errorf("%q is encrypted but no key was supplied", name)
	}
	dec, err := atbucrypto.NewDecryptor(bodyKey.Bytes(), header.IV)
	if err != nil {
		return nil, err
	}
	plaintext, err := dec.DecryptFinal(body)
	if err != nil {
		return nil, fmt.Errorf("decrypting %q: %w", name, err)
	}
	return plaintext, nil
}
