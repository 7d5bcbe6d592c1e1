package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/bid"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/objectstore/filesystem"
	"github.com/AshleyT3/atbu-go/selection"
)

// destination bundles the resolved filesystem store a bare-directory
// destination argument maps to (spec.md §4.8's "bare absolute directory
// resolves to a filesystem storage definition"), plus the BID path this
// binary keeps alongside it under "<dest>/.atbu/" (spec.md §6 "Persisted
// state layout").
type destination struct {
	Store     *filesystem.Store
	Container objectstore.Container
	BIDPath   string
}

// openDestination resolves dir to a filesystem storage definition: the
// "dest" object container lives directly under dir, and the BID lives at
// dir/.atbu/backup-info.atbuinf.
func openDestination(ctx context.Context, dir string) (*destination, error) {
	store, err := filesystem.New(dir)
	if err != nil {
		return nil, err
	}
	container, err := store.GetContainer(ctx, "dest")
	if err != nil {
		if errors.Is(err, objectstore.ErrContainerNotFound) {
			container, err = store.CreateContainer(ctx, "dest")
		}
		if err != nil {
			return nil, err
		}
	}
	return &destination{
		Store:     store,
		Container: container,
		BIDPath:   filepath.Join(dir, ".atbu", "backup-info.atbuinf"),
	}, nil
}

// loadOrNewDB opens the BID at path, or returns a fresh empty one named
// name if no file exists at path yet.
func loadOrNewDB(path, name string) (*bid.Database, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return bid.New(name), nil
	}
	return bid.Load(path)
}

// kdfParams is the per-destination PBKDF2 salt and iteration count this
// host binary keeps beside the BID (dir/.atbu/kdf.json), since
// orchestrator.Options treats them as caller-supplied (spec.md §6
// "Persisted state layout"). A destination's KDF parameters must stay
// fixed for its lifetime: every encrypted session has to re-derive the
// same object-body key from the same passphrase, or an earlier session's
// objects become unreadable.
type kdfParams struct {
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
}

func kdfParamsPath(dir string) string {
	return filepath.Join(dir, ".atbu", "kdf.json")
}

// loadOrCreateKDFParams returns dir's persisted KDF parameters, generating
// and saving a fresh salt on first use. Called by backup, which is the only
// command allowed to originate new parameters.
func loadOrCreateKDFParams(dir string) (kdfParams, error) {
	if p, err := loadKDFParams(dir); err == nil {
		return p, nil
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return kdfParams{}, fmt.Errorf("generating KDF salt: %w", err)
	}
	p := kdfParams{Salt: salt, Iterations: atbucrypto.DefaultKDFIterations}
	path := kdfParamsPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kdfParams{}, fmt.Errorf("creating %q: %w", filepath.Dir(path), err)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return kdfParams{}, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return kdfParams{}, fmt.Errorf("writing %q: %w", path, err)
	}
	return p, nil
}

// loadKDFParams reads dir's persisted KDF parameters without creating them,
// for restore/verify/recover: those commands must reuse whatever parameters
// the original backup used, never invent new ones.
func loadKDFParams(dir string) (kdfParams, error) {
	path := kdfParamsPath(dir)
	b, err := os.ReadFile(path)
	if err != nil {
		return kdfParams{}, fmt.Errorf("no KDF parameters recorded at %q (was this destination ever backed up with --password?): %w", path, err)
	}
	var p kdfParams
	if err := json.Unmarshal(b, &p); err != nil {
		return kdfParams{}, fmt.Errorf("parsing %q: %w", path, err)
	}
	return p, nil
}

// deriveBodyKey reproduces the exact object-body key orchestrator.Session
// derives: one PBKDF2 pass over passphrase+params, then an HKDF "object-body"
// subkey expansion (see orchestrator.NewSession). Returns nil if passphrase
// is nil.
func deriveBodyKey(passphrase *atbucrypto.KeyMaterial, params kdfParams) (*atbucrypto.KeyMaterial, error) {
	if passphrase == nil {
		return nil, nil
	}
	master, err := atbucrypto.DeriveKey(passphrase, params.Salt, params.Iterations)
	if err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	defer master.Close()
	bodyKey, err := atbucrypto.DeriveSubkey(master, "object-body", atbucrypto.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving object-body key: %w", err)
	}
	return bodyKey, nil
}

// resolvePassphrase implements the --password flag's three-way credential
// reference resolution (spec.md §6 Environment, atbucrypto.ResolveSecret).
// An empty ref means an unencrypted backup.
func resolvePassphrase(ref string) (*atbucrypto.KeyMaterial, error) {
	if ref == "" {
		return nil, nil
	}
	km, err := atbucrypto.ResolveSecret(ref)
	if err != nil {
		return nil, fmt.Errorf("resolving --password: %w", err)
	}
	return km, nil
}

// sessionBodyKey resolves the --password reference, if any, against dir's
// persisted KDF parameters and returns the session object-body key
// restore/verify/decrypt need to undo encryption, mirroring exactly what
// the original backup session derived (orchestrator.NewSession). Returns
// nil, nil when passwordRef is empty.
func sessionBodyKey(dir, passwordRef string) (*atbucrypto.KeyMaterial, error) {
	passphrase, err := resolvePassphrase(passwordRef)
	if err != nil {
		return nil, err
	}
	if passphrase == nil {
		return nil, nil
	}
	defer passphrase.Close()
	params, err := loadKDFParams(dir)
	if err != nil {
		return nil, err
	}
	return deriveBodyKey(passphrase, params)
}

// openSourceForRead resolves dir to its filesystem storage definition
// without creating anything, for commands (restore/verify/list) that only
// ever read from a destination that must already exist.
func openSourceForRead(ctx context.Context, dir string) (*destination, error) {
	store, err := filesystem.New(dir)
	if err != nil {
		return nil, err
	}
	container, err := store.GetContainer(ctx, "dest")
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", dir, err)
	}
	return &destination{
		Store:     store,
		Container: container,
		BIDPath:   filepath.Join(dir, ".atbu", "backup-info.atbuinf"),
	}, nil
}

// parseSelectors parses the leading run of selector tokens common to
// restore/verify/list (spec.md §4.8): exactly one storage target (this
// binary only resolves the bare-absolute-directory form; storage:/
// storage-def: names require host-side configuration lookup this binary
// doesn't implement), at most one backup: token, and any number of files:
// tokens.
func parseSelectors(tokens []string) (selection.Selectors, string, error) {
	var sel selection.Selectors
	var target *selection.Target
	var haveBackup bool
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "backup:"):
			if haveBackup {
				return selection.Selectors{}, "", fmt.Errorf("multiple backup: selectors given")
			}
			v, err := selection.ParseBackupToken(tok)
			if err != nil {
				return selection.Selectors{}, "", err
			}
			sel.Backup = v
			haveBackup = true
		case strings.HasPrefix(tok, "files:"):
			v, err := selection.ParseFilesToken(tok)
			if err != nil {
				return selection.Selectors{}, "", err
			}
			sel.Files = append(sel.Files, v)
		default:
			if target != nil {
				return selection.Selectors{}, "", fmt.Errorf("more than one storage target given (%q and %q)", target.Directory+target.Name, tok)
			}
			t, err := selection.ParseTarget(tok)
			if err != nil {
				return selection.Selectors{}, "", err
			}
			target = &t
		}
	}
	if target == nil {
		return selection.Selectors{}, "", fmt.Errorf("no storage:/storage-def:/directory selector given")
	}
	if target.Directory == "" {
		return selection.Selectors{}, "", fmt.Errorf("storage:%s: named storage definitions require host configuration this binary does not implement; pass a bare absolute directory instead", target.Name)
	}
	sel.Target = *target
	return sel, target.Directory, nil
}

// resolveSelection opens sourceDir read-only, loads its BID, and resolves
// sel against it (spec.md §4.8).
func resolveSelection(ctx context.Context, sourceDir string, sel selection.Selectors) (*destination, *bid.Database, []*atbu.BackupFileInformation, error) {
	d, err := openSourceForRead(ctx, sourceDir)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := os.Stat(d.BIDPath); err != nil {
		return nil, nil, nil, fmt.Errorf("no backup information database at %q (run `recover` first?): %w", d.BIDPath, err)
	}
	db, err := bid.Load(d.BIDPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading %q: %w", d.BIDPath, err)
	}
	bfis, err := selection.Resolve(db, sel)
	if err != nil {
		return nil, nil, nil, err
	}
	return d, db, bfis, nil
}
