package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/bid"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/wireformat"
)

// bidObjectTimestampLayout matches the "YYYYMMDD-HHMMSS" suffix spec.md
// §4.5 step 9 specifies for the uploaded BID object's name.
const bidObjectTimestampLayout = "20060102-150405"

// BIDObjectName renders the "zz-backup-info-<timestamp>.atbuinf[.enc]"
// object name spec.md §4.5 step 9 and bid.IsBackupInfoObjectName agree on.
func BIDObjectName(t time.Time, encrypted bool) string {
	name := "zz-backup-info-" + t.UTC().Format(bidObjectTimestampLayout) + ".atbuinf"
	if encrypted {
		name += ".enc"
	}
	return name
}

// Seal implements spec.md §4.5 step 9: append sbi to db, write the BID to
// its primary and secondary locations, then upload the BID itself so a
// session can be fully recovered from the store alone (bid.RecoverFromStore).
// bodyKey is the same per-session object-body key UploadStage uses; when
// non-nil, the uploaded snapshot is wrapped in the same header+AES-CBC body
// every other object uses, so `recover` undoes it exactly like any other
// encrypted object before handing the plaintext to bid.RecoverFromStore.
func Seal(ctx context.Context, db *bid.Database, sbi *atbu.SpecificBackupInformation, opts Options, bodyKey *atbucrypto.KeyMaterial) error {
	if err := db.AppendSBI(sbi); err != nil {
		return fmt.Errorf("orchestrator: sealing session: %w", err)
	}

	if err := bid.Save(db, opts.PrimaryBIDPath, opts.ForceRelational); err != nil {
		return fmt.Errorf("orchestrator: writing primary BID: %w", err)
	}
	for _, path := range opts.SecondaryBIDPaths {
		if err := bid.Save(db, path, opts.ForceRelational); err != nil {
			return fmt.Errorf("orchestrator: writing secondary BID %q: %w", path, err)
		}
	}

	plaintext, err := bidBytesForUpload(opts.PrimaryBIDPath)
	if err != nil {
		return fmt.Errorf("orchestrator: reading sealed BID for upload: %w", err)
	}
	raw, err := wrapSnapshot(plaintext, bodyKey)
	if err != nil {
		return fmt.Errorf("orchestrator: wrapping sealed BID: %w", err)
	}
	name := BIDObjectName(sbi.BackupStartTimeUTC, bodyKey != nil)
	uploadErr := opts.RetryPolicy.Do(ctx, "orchestrator.seal-upload", func(ctx context.Context) error {
		return opts.Container.UploadStream(ctx, name, objectstore.NewSliceChunkIterator(raw, opts.Container.UploadChunkSize()), opts.PrimaryBIDPath)
	})
	if uploadErr != nil {
		return fmt.Errorf("orchestrator: uploading sealed BID: %w", uploadErr)
	}
	return nil
}

// wrapSnapshot prefixes plaintext with the standard object header
// (spec.md §4.2), AES-CBC-encrypting it under bodyKey when non-nil. The
// snapshot carries no preamble — it is not itself a backed-up file — so
// `recover` parses only the header before handing the rest straight to
// bid.RecoverFromStore.
func wrapSnapshot(plaintext []byte, bodyKey *atbucrypto.KeyMaterial) ([]byte, error) {
	if bodyKey == nil {
		header, err := wireformat.NewHeader(false, nil)
		if err != nil {
			return nil, err
		}
		headerBytes, err := header.Encode()
		if err != nil {
			return nil, err
		}
		return append(headerBytes, plaintext...), nil
	}

	iv, err := atbucrypto.NewIV()
	if err != nil {
		return nil, err
	}
	enc, err := atbucrypto.NewEncryptor(bodyKey.Bytes(), iv)
	if err != nil {
		return nil, err
	}
	ciphertext := enc.EncryptFinal(plaintext)

	header, err := wireformat.NewHeader(true, iv)
	if err != nil {
		return nil, err
	}
	headerBytes, err := header.Encode()
	if err != nil {
		return nil, err
	}
	return append(headerBytes, ciphertext...), nil
}

// bidBytesForUpload reads back the BID file bid.Save just wrote at path, so
// the object uploaded to the store is a byte-identical copy of what's on
// disk (JSON document or raw SQLite file, whichever form path uses) rather
// than a re-serialization that could drift from it.
func bidBytesForUpload(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reading %q: %w", path, err)
	}
	return raw, nil
}
