package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/digest"
	"github.com/AshleyT3/atbu-go/lock"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/wireformat"
)

// MaxNameCollisionAttempts bounds the "-NNN" disambiguation loop (spec.md
// §4.5 step 8).
const MaxNameCollisionAttempts = 1000

// candidateObjectName derives the base object name for path (already
// drive-stripped) under salt, per spec.md §4.5 step 8:
// sha256(salt || path_without_drive) hex, with a `.atbake`/`.atbak`
// extension depending on encryption.
func candidateObjectName(salt [32]byte, pathWithoutRoot string, encrypted bool) string {
	h := sha256.New()
	h.Write(salt[:])
	h.Write([]byte(pathWithoutRoot))
	name := hex.EncodeToString(h.Sum(nil))
	if encrypted {
		return name + ".atbake"
	}
	return name + ".atbak"
}

// reserveObjectName finds an unused, unreserved object name for wi's path,
// appending "-NNN" on collision up to MaxNameCollisionAttempts times
// (spec.md §4.5 step 8). The caller must eventually call reservations.Release
// on the returned name once the upload either succeeds or permanently
// fails.
func reserveObjectName(ctx context.Context, container objectstore.Container, reservations *lock.Reservations, salt [32]byte, pathWithoutRoot string, encrypted bool) (string, error) {
	base := candidateObjectName(salt, pathWithoutRoot, encrypted)
	for attempt := 0; attempt < MaxNameCollisionAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%03d", base, attempt)
		}
		if !reservations.TryReserve(candidate) {
			continue
		}
		_, err := container.GetObject(ctx, candidate)
		if err == nil {
			reservations.Release(candidate)
			continue
		}
		return candidate, nil
	}
	return "", atbu.ErrNameReservationExhausted
}

// UploadStage returns the upload stage (spec.md §4.5 step 8): derive and
// reserve the object name, write header+preamble+body (encrypting if
// opts.Passphrase is set), retrying transient driver errors with backoff.
// On final failure it deletes any partial object before surfacing the
// error. bodyKey is derived once per session (see NewSession) rather
// than per file, since the PBKDF2 pass behind it is deliberately
// expensive; nil means the session is unencrypted.
func UploadStage(opts Options, salt [32]byte, bodyKey *atbucrypto.KeyMaterial) func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
	return func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
		if wi.Skip || wi.Failed() {
			return wi, nil
		}

		encrypted := bodyKey != nil
		name, err := reserveObjectName(ctx, opts.Container, opts.Reservations, salt, wi.BFI.PathWithoutRoot, encrypted)
		if err != nil {
			wi.Err = err
			return wi, err
		}
		defer opts.Reservations.Release(name)

		body, iv, err := buildObjectBody(wi, bodyKey)
		if err != nil {
			wi.Err = err
			return wi, err
		}

		uploadErr := opts.RetryPolicy.Do(ctx, "orchestrator.upload", func(ctx context.Context) error {
			return opts.Container.UploadStream(ctx, name, objectstore.NewSliceChunkIterator(body, opts.Container.UploadChunkSize()), wi.BFI.Path)
		})
		if uploadErr != nil {
			_ = opts.Container.DeleteObject(ctx, name)
			wi.Err = uploadErr
			wi.BFI.IsSuccessful = false
			wi.BFI.Exception = uploadErr.Error()
			return wi, uploadErr
		}

		wi.BFI.StorageObjectName = name
		wi.BFI.IsBackupEncrypted = encrypted
		wi.BFI.EncryptionIV = iv
		wi.BFI.IsSuccessful = true
		return wi, nil
	}
}

// buildObjectBody renders the full on-wire object: plaintext header
// followed by the (optionally encrypted) preamble+file-bytes body
// (spec.md §4.2). bodyKey nil means unencrypted.
func buildObjectBody(wi *WorkItem, bodyKey *atbucrypto.KeyMaterial) (body []byte, iv []byte, err error) {
	algo := digest.DefaultAlgorithm
	digestHex := wi.BFI.Digests[algo]

	preamble := wireformat.Preamble{
		DigestAlgorithm: algo,
		Digest:          digestHex,
		Compression:     compressionFlag(wi),
		Size:            wi.BFI.SizeInBytes,
		Modified:        wi.BFI.ModifiedTime,
		Accessed:        wi.BFI.AccessedTime,
		Path:            wi.BFI.PathWithoutRoot,
	}
	preambleBytes, err := preamble.Encode()
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: encoding preamble: %w", err)
	}
	plaintext := append(preambleBytes, wi.UploadData...)

	if bodyKey == nil {
		header, err := wireformat.NewHeader(false, nil)
		if err != nil {
			return nil, nil, err
		}
		headerBytes, err := header.Encode()
		if err != nil {
			return nil, nil, err
		}
		return append(headerBytes, plaintext...), nil, nil
	}

	iv, err = atbucrypto.NewIV()
	if err != nil {
		return nil, nil, err
	}
	enc, err := atbucrypto.NewEncryptor(bodyKey.Bytes(), iv)
	if err != nil {
		return nil, nil, err
	}
	ciphertext := enc.EncryptFinal(plaintext)

	header, err := wireformat.NewHeader(true, iv)
	if err != nil {
		return nil, nil, err
	}
	headerBytes, err := header.Encode()
	if err != nil {
		return nil, nil, err
	}

	h := sha256.Sum256(ciphertext)
	wi.BFI.CiphertextHashDuringBackup = hex.EncodeToString(h[:])

	return append(headerBytes, ciphertext...), iv, nil
}
