package retrieval

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/bid"
	"github.com/AshleyT3/atbu-go/digest"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/wireformat"
)

// Options configures one Retrieve call. RetryPolicy and Container are
// required; BodyKey is required only when the object being fetched is
// encrypted.
type Options struct {
	Container   objectstore.Container
	RetryPolicy *objectstore.RetryPolicy
	// BodyKey is the session body-decryption key, derived the same way
	// the backup session derives its body-encryption key (one expensive
	// KDF pass, then an HKDF subkey) — see orchestrator.NewSession.
	BodyKey *atbucrypto.KeyMaterial
}

// Retrieve downloads and verifies one file (spec.md §4.7). bfi may be an
// IsUnchangedSinceLast placeholder; Arena.Physical resolves it to the
// physically-backed BFI carrying the real object name, digest, and IV. The
// verified plaintext is forwarded to sink. Transient download errors are
// retried per opts.RetryPolicy; each retry discards any partial sink state
// by construction, since nothing is written to sink until the whole body
// has been downloaded, decrypted, decompressed, and verified.
func Retrieve(ctx context.Context, db *bid.Database, bfi *atbu.BackupFileInformation, opts Options, sink Sink) error {
	physical := db.Physical(bfi)
	if physical == nil {
		return fmt.Errorf("retrieval: %w: unresolved backing reference for %q", atbu.ErrBIDIntegrity, bfi.PathWithoutRoot)
	}
	return opts.RetryPolicy.Do(ctx, "retrieval.download", func(ctx context.Context) error {
		return attempt(ctx, physical, opts, sink)
	})
}

func attempt(ctx context.Context, physical *atbu.BackupFileInformation, opts Options, sink Sink) (err error) {
	preamble, plaintext, ciphertextHash, err := downloadDecryptParse(ctx, opts.Container, physical.StorageObjectName, opts.BodyKey, physical.EncryptionIV)
	if err != nil {
		return err
	}

	if err := verify(physical, preamble, plaintext, ciphertextHash); err != nil {
		return objectstore.Permanent(err)
	}

	return deliver(preamble, plaintext, sink)
}

// RetrieveRaw downloads and decrypts one object using only its own header
// and preamble, with no BID to cross-check against — the `decrypt` command's
// contract (spec.md §6, §8 scenario 6: "destination tree is reconstructed
// purely from each object's header and preamble"). It still enforces that
// the plaintext's length matches what the preamble itself declares, since
// that much is self-verifiable without a BFI.
func RetrieveRaw(ctx context.Context, container objectstore.Container, name string, retryPolicy *objectstore.RetryPolicy, bodyKey *atbucrypto.KeyMaterial, sink Sink) error {
	return retryPolicy.Do(ctx, "retrieval.download-raw", func(ctx context.Context) error {
		preamble, plaintext, _, err := downloadDecryptParse(ctx, container, name, bodyKey, nil)
		if err != nil {
			return err
		}
		if int64(len(plaintext)) != preamble.Size {
			return objectstore.Permanent(fmt.Errorf("retrieval: %q: size mismatch: got %d bytes, preamble says %d", name, len(plaintext), preamble.Size))
		}
		return deliver(preamble, plaintext, sink)
	})
}

// downloadDecryptParse downloads name in full, parses its header, decrypts
// the body under bodyKey if the header carries an IV, and parses the
// resulting plaintext's preamble, decompressing the file bytes if the
// preamble says so. preferredIV, when 16 bytes, takes precedence over the
// header's own IV (spec.md §4.7 step 2); pass nil when there is no BFI to
// supply one (RetrieveRaw).
func downloadDecryptParse(ctx context.Context, container objectstore.Container, name string, bodyKey *atbucrypto.KeyMaterial, preferredIV []byte) (wireformat.Preamble, []byte, string, error) {
	it, err := container.DownloadStream(ctx, name, container.DownloadChunkSize())
	if err != nil {
		return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: opening %q: %w", name, err)
	}
	raw, err := io.ReadAll(objectstore.NewByteChunkReader(ctx, it))
	if err != nil {
		return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: downloading %q: %w", name, err)
	}

	header, n, err := wireformat.ParseHeader(raw)
	if err != nil {
		return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: %q: %w", name, err)
	}
	body := raw[n:]

	var ciphertextHash string
	if header.HasIV() {
		if bodyKey == nil {
			return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: %q is encrypted but no key was supplied", name)
		}
		iv := header.IV
		if len(preferredIV) == atbucrypto.BlockSize {
			iv = preferredIV
		}
		h := sha256.Sum256(body)
		ciphertextHash = hex.EncodeToString(h[:])

		dec, err := atbucrypto.NewDecryptor(bodyKey.Bytes(), iv)
		if err != nil {
			return wireformat.Preamble{}, nil, "", err
		}
		body, err = dec.DecryptFinal(body)
		if err != nil {
			return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: decrypting %q: %w", name, err)
		}
	}

	preamble, n, err := wireformat.Parse(body)
	if err != nil {
		return wireformat.Preamble{}, nil, "", fmt.Errorf("%w: %q: %v", atbu.ErrUnrecoverablePreamble, name, err)
	}
	// Parse stops before the zero padding that aligns the preamble to a
	// multiple of 16 bytes; the file bytes start after it.
	n += (16 - n%16) % 16
	if n > len(body) {
		return wireformat.Preamble{}, nil, "", fmt.Errorf("%w: %q: truncated preamble padding", atbu.ErrUnrecoverablePreamble, name)
	}
	plaintext := body[n:]

	if preamble.Compression == wireformat.CompressionGzip {
		gr, err := gzip.NewReader(bytes.NewReader(plaintext))
		if err != nil {
			return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: opening gzip stream for %q: %w", name, err)
		}
		plaintext, err = io.ReadAll(gr)
		if err != nil {
			return wireformat.Preamble{}, nil, "", fmt.Errorf("retrieval: decompressing %q: %w", name, err)
		}
	}

	return preamble, plaintext, ciphertextHash, nil
}

// deliver hands plaintext to sink, following the Sink contract's
// open-once/write-once/close-once lifecycle.
func deliver(preamble wireformat.Preamble, plaintext []byte, sink Sink) error {
	if err := sink.Open(preamble); err != nil {
		return err
	}
	_, writeErr := sink.Write(plaintext)
	closeErr := sink.Close(writeErr)
	if writeErr != nil {
		return fmt.Errorf("retrieval: writing %q to sink: %w", preamble.Path, writeErr)
	}
	return closeErr
}

// verify enforces spec.md §4.7 step 3's post-download invariants. A digest
// mismatch is noted "(assumed)" when the expected digest was itself
// inherited from an earlier BFI (IsBackingFIDigest) rather than freshly
// computed at backup time, softening the failure the way spec.md §4.7
// describes.
func verify(physical *atbu.BackupFileInformation, preamble wireformat.Preamble, plaintext []byte, ciphertextHash string) error {
	if int64(len(plaintext)) != preamble.Size || int64(len(plaintext)) != physical.SizeInBytes {
		return fmt.Errorf("retrieval: size mismatch for %q: got %d bytes, preamble says %d, bfi says %d",
			preamble.Path, len(plaintext), preamble.Size, physical.SizeInBytes)
	}

	algo := preamble.DigestAlgorithm
	if algo == "" {
		algo = digest.DefaultAlgorithm
	}
	h, err := digest.NewStreaming(algo)
	if err != nil {
		return fmt.Errorf("retrieval: %q: %w", preamble.Path, err)
	}
	h.Update(plaintext)
	got := h.Finalize()
	if want, ok := physical.Digests[algo]; ok && got != want {
		note := ""
		if physical.IsBackingFIDigest {
			note = " (assumed)"
		}
		return fmt.Errorf("retrieval: digest mismatch for %q: got %s, want %s%s", preamble.Path, got, want, note)
	}

	if preamble.Modified != physical.ModifiedTime {
		return fmt.Errorf("retrieval: modified-time mismatch for %q: preamble says %v, bfi says %v",
			preamble.Path, preamble.Modified, physical.ModifiedTime)
	}

	if physical.IsBackupEncrypted && ciphertextHash != physical.CiphertextHashDuringBackup {
		return fmt.Errorf("retrieval: ciphertext digest mismatch for %q", preamble.Path)
	}
	return nil
}
