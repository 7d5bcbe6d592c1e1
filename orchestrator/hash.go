package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/AshleyT3/atbu-go/digest"
)

// HashStage returns a pipeline.Stage-compatible WorkFunc computing the
// primary digest for wi.BFI (spec.md §4.5 step 5), using the restartable
// FileHasher (spec.md §4.1). Items already marked Skip (prefiltered out by
// an incremental match) pass through untouched — the hasher never runs on
// them.
func HashStage(hasher *digest.FileHasher) func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
	if hasher == nil {
		hasher = digest.NewFileHasher(digest.DefaultAlgorithm)
	}
	return func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
		if wi.Skip || wi.Failed() {
			return wi, nil
		}
		res, err := hasher.Hash(ctx, wi.BFI.Path)
		if err != nil {
			wi.Err = err
			wi.BFI.IsSuccessful = false
			wi.BFI.Exception = err.Error()
			return wi, err
		}
		if wi.BFI.Digests == nil {
			wi.BFI.Digests = map[string]string{}
		}
		wi.BFI.Digests[hasher.Algorithm] = res.Digest
		wi.BFI.SizeInBytes = res.SizeInBytes
		wi.BFI.ModifiedTime = res.ModifiedTime
		wi.BFI.AccessedTime = res.AccessedTime
		return wi, nil
	}
}

// ReadPlainData loads the whole file into wi.PlainData for the compression
// stage to consume. Large-file true streaming (chunked read feeding the
// compressor incrementally) is left to the pipe-connected Subprocess path
// a production deployment would add (spec.md §4.4's PipeConnected stages);
// this in-process path covers the common Thread-stage case.
func ReadPlainData(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
	if wi.Skip || wi.Failed() {
		return wi, nil
	}
	data, err := os.ReadFile(wi.BFI.Path)
	if err != nil {
		wi.Err = fmt.Errorf("orchestrator: reading %q: %w", wi.BFI.Path, err)
		wi.BFI.IsSuccessful = false
		wi.BFI.Exception = wi.Err.Error()
		return wi, wi.Err
	}
	wi.PlainData = data
	return wi, nil
}
