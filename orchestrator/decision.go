package orchestrator

import (
	"context"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/digest"
)

// DecisionStage returns the post-hash decision stage (spec.md §4.5 step 6):
// sneaky-corruption detection, dedup consultation, and the final
// skip/backup call for modes that didn't already decide in Prefilter.
func DecisionStage(db bidLookup, opts Options) func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
	algo := digestAlgo(opts)
	return func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
		if wi.Skip || wi.Failed() {
			return wi, nil
		}

		if opts.SneakyCorruptionDetection {
			if suspected, prior := db.SneakyCorruption(algo, wi.BFI); suspected {
				wi.Anomaly = &atbu.Anomaly{
					Path:    wi.BFI.Path,
					Kind:    "sneaky-corruption",
					Message: "digest differs from a prior backup of the same (size, mtime)",
				}
				_ = prior
			}
		}

		if opts.DedupMode == atbu.DedupDigest || opts.DedupMode == atbu.DedupDigestExt {
			if dup := db.Duplicate(opts.DedupMode, algo, wi.BFI); dup != nil {
				// dup may live at a different path than wi.BFI (content
				// dedup, not an incremental same-path match), so the
				// arena's path-keyed newest-to-oldest walk can't be
				// trusted to resolve it later. Record the BackingFI
				// reference directly.
				if key, ok := db.KeyOf(dup); ok {
					wi.BFI.BackingFI = &key
				}
				wi.BFI.IsUnchangedSinceLast = true
				wi.BFI.IsSuccessful = true
				wi.Skip = true
				return wi, nil
			}
		}

		changed, prior := db.DigestChanged(algo, wi.BFI)
		switch {
		case prior == nil || changed:
			// New or content-changed: back it up.
			return wi, nil
		default:
			// Digest unchanged at the same path.
			dateChanged, _ := db.DateSizeChanged(wi.BFI)
			if dateChanged {
				// Digest matched but size/mtime differ: back up, flag
				// for review (spec.md §4.5 step 6(c)).
				wi.Anomaly = &atbu.Anomaly{
					Path:    wi.BFI.Path,
					Kind:    "digest-match-metadata-differs",
					Message: "content digest unchanged but size/mtime differ from the prior backup",
				}
				return wi, nil
			}
			wi.BFI.IsUnchangedSinceLast = true
			wi.BFI.IsSuccessful = true
			wi.Skip = true
			return wi, nil
		}
	}
}

func digestAlgo(opts Options) string {
	return digest.DefaultAlgorithm
}
