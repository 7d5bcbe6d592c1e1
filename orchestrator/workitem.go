package orchestrator

import (
	"github.com/AshleyT3/atbu-go"
)

// WorkItem carries one discovered file through every pipeline stage.
// Stages mutate BFI in place and set Err/Anomaly on failure; the pipeline
// stops a failed item at the stage that failed, and the orchestrator
// records it as an anomaly rather than aborting the session (spec.md §4.4
// "cooperative cancellation").
type WorkItem struct {
	BFI *atbu.BackupFileInformation

	// Skip is set by the prefilter/decision stages when this file needs
	// no further processing (unchanged incremental file, deduped
	// content) — later stages pass it through untouched.
	Skip bool

	// PlainData holds the file's bytes once the read stage (after the
	// decision stage) has loaded them; the compression stage consumes it and the upload stage writes
	// whatever the compression stage leaves in UploadData.
	PlainData  []byte
	UploadData []byte
	Compressed bool

	// Anomaly is set (non-fatal) when this item had a problem worth
	// reporting at session end but that didn't stop the session.
	Anomaly *atbu.Anomaly
	// Err aborts further stage processing of this item; it does not
	// affect other items in flight (spec.md §4.4).
	Err error
}

// Failed reports whether this item hit a terminal error and is excluded
// from upload; its BFI is still recorded in the sealed SBI.
func (wi *WorkItem) Failed() bool { return wi.Err != nil }
