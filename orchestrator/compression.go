package orchestrator

import (
	"bytes"
	"context"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/AshleyT3/atbu-go/wireformat"
)

// extStats tracks gzip's running compression-ratio performance per file
// extension, shared across every work item a compression stage handles
// concurrently (spec.md §4.5 step 7's "per-extension running average").
type extStats struct {
	mu      sync.Mutex
	samples map[string]*extSample
}

type extSample struct {
	count       int
	poorStreak  int
	ratioSum    float64
}

func newExtStats() *extStats {
	return &extStats{samples: map[string]*extSample{}}
}

// shouldSkip reports whether ext's running statistics already justify
// skipping compression outright (spec.md: threshold 0.9 after >= 3 poor
// outcomes).
func (s *extStats) shouldSkip(ext string, opts CompressionOptions) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := s.samples[ext]
	if sample == nil || sample.count == 0 {
		return false
	}
	avg := sample.ratioSum / float64(sample.count)
	return sample.poorStreak >= opts.MinSamplesBeforeSkip && avg > opts.PoorRatioThreshold
}

// record updates ext's running stats with one observed compressed/original
// ratio.
func (s *extStats) record(ext string, ratio float64, opts CompressionOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := s.samples[ext]
	if sample == nil {
		sample = &extSample{}
		s.samples[ext] = sample
	}
	sample.count++
	sample.ratioSum += ratio
	if ratio > opts.PoorRatioThreshold {
		sample.poorStreak++
	}
}

// CompressionStage returns the compression stage (spec.md §4.5 step 7):
// skip for no-compress extensions, files below the minimum size, or
// extensions whose running ratio already justifies skipping; otherwise
// gzip into UploadData and update the running statistics. The decision and
// outcome also drive the preamble's `z` field the upload stage writes.
func CompressionStage(opts CompressionOptions, stats *extStats) func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
	opts = opts.withDefaults()
	if stats == nil {
		stats = newExtStats()
	}
	return func(ctx context.Context, wi *WorkItem) (*WorkItem, error) {
		if wi.Skip || wi.Failed() {
			return wi, nil
		}
		ext := wi.BFI.Extension()
		if opts.NoCompressPattern.MatchString(wi.BFI.PathWithoutRoot) ||
			wi.BFI.SizeInBytes <= opts.MinSizeBytes ||
			stats.shouldSkip(ext, opts) {
			wi.UploadData = wi.PlainData
			wi.Compressed = false
			return wi, nil
		}

		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(wi.PlainData); err != nil {
			wi.Err = err
			return wi, err
		}
		if err := gw.Close(); err != nil {
			wi.Err = err
			return wi, err
		}

		ratio := 1.0
		if len(wi.PlainData) > 0 {
			ratio = float64(buf.Len()) / float64(len(wi.PlainData))
		}
		stats.record(ext, ratio, opts)

		if buf.Len() >= len(wi.PlainData) {
			// Compression didn't help this file even though the
			// extension's running average still looks acceptable;
			// ship it uncompressed rather than pay for a bigger
			// upload.
			wi.UploadData = wi.PlainData
			wi.Compressed = false
			return wi, nil
		}
		wi.UploadData = buf.Bytes()
		wi.Compressed = true
		return wi, nil
	}
}

// compressionFlag returns the wireformat preamble's `z` value for wi.
func compressionFlag(wi *WorkItem) string {
	if wi.Compressed {
		return wireformat.CompressionGzip
	}
	return wireformat.CompressionNone
}
