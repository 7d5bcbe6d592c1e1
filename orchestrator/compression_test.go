package orchestrator

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
)

func compressibleData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = 'a'
	}
	return data
}

func TestCompressionStageCompressesCompressibleData(t *testing.T) {
	stage := CompressionStage(CompressionOptions{}, nil)
	data := compressibleData(10_000)
	wi := &WorkItem{
		BFI:       &atbu.BackupFileInformation{PathWithoutRoot: "file.txt", SizeInBytes: int64(len(data))},
		PlainData: data,
	}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.True(t, out.Compressed)
	require.Less(t, len(out.UploadData), len(data))

	gr, err := gzip.NewReader(bytes.NewReader(out.UploadData))
	require.NoError(t, err)
	roundTripped, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, data, roundTripped)
}

func TestCompressionStageSkipsNoCompressExtension(t *testing.T) {
	stage := CompressionStage(CompressionOptions{}, nil)
	data := compressibleData(10_000)
	wi := &WorkItem{
		BFI:       &atbu.BackupFileInformation{PathWithoutRoot: "photo.jpg", SizeInBytes: int64(len(data))},
		PlainData: data,
	}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.False(t, out.Compressed)
	require.Equal(t, data, out.UploadData)
}

func TestCompressionStageSkipsSmallFiles(t *testing.T) {
	stage := CompressionStage(CompressionOptions{}, nil)
	data := []byte("tiny")
	wi := &WorkItem{
		BFI:       &atbu.BackupFileInformation{PathWithoutRoot: "file.txt", SizeInBytes: int64(len(data))},
		PlainData: data,
	}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.False(t, out.Compressed)
}

func TestExtStatsSkipsAfterPoorStreak(t *testing.T) {
	opts := CompressionOptions{}.withDefaults()
	stats := newExtStats()
	for i := 0; i < opts.MinSamplesBeforeSkip; i++ {
		stats.record(".bin", 0.99, opts)
	}
	require.True(t, stats.shouldSkip(".bin", opts))
}

func TestExtStatsNoSkipBelowMinPoorOutcomes(t *testing.T) {
	opts := CompressionOptions{}.withDefaults()
	stats := newExtStats()
	stats.record(".bin", 0.99, opts)
	stats.record(".bin", 0.99, opts)
	stats.record(".bin", 0.1, opts)
	require.False(t, stats.shouldSkip(".bin", opts))
}

func TestCompressionStageSkipsWhenStatsSayPoor(t *testing.T) {
	opts := CompressionOptions{}.withDefaults()
	stats := newExtStats()
	for i := 0; i < opts.MinSamplesBeforeSkip; i++ {
		stats.record(".zzz", 0.99, opts)
	}
	stage := CompressionStage(CompressionOptions{}, stats)
	data := compressibleData(10_000)
	wi := &WorkItem{
		BFI:       &atbu.BackupFileInformation{PathWithoutRoot: "file.zzz", SizeInBytes: int64(len(data))},
		PlainData: data,
	}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.False(t, out.Compressed)
}
