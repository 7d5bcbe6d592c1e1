package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/digest"
)

func TestDecisionStageNewFileBacksUp(t *testing.T) {
	db := &fakeLookup{}
	stage := DecisionStage(db, Options{})
	wi := &WorkItem{BFI: &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.False(t, out.Skip)
}

func TestDecisionStageDigestUnchangedSkips(t *testing.T) {
	prior := &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}
	db := &fakeLookup{
		digestChanged: func(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return false, prior
		},
		dateSizeChanged: func(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return false, prior
		},
	}
	stage := DecisionStage(db, Options{})
	wi := &WorkItem{BFI: &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.True(t, out.Skip)
	require.True(t, out.BFI.IsUnchangedSinceLast)
	require.Nil(t, out.Anomaly)
}

func TestDecisionStageDigestMatchMetadataDiffersFlagsAnomaly(t *testing.T) {
	prior := &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}
	db := &fakeLookup{
		digestChanged: func(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return false, prior
		},
		dateSizeChanged: func(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return true, prior
		},
	}
	stage := DecisionStage(db, Options{})
	wi := &WorkItem{BFI: &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.False(t, out.Skip)
	require.NotNil(t, out.Anomaly)
	require.Equal(t, "digest-match-metadata-differs", out.Anomaly.Kind)
}

func TestDecisionStageDigestDedupMatchRecordsBackingFI(t *testing.T) {
	dupKey := atbu.BackingFIKey{SBIIndex: 0, BFIIndex: 3}
	dup := &atbu.BackupFileInformation{PathWithoutRoot: "elsewhere/copy.txt"}
	db := &fakeLookup{
		duplicate: func(mode atbu.DeduplicationOption, algo string, fi *atbu.BackupFileInformation) *atbu.BackupFileInformation {
			return dup
		},
		keyOf: func(fi *atbu.BackupFileInformation) (atbu.BackingFIKey, bool) {
			if fi == dup {
				return dupKey, true
			}
			return atbu.BackingFIKey{}, false
		},
	}
	stage := DecisionStage(db, Options{DedupMode: atbu.DedupDigest})
	wi := &WorkItem{BFI: &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.True(t, out.Skip)
	require.True(t, out.BFI.IsUnchangedSinceLast)
	require.NotNil(t, out.BFI.BackingFI)
	require.Equal(t, dupKey, *out.BFI.BackingFI)
}

func TestDecisionStageSneakyCorruptionFlagged(t *testing.T) {
	prior := &atbu.BackupFileInformation{PathWithoutRoot: "a.txt"}
	db := &fakeLookup{
		sneakyCorruption: func(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return true, prior
		},
	}
	stage := DecisionStage(db, Options{SneakyCorruptionDetection: true})
	wi := &WorkItem{BFI: &atbu.BackupFileInformation{
		PathWithoutRoot: "a.txt",
		Digests:         map[string]string{digest.DefaultAlgorithm: "abc"},
	}}

	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.NotNil(t, out.Anomaly)
	require.Equal(t, "sneaky-corruption", out.Anomaly.Kind)
}

func TestDecisionStageSkipsFailedOrSkippedItems(t *testing.T) {
	stage := DecisionStage(&fakeLookup{}, Options{})
	wi := &WorkItem{BFI: &atbu.BackupFileInformation{}, Skip: true}
	out, err := stage(context.Background(), wi)
	require.NoError(t, err)
	require.Same(t, wi, out)
}
