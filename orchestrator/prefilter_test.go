package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
)

func TestPrefilterFullAlwaysEnters(t *testing.T) {
	bfi := &atbu.BackupFileInformation{PathWithoutRoot: "a/b.txt"}
	require.True(t, Prefilter(bfi, &fakeLookup{}, atbu.BackupFull))
}

func TestPrefilterIncrementalPlusAlwaysEnters(t *testing.T) {
	bfi := &atbu.BackupFileInformation{PathWithoutRoot: "a/b.txt"}
	require.True(t, Prefilter(bfi, &fakeLookup{}, atbu.BackupIncrementalPlus))
}

func TestPrefilterIncrementalSkipsUnchanged(t *testing.T) {
	prior := &atbu.BackupFileInformation{
		PathWithoutRoot: "a/b.txt",
		Digests:         map[string]string{"sha256": "deadbeef"},
	}
	bfi := &atbu.BackupFileInformation{PathWithoutRoot: "a/b.txt", SizeInBytes: 10, ModifiedTime: 100}
	lookup := &fakeLookup{
		dateSizeChanged: func(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return false, prior
		},
	}

	require.False(t, Prefilter(bfi, lookup, atbu.BackupIncremental))
	require.True(t, bfi.IsUnchangedSinceLast)
	require.True(t, bfi.IsBackingFIDigest)
	require.True(t, bfi.IsSuccessful)
	require.Equal(t, "deadbeef", bfi.Digests["sha256"])
}

func TestPrefilterIncrementalEntersOnChange(t *testing.T) {
	bfi := &atbu.BackupFileInformation{PathWithoutRoot: "a/b.txt"}
	lookup := &fakeLookup{
		dateSizeChanged: func(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
			return true, &atbu.BackupFileInformation{PathWithoutRoot: "a/b.txt"}
		},
	}
	require.True(t, Prefilter(bfi, lookup, atbu.BackupIncremental))
}

func TestPrefilterIncrementalEntersWhenNoPrior(t *testing.T) {
	bfi := &atbu.BackupFileInformation{PathWithoutRoot: "new/file.txt"}
	require.True(t, Prefilter(bfi, &fakeLookup{}, atbu.BackupIncremental))
}
