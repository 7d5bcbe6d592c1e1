package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/bid"
)

func buildDB(t *testing.T) *bid.Database {
	t.Helper()
	db := bid.New("testbackup")

	older := &atbu.SpecificBackupInformation{
		BackupBaseName:     "testbackup",
		SpecificBackupName: "testbackup-20260101-000000",
		BackupStartTimeUTC: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BackupFiles: []*atbu.BackupFileInformation{
			{PathWithoutRoot: "a.txt", IsSuccessful: true},
			{PathWithoutRoot: "b.log", IsSuccessful: true},
		},
	}
	newer := &atbu.SpecificBackupInformation{
		BackupBaseName:     "testbackup",
		SpecificBackupName: "testbackup-20260201-000000",
		BackupStartTimeUTC: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		BackupFiles: []*atbu.BackupFileInformation{
			{PathWithoutRoot: "a.txt", IsSuccessful: true},
			{PathWithoutRoot: "c.txt", IsSuccessful: true},
		},
	}
	require.NoError(t, db.AppendSBI(older))
	require.NoError(t, db.AppendSBI(newer))
	return db
}

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("storage:mydest")
	require.NoError(t, err)
	require.Equal(t, "mydest", tgt.Name)

	tgt, err = ParseTarget("storage-def:mydest")
	require.NoError(t, err)
	require.Equal(t, "mydest", tgt.Name)

	tgt, err = ParseTarget("/mnt/backups")
	require.NoError(t, err)
	require.Equal(t, "/mnt/backups", tgt.Directory)

	_, err = ParseTarget("relative/path")
	require.Error(t, err)
}

func TestResolveBackupLastLatestWins(t *testing.T) {
	db := buildDB(t)

	out, err := Resolve(db, Selectors{Backup: "last"})
	require.NoError(t, err)
	var paths []string
	for _, bfi := range out {
		paths = append(paths, bfi.PathWithoutRoot)
	}
	require.ElementsMatch(t, []string{"a.txt", "c.txt"}, paths)
}

func TestResolveBackupGlobAcrossSBIsFoldsLatestWins(t *testing.T) {
	db := buildDB(t)

	// Both SBIs' SpecificBackupName match; a.txt appears in both, so the
	// latest-wins fold must emit it exactly once (from the newer SBI),
	// while b.log (older-only) and c.txt (newer-only) both survive.
	out, err := Resolve(db, Selectors{Backup: "testbackup-2026*"})
	require.NoError(t, err)
	var paths []string
	for _, bfi := range out {
		paths = append(paths, bfi.PathWithoutRoot)
	}
	require.ElementsMatch(t, []string{"a.txt", "c.txt", "b.log"}, paths)
}

func TestResolveFilesGlobFilters(t *testing.T) {
	db := buildDB(t)

	out, err := Resolve(db, Selectors{Backup: "last", Files: []string{"*.txt"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, bfi := range out {
		require.True(t, bfi.PathWithoutRoot == "a.txt" || bfi.PathWithoutRoot == "c.txt")
	}
}

func TestResolveEmptyDatabase(t *testing.T) {
	db := bid.New("empty")
	out, err := Resolve(db, Selectors{Backup: "last"})
	require.NoError(t, err)
	require.Empty(t, out)
}
