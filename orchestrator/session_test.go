package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/bid"
	"github.com/AshleyT3/atbu-go/lock"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/objectstore/filesystem"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestOptions(t *testing.T, root string) (Options, objectstore.Container) {
	t.Helper()
	storeDir := t.TempDir()
	store, err := filesystem.New(storeDir)
	require.NoError(t, err)
	container, err := store.CreateContainer(context.Background(), "dest")
	require.NoError(t, err)

	return Options{
		SourceRoots:                []string{root},
		BackupBaseName:             "testbackup",
		BackupType:                 atbu.BackupFull,
		Container:                  container,
		RetryPolicy:                objectstore.NewRetryPolicy(store),
		MaxSimultaneousFileBackups: 2,
		Workers:                    2,
		DB:                         bid.New("testbackup"),
		PrimaryBIDPath:             filepath.Join(t.TempDir(), "primary.atbuinf"),
		Reservations:               lock.NewReservations(),
	}, container
}

func TestSessionFullBackupUploadsEveryFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world, a bit longer so compression has something to chew on")

	opts, container := newTestOptions(t, root)
	sess, err := NewSession(opts)
	require.NoError(t, err)
	defer sess.Close()

	result, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Stats.TotalFiles)
	require.Equal(t, 2, result.Stats.SuccessfulBackups)
	require.Equal(t, 0, result.Stats.Errors)
	require.Equal(t, 0, result.Anomalies.Len())

	for _, bfi := range result.SBI.BackupFiles {
		require.True(t, bfi.IsSuccessful)
		require.NotEmpty(t, bfi.StorageObjectName)
		obj, err := container.GetObject(context.Background(), bfi.StorageObjectName)
		require.NoError(t, err)
		require.Greater(t, obj.Info().Size, int64(0))
	}

	require.FileExists(t, opts.PrimaryBIDPath)
}

func TestSessionIncrementalSkipsUnchangedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")

	opts, _ := newTestOptions(t, root)
	opts.BackupType = atbu.BackupFull
	sess, err := NewSession(opts)
	require.NoError(t, err)
	first, err := sess.Run(context.Background())
	require.NoError(t, err)
	sess.Close()
	require.Equal(t, 1, first.Stats.SuccessfulBackups)

	opts.BackupType = atbu.BackupIncremental
	sess2, err := NewSession(opts)
	require.NoError(t, err)
	defer sess2.Close()
	second, err := sess2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, second.Stats.UnchangedSkipped)
	require.Equal(t, 0, second.Stats.BackupOperations)
}

func TestSessionEncryptedBackupMarksObjectsEncrypted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "secret.txt"), "do not leak this")

	opts, _ := newTestOptions(t, root)
	opts.Passphrase = atbucrypto.NewKeyMaterial([]byte("correct horse battery staple"))
	opts.KDFIterations = 1 // keep the test fast; production uses DefaultKDFIterations
	sess, err := NewSession(opts)
	require.NoError(t, err)
	defer sess.Close()

	result, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.SBI.BackupFiles, 1)
	bfi := result.SBI.BackupFiles[0]
	require.True(t, bfi.IsBackupEncrypted)
	require.Len(t, bfi.EncryptionIV, 16)
	require.True(t, len(bfi.StorageObjectName) > 0 && bfi.StorageObjectName[len(bfi.StorageObjectName)-7:] == ".atbake")
}
