package retrieval

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
	"github.com/AshleyT3/atbu-go/orchestrator"
	"github.com/AshleyT3/atbu-go/wireformat"
)

// runBackup backs up one file under a fresh source root and returns the
// resulting database, container, and the BFI for that file, so retrieval
// tests exercise the engine against real upload output rather than
// hand-built fixtures.
func runBackup(t *testing.T, content string, encrypted bool) (*bid.Database, objectstore.Container, *atbu.BackupFileInformation, *atbucrypto.KeyMaterial) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.txt"), []byte(content), 0o644))

	storeDir := t.TempDir()
	store, err := filesystem.New(storeDir)
	require.NoError(t, err)
	container, err := store.CreateContainer(context.Background(), "dest")
	require.NoError(t, err)

	opts := orchestrator.Options{
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
	}
	var bodyKey *atbucrypto.KeyMaterial
	if encrypted {
		opts.Passphrase = atbucrypto.NewKeyMaterial([]byte("correct horse battery staple"))
		opts.KDFIterations = 1
	}

	sess, err := orchestrator.NewSession(opts)
	require.NoError(t, err)
	defer sess.Close()
	result, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.SBI.BackupFiles, 1)

	if encrypted {
		master, err := atbucrypto.DeriveKey(opts.Passphrase, opts.KDFSalt, opts.KDFIterations)
		require.NoError(t, err)
		bodyKey, err = atbucrypto.DeriveSubkey(master, "object-body", atbucrypto.KeyLen)
		master.Close()
		require.NoError(t, err)
	}

	return opts.DB, container, result.SBI.BackupFiles[0], bodyKey
}

type recordingSink struct {
	opened  wireformat.Preamble
	written []byte
	closed  error
}

func (s *recordingSink) Open(p wireformat.Preamble) error {
	s.opened = p
	return nil
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.written = append(s.written, p...)
	return len(p), nil
}

func (s *recordingSink) Close(cause error) error {
	s.closed = cause
	return nil
}

func TestRetrieveUnencryptedRoundTrip(t *testing.T) {
	db, container, bfi, _ := runBackup(t, "hello, retrieval engine", false)

	sink := &recordingSink{}
	err := Retrieve(context.Background(), db, bfi, Options{
		Container:   container,
		RetryPolicy: objectstore.NewRetryPolicy(nil),
	}, sink)
	require.NoError(t, err)
	require.Equal(t, "hello, retrieval engine", string(sink.written))
	require.NoError(t, sink.closed)
	require.Equal(t, bfi.PathWithoutRoot, sink.opened.Path)
	require.Equal(t, "doc.txt", filepath.Base(sink.opened.Path))
}

func TestRetrieveEncryptedRoundTrip(t *testing.T) {
	db, container, bfi, bodyKey := runBackup(t, "a secret worth keeping", true)
	defer bodyKey.Close()

	sink := &recordingSink{}
	err := Retrieve(context.Background(), db, bfi, Options{
		Container:   container,
		RetryPolicy: objectstore.NewRetryPolicy(nil),
		BodyKey:     bodyKey,
	}, sink)
	require.NoError(t, err)
	require.Equal(t, "a secret worth keeping", string(sink.written))
}

func TestRetrieveEncryptedWithoutKeyFails(t *testing.T) {
	db, container, bfi, bodyKey := runBackup(t, "a secret worth keeping", true)
	defer bodyKey.Close()

	sink := &recordingSink{}
	err := Retrieve(context.Background(), db, bfi, Options{
		Container:   container,
		RetryPolicy: objectstore.NewRetryPolicy(nil),
	}, sink)
	require.Error(t, err)
}

func TestRetrieveToFileSink(t *testing.T) {
	db, container, bfi, _ := runBackup(t, "written straight to disk", false)

	restoreRoot := t.TempDir()
	sink := &FileSink{Root: restoreRoot, MapPath: AutoMapper(CommonDiscoveryPrefix([]*atbu.BackupFileInformation{bfi}))}
	err := Retrieve(context.Background(), db, bfi, Options{
		Container:   container,
		RetryPolicy: objectstore.NewRetryPolicy(nil),
	}, sink)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(restoreRoot, "doc.txt"))
	require.NoError(t, err)
	require.Equal(t, "written straight to disk", string(got))
}
