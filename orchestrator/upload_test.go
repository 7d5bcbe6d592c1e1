package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/atbucrypto"
	"github.com/AshleyT3/atbu-go/lock"
	"github.com/AshleyT3/atbu-go/objectstore"
	"github.com/AshleyT3/atbu-go/objectstore/filesystem"
)

func TestCandidateObjectNameDeterministicAndExtensionByEncryption(t *testing.T) {
	var salt [32]byte
	copy(salt[:], "some-session-salt")

	name1 := candidateObjectName(salt, "docs/report.txt", false)
	name2 := candidateObjectName(salt, "docs/report.txt", false)
	require.Equal(t, name1, name2)
	require.True(t, strings.HasSuffix(name1, ".atbak"))

	encName := candidateObjectName(salt, "docs/report.txt", true)
	require.True(t, strings.HasSuffix(encName, ".atbake"))
}

func TestCandidateObjectNameDiffersByPath(t *testing.T) {
	var salt [32]byte
	require.NotEqual(t,
		candidateObjectName(salt, "a.txt", false),
		candidateObjectName(salt, "b.txt", false))
}

func TestReserveObjectNameAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	store, err := filesystem.New(dir)
	require.NoError(t, err)
	container, err := store.CreateContainer(context.Background(), "dest")
	require.NoError(t, err)

	var salt [32]byte
	reservations := lock.NewReservations()

	base := candidateObjectName(salt, "a.txt", false)
	require.NoError(t, container.UploadStream(context.Background(), base, objectstore.NewSliceChunkIterator([]byte("x"), 0), ""))

	name, err := reserveObjectName(context.Background(), container, reservations, salt, "a.txt", false)
	require.NoError(t, err)
	require.NotEqual(t, base, name)
	require.True(t, strings.HasPrefix(name, base+"-"))
}

func TestReserveObjectNameReleaseAllowsReuse(t *testing.T) {
	dir := t.TempDir()
	store, err := filesystem.New(dir)
	require.NoError(t, err)
	container, err := store.CreateContainer(context.Background(), "dest")
	require.NoError(t, err)

	var salt [32]byte
	reservations := lock.NewReservations()

	name, err := reserveObjectName(context.Background(), container, reservations, salt, "a.txt", false)
	require.NoError(t, err)
	reservations.Release(name)

	name2, err := reserveObjectName(context.Background(), container, reservations, salt, "a.txt", false)
	require.NoError(t, err)
	require.Equal(t, name, name2)
}

func TestBuildObjectBodyUnencrypted(t *testing.T) {
	wi := &WorkItem{
		BFI:        &atbu.BackupFileInformation{PathWithoutRoot: "a.txt", Digests: map[string]string{"sha256": "abc"}},
		UploadData: []byte("hello world"),
	}

	body, iv, err := buildObjectBody(wi, nil)
	require.NoError(t, err)
	require.Nil(t, iv)
	require.NotEmpty(t, body)
	require.Empty(t, wi.BFI.CiphertextHashDuringBackup)
}

func TestBuildObjectBodyEncryptedRecordsCiphertextHash(t *testing.T) {
	key := atbucrypto.NewKeyMaterial(make([]byte, atbucrypto.KeyLen))
	defer key.Close()

	wi := &WorkItem{
		BFI:        &atbu.BackupFileInformation{PathWithoutRoot: "a.txt", Digests: map[string]string{"sha256": "abc"}},
		UploadData: []byte("hello world"),
	}

	body, iv, err := buildObjectBody(wi, key)
	require.NoError(t, err)
	require.Len(t, iv, 16)
	require.NotEmpty(t, body)
	require.NotEmpty(t, wi.BFI.CiphertextHashDuringBackup)
}
