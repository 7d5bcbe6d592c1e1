package filesystem

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/objectstore"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	c, err := store.CreateContainer(ctx, "dest")
	require.NoError(t, err)

	data := make([]byte, 3*64*1024+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	it := objectstore.NewSliceChunkIterator(data, 64*1024)
	require.NoError(t, c.UploadStream(ctx, "obj1.atbak", it, "/src/file"))

	obj, err := c.GetObject(ctx, "obj1.atbak")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), obj.Info().Size)

	dit, err := c.DownloadStream(ctx, "obj1.atbak", 4096)
	require.NoError(t, err)
	var got []byte
	for {
		chunk, err := dit.Next(ctx)
		got = append(got, chunk...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, data, got)
}

func TestGetObjectMissing(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	c, err := store.CreateContainer(ctx, "dest")
	require.NoError(t, err)

	_, err = c.GetObject(ctx, "nope")
	require.True(t, errors.Is(err, atbu.ErrObjectDoesNotExist))
}

func TestCreateContainerConflict(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.CreateContainer(ctx, "dest")
	require.NoError(t, err)
	_, err = store.CreateContainer(ctx, "dest")
	require.True(t, errors.Is(err, objectstore.ErrContainerExists))
}

func TestDeleteObjectMissingIsNotError(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	c, err := store.CreateContainer(ctx, "dest")
	require.NoError(t, err)
	require.NoError(t, c.DeleteObject(ctx, "nope"))
}

func TestListObjectsPrefix(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	c, err := store.CreateContainer(ctx, "dest")
	require.NoError(t, err)

	for _, name := range []string{"zz-backup-info-a.atbuinf", "zz-backup-info-b.atbuinf", "file1.atbak"} {
		it := objectstore.NewSliceChunkIterator([]byte("x"), 16)
		require.NoError(t, c.UploadStream(ctx, name, it, ""))
	}

	objs, err := c.ListObjects(ctx, "zz-backup-info-")
	require.NoError(t, err)
	require.Len(t, objs, 2)
}
