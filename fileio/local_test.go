package fileio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_WriteReadExists(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fio := NewLocal(root)

	require.NoError(t, fio.Write(ctx, "manifest/manifest-a-0", []byte("hello"), false))
	data, err := fio.Read(ctx, "manifest/manifest-a-0")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ok, err := fio.Exists(ctx, "manifest/manifest-a-0")
	require.NoError(t, err)
	assert.True(t, ok)

	err = fio.Write(ctx, "manifest/manifest-a-0", []byte("again"), false)
	require.Error(t, err)
	assert.True(t, IsExist(err))

	require.NoError(t, fio.Write(ctx, "manifest/manifest-a-0", []byte("again"), true))
	data, err = fio.Read(ctx, "manifest/manifest-a-0")
	require.NoError(t, err)
	assert.Equal(t, "again", string(data))

	_, err = fio.Read(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))

	entries, err := os.ReadDir(filepath.Join(root, "manifest"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocal_Delete(t *testing.T) {
	ctx := context.Background()
	fio := NewLocal(t.TempDir())
	require.NoError(t, fio.Write(ctx, "dt=1/bucket-0/data-1", []byte("x"), false))

	deleted, err := fio.Delete(ctx, "absent", false)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = fio.Delete(ctx, "dt=1/bucket-0", false)
	require.NoError(t, err)
	assert.False(t, deleted, "non-empty directory must not be deleted")

	deleted, err = fio.Delete(ctx, "dt=1/bucket-0/data-1", false)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = fio.Delete(ctx, "dt=1/bucket-0", false)
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, fio.Write(ctx, "dt=2/bucket-0/data-2", []byte("x"), false))
	deleted, err = fio.Delete(ctx, "dt=2", true)
	require.NoError(t, err)
	assert.True(t, deleted)
	ok, err := fio.Exists(ctx, "dt=2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_ListAndMkdirs(t *testing.T) {
	ctx := context.Background()
	fio := NewLocal(t.TempDir())
	require.NoError(t, fio.Mkdirs(ctx, "snapshot"))
	require.NoError(t, fio.Write(ctx, "snapshot/snapshot-2", []byte("b"), false))
	require.NoError(t, fio.Write(ctx, "snapshot/snapshot-1", []byte("a"), false))
	require.NoError(t, fio.Mkdirs(ctx, "snapshot/nested"))

	list, err := fio.List(ctx, "snapshot")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "snapshot/nested", list[0].Path)
	assert.True(t, list[0].IsDir)
	assert.Equal(t, "snapshot/snapshot-1", list[1].Path)
	assert.Equal(t, int64(1), list[1].Size)

	missing, err := fio.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLocal_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fio := NewLocal(t.TempDir())
	require.ErrorIs(t, fio.Write(ctx, "a", nil, false), context.Canceled)
	_, err := fio.Read(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
}
