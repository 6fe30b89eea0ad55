package landing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/fsqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHlLlSplitsAtLastSlash(t *testing.T) {
	hl, ll, err := ExtractHlLl("/lustre/a/b/empty.bin", "/lustre")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", hl)
	assert.Equal(t, "/empty.bin", ll)
}

func TestExtractHlLlNoDirectoryComponent(t *testing.T) {
	hl, ll, err := ExtractHlLl("file.bin", "")
	require.NoError(t, err)
	assert.Equal(t, "", hl)
	assert.Equal(t, "file.bin", ll)
}

func TestExtractHlLlRejectsOversizedPath(t *testing.T) {
	huge := make([]byte, pathCeiling+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, _, err := ExtractHlLl(string(huge), "")
	require.Error(t, err)
	coded, ok := fsqerr.As(err)
	require.True(t, ok)
	assert.Equal(t, fsqerr.CodeNameTooLong, coded.Code)
}

func TestCreateAndWriteTagsRoundTrip(t *testing.T) {
	if _, err := os.Stat("/proc/self"); err != nil {
		t.Skip("requires /proc/self")
	}
	root := t.TempDir()
	store := New(root)

	hl, ll, err := ExtractHlLl("/lustre/a/b/c.bin", "/lustre")
	require.NoError(t, err)

	f, path, err := store.Create(action.StorageLocal, hl, ll)
	require.NoError(t, err)
	_, werr := f.Write([]byte("hello"))
	require.NoError(t, werr)
	require.NoError(t, f.Close())
	assert.Equal(t, filepath.Join(root, "a/b/c.bin"), path)

	tags := Tags{
		State:       action.LocalCopyDone,
		ArchiveID:   7,
		FS:          "/lustre",
		FPath:       "/lustre/a/b/c.bin",
		Desc:        "a test file",
		StorageDest: action.StorageLocal,
	}
	if err := store.WriteTags(path, tags); err != nil {
		t.Skipf("xattrs not supported on this filesystem: %v", err)
	}

	got, err := store.ReadTags(path)
	require.NoError(t, err)
	assert.Equal(t, tags, got)
}

func TestCreateRefusesDuplicateLanding(t *testing.T) {
	if _, err := os.Stat("/proc/self"); err != nil {
		t.Skip("requires /proc/self")
	}
	root := t.TempDir()
	store := New(root)

	f1, _, err := store.Create(action.StorageLocal, "", "/dup.bin")
	require.NoError(t, err)
	require.NoError(t, f1.Close())

	_, _, err = store.Create(action.StorageLocal, "", "/dup.bin")
	assert.ErrorIs(t, err, fsqerr.ErrAlreadyExists)
}

func TestCreateNullDestinationOpensNullDevice(t *testing.T) {
	store := New(t.TempDir())
	f, path, err := store.Create(action.StorageNull, "ignored", "ignored")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, NullDevicePath, path)
	_, werr := f.Write([]byte("discarded"))
	assert.NoError(t, werr)
}
