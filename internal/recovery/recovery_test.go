package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/landing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireXattrSupport(t *testing.T, store *landing.Store, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0660); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := store.WriteTags(path, landing.Tags{State: action.FileOmitted}); err != nil {
		t.Skipf("xattrs not supported on this filesystem: %v", err)
	}
}

func TestScanReenqueuesOnlyOmittedFiles(t *testing.T) {
	root := t.TempDir()
	store := landing.New(root)

	omittedPath := filepath.Join(root, "omitted.bin")
	requireXattrSupport(t, store, omittedPath)
	require.NoError(t, store.WriteTags(omittedPath, landing.Tags{
		State: action.FileOmitted, FS: "/lustre", FPath: "/lustre/omitted.bin",
		Desc: "d", StorageDest: action.StorageLustre, ArchiveID: 3,
	}))

	stuckPath := filepath.Join(root, "stuck.bin")
	require.NoError(t, os.WriteFile(stuckPath, []byte("yy"), 0660))
	require.NoError(t, store.WriteTags(stuckPath, landing.Tags{
		State: action.LustreCopyRun, FS: "/lustre", FPath: "/lustre/stuck.bin",
		Desc: "d", StorageDest: action.StorageLustre,
	}))

	foreignPath := filepath.Join(root, "foreign.bin")
	require.NoError(t, os.WriteFile(foreignPath, []byte("z"), 0660))

	items, err := Scan(store, root)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, action.LocalCopyDone, items[0].State, "the in-memory item starts at LOCAL_COPY_DONE")
	assert.Equal(t, "/lustre/omitted.bin", items[0].FileInfo.RelativePath)

	got, err := store.ReadTags(omittedPath)
	require.NoError(t, err)
	assert.Equal(t, action.FileOmitted, got.State, "the on-disk xattr is left alone; only Advance's persist step updates it")
}

func TestScanIsIdempotent(t *testing.T) {
	root := t.TempDir()
	store := landing.New(root)
	path := filepath.Join(root, "omitted.bin")
	requireXattrSupport(t, store, path)
	require.NoError(t, store.WriteTags(path, landing.Tags{State: action.FileOmitted, FS: "/lustre", FPath: "/lustre/omitted.bin"}))

	first, err := Scan(store, root)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := Scan(store, root)
	require.NoError(t, err)
	require.Len(t, second, 1, "a second scan with no intervening connections re-derives the same item")
	assert.Equal(t, first[0].FileInfo.RelativePath, second[0].FileInfo.RelativePath)
	assert.Equal(t, first[0].State, second[0].State)
}
