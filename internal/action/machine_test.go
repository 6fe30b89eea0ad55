package action

import (
	"context"
	"errors"
	"testing"

	"github.com/GSI-HPC/fsqd/internal/fsqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv struct {
	tolerance      uint32
	archive        ArchiveBackend
	persistErr     error
	copyErr        error
	unlinkPFSErr   error
	unlinkLandErr  error
	persistedStates []State
	copyCalls      int
	unlinkPFSCalls int
	unlinkLandCalls int
}

func (e *fakeEnv) Tolerance() uint32      { return e.tolerance }
func (e *fakeEnv) Archive() ArchiveBackend { return e.archive }

func (e *fakeEnv) PersistState(it *Item, s State) error {
	if e.persistErr != nil {
		return e.persistErr
	}
	e.persistedStates = append(e.persistedStates, s)
	return nil
}

func (e *fakeEnv) CopyToParallelFS(ctx context.Context, it *Item) error {
	e.copyCalls++
	return e.copyErr
}

func (e *fakeEnv) UnlinkParallelFS(it *Item) error {
	e.unlinkPFSCalls++
	return e.unlinkPFSErr
}

func (e *fakeEnv) UnlinkLanding(it *Item) error {
	e.unlinkLandCalls++
	return e.unlinkLandErr
}

type fakeArchive struct {
	err error
}

func (a *fakeArchive) RequestArchive(ctx context.Context, path string, archiveID uint16) error {
	return a.err
}

func TestAdvanceLocalOnlyReachesKeepDirectly(t *testing.T) {
	env := &fakeEnv{tolerance: 4}
	it := &Item{State: LocalCopyDone, FileInfo: FileInfo{StorageDest: StorageLocal}}

	out := Advance(context.Background(), it, env)
	assert.True(t, out.Done)
	assert.NoError(t, out.Err)
	assert.Equal(t, FileKeep, it.State)
	assert.Equal(t, 0, env.copyCalls)
	assert.Equal(t, 0, env.unlinkLandCalls, "LOCAL dest keeps the landing copy")
}

func TestAdvanceLustreHappyPath(t *testing.T) {
	env := &fakeEnv{tolerance: 4}
	it := &Item{State: LocalCopyDone, FileInfo: FileInfo{StorageDest: StorageLustre}}

	out := Advance(context.Background(), it, env)
	require.False(t, out.Done)
	assert.Equal(t, LustreCopyDone, it.State)
	assert.Equal(t, 1, env.copyCalls)

	out = Advance(context.Background(), it, env)
	assert.True(t, out.Done)
	assert.Equal(t, FileKeep, it.State)
	assert.Equal(t, 1, env.unlinkLandCalls, "non-LOCAL dest unlinks the landing copy")
	assert.Equal(t, 0, env.unlinkPFSCalls, "LUSTRE dest keeps the parallel-FS copy")
}

func TestAdvanceCopyFailureSetsErrorState(t *testing.T) {
	env := &fakeEnv{tolerance: 4, copyErr: errors.New("disk full")}
	it := &Item{State: LocalCopyDone, FileInfo: FileInfo{StorageDest: StorageLustre}}

	out := Advance(context.Background(), it, env)
	assert.True(t, out.Requeue)
	assert.Error(t, out.Err)
	assert.Equal(t, LustreCopyError, it.State)

	out = Advance(context.Background(), it, env)
	assert.Equal(t, LocalCopyDone, it.State, "LUSTRE_COPY_ERROR retries from the top")
}

func TestAdvanceTSMFireAndForget(t *testing.T) {
	env := &fakeEnv{tolerance: 4, archive: &fakeArchive{}}
	it := &Item{State: LustreCopyDone, FileInfo: FileInfo{StorageDest: StorageTSM}}

	out := Advance(context.Background(), it, env)
	require.False(t, out.Done)
	assert.Equal(t, TSMArchiveRun, it.State)

	out = Advance(context.Background(), it, env)
	require.False(t, out.Done)
	assert.Equal(t, TSMArchiveDone, it.State)

	out = Advance(context.Background(), it, env)
	assert.True(t, out.Done)
	assert.Equal(t, FileKeep, it.State)
	assert.Equal(t, 1, env.unlinkPFSCalls, "TSM dest removes the parallel-FS copy")
	assert.Equal(t, 1, env.unlinkLandCalls)
}

func TestAdvancePoisonsAfterToleranceExceeded(t *testing.T) {
	env := &fakeEnv{tolerance: 1}
	it := &Item{State: LocalCopyDone, ErrorCount: 2, FileInfo: FileInfo{StorageDest: StorageLustre}}

	out := Advance(context.Background(), it, env)
	assert.True(t, out.Done)
	assert.ErrorIs(t, out.Err, fsqerr.ErrPoisoned)
	assert.Equal(t, FileOmitted, it.State)
}

func TestAdvanceArchiveRequestFailureRetries(t *testing.T) {
	env := &fakeEnv{tolerance: 4, archive: &fakeArchive{err: errors.New("backend down")}}
	it := &Item{State: LustreCopyDone, FileInfo: FileInfo{StorageDest: StorageLustreTSM}}

	out := Advance(context.Background(), it, env)
	assert.True(t, out.Requeue)
	assert.Error(t, out.Err)
	assert.Equal(t, TSMArchiveError, it.State)

	out = Advance(context.Background(), it, env)
	assert.Equal(t, LustreCopyDone, it.State)
}
