package action

import (
	"context"
	"time"

	"github.com/GSI-HPC/fsqd/internal/fsqerr"
	"github.com/GSI-HPC/fsqd/internal/fsqlog"
)

// ArchiveBackend is the HSM/archival capability point. PollState is
// optional: implementations that don't support polling can
// leave it unimplemented by not satisfying the Poller interface below.
type ArchiveBackend interface {
	RequestArchive(ctx context.Context, parallelFSPath string, archiveID uint16) error
}

// Poller is implemented by archive backends that support asking whether an
// archive request has completed, rather than assuming success immediately.
type Poller interface {
	PollState(ctx context.Context, parallelFSPath string) (archived bool, err error)
}

// Environment supplies everything Advance needs beyond the Item itself, so
// the state machine stays a pure, unit-testable function instead of reaching
// for package-level globals.
type Environment interface {
	// Tolerance is the configured per-item error_count ceiling.
	Tolerance() uint32

	// Archive is the configured ArchiveBackend.
	Archive() ArchiveBackend

	// PersistState atomically writes the `state` xattr on the landing file
	// backing it. Called before every in-memory state change.
	PersistState(it *Item, s State) error

	// CopyToParallelFS performs the full local->parallel-FS copy, including
	// the fstat size check.
	CopyToParallelFS(ctx context.Context, it *Item) error

	// UnlinkParallelFS removes the parallel-FS copy (used when
	// StorageDest == TSM).
	UnlinkParallelFS(it *Item) error

	// UnlinkLanding removes the landing-store copy (used whenever
	// StorageDest != LOCAL).
	UnlinkLanding(it *Item) error
}

// Outcome reports what Advance did, for logging and for the worker to decide
// whether to re-enqueue the item.
type Outcome struct {
	// Requeue is true if the item should go back on the work queue for
	// another Advance call.
	Requeue bool
	// Done is true once the item reached a terminal state (FileKeep or
	// FileOmitted) and has been fully finalized; the worker drops it.
	Done bool
	// Err, if non-nil, is the error that caused a transition to an *_ERROR
	// state or to FileOmitted; nil on a clean transition.
	Err error
}

// persist writes the new state via env, xattr first, and only updates
// it.State on success. On xattr write failure the in-memory state is left
// unchanged and error_count is bumped, and persist reports the failure to
// the caller.
func persist(env Environment, it *Item, s State) error {
	if err := env.PersistState(it, s); err != nil {
		it.ErrorCount++
		return err
	}
	it.State = s
	return nil
}

// finalize runs once the configured storage destination has been reached:
// it persists FILE_KEEP, cleans up copies per StorageDest, and reports the
// item as Done.
func finalize(ctx context.Context, it *Item, env Environment) Outcome {
	if err := persist(env, it, FileKeep); err != nil {
		return Outcome{Requeue: true, Err: err}
	}
	fsqlog.Messagef("landed %s/%s -> %s", it.FileInfo.FilesystemName, it.FileInfo.RelativePath, it.FileInfo.StorageDest)

	if it.FileInfo.StorageDest == StorageTSM {
		if err := env.UnlinkParallelFS(it); err != nil {
			fsqlog.Warnf("finalize: unlink parallel-FS copy for %s: %v", it.LandingPath, err)
		}
	}
	if it.FileInfo.StorageDest != StorageLocal {
		if err := env.UnlinkLanding(it); err != nil {
			fsqlog.Warnf("finalize: unlink landing copy for %s: %v", it.LandingPath, err)
		}
	}
	return Outcome{Done: true}
}

// poison persists FILE_OMITTED and reports the item as Done (dropped) once
// the per-item error tolerance has been exceeded.
func poison(it *Item, env Environment, cause error) Outcome {
	// Best-effort: even if this persist also fails, the item is still
	// dropped from memory — a subsequent recovery scan is the backstop.
	_ = env.PersistState(it, FileOmitted)
	it.State = FileOmitted
	fsqlog.Warnf("poisoning %s after %d errors: %v", it.LandingPath, it.ErrorCount, cause)
	return Outcome{Done: true, Err: fsqerr.ErrPoisoned}
}

// Advance performs exactly one state-machine step for it and reports what
// the worker should do next.
func Advance(ctx context.Context, it *Item, env Environment) Outcome {
	if it.ErrorCount > env.Tolerance() {
		return poison(it, env, fsqerr.New(fsqerr.CodePoisoned, "error_count %d exceeds tolerance %d", it.ErrorCount, env.Tolerance()))
	}

	switch it.State {
	case LocalCopyDone:
		if it.StorageDestinationReached() {
			return finalize(ctx, it, env)
		}
		if err := persist(env, it, LustreCopyRun); err != nil {
			return Outcome{Requeue: true, Err: err}
		}
		if err := env.CopyToParallelFS(ctx, it); err != nil {
			it.ErrorCount++
			_ = persist(env, it, LustreCopyError)
			return Outcome{Requeue: true, Err: err}
		}
		if err := persist(env, it, LustreCopyDone); err != nil {
			return Outcome{Requeue: true, Err: err}
		}
		it.Timestamps.Copied = time.Now()
		return Outcome{Requeue: true}

	case LustreCopyError:
		if err := persist(env, it, LocalCopyDone); err != nil {
			return Outcome{Requeue: true, Err: err}
		}
		return Outcome{Requeue: true}

	case LustreCopyDone:
		if it.StorageDestinationReached() {
			return finalize(ctx, it, env)
		}
		if err := persist(env, it, TSMArchiveRun); err != nil {
			return Outcome{Requeue: true, Err: err}
		}
		if err := env.Archive().RequestArchive(ctx, it.FileInfo.RelativePath, it.ArchiveID); err != nil {
			it.ErrorCount++
			_ = persist(env, it, TSMArchiveError)
			return Outcome{Requeue: true, Err: err}
		}
		return Outcome{Requeue: true}

	case TSMArchiveRun:
		poller, ok := env.Archive().(Poller)
		if !ok {
			// Fire-and-forget: the request already succeeded, so the
			// archive is considered complete immediately.
			if err := persist(env, it, TSMArchiveDone); err != nil {
				return Outcome{Requeue: true, Err: err}
			}
			it.Timestamps.Archived = time.Now()
			return Outcome{Requeue: true}
		}
		archived, err := poller.PollState(ctx, it.FileInfo.RelativePath)
		if err != nil {
			it.ErrorCount++
			_ = persist(env, it, TSMArchiveError)
			return Outcome{Requeue: true, Err: err}
		}
		if !archived {
			return Outcome{Requeue: true}
		}
		if err := persist(env, it, TSMArchiveDone); err != nil {
			return Outcome{Requeue: true, Err: err}
		}
		it.Timestamps.Archived = time.Now()
		return Outcome{Requeue: true}

	case TSMArchiveError:
		if err := persist(env, it, LustreCopyDone); err != nil {
			return Outcome{Requeue: true, Err: err}
		}
		return Outcome{Requeue: true}

	case TSMArchiveDone:
		if it.StorageDestinationReached() {
			return finalize(ctx, it, env)
		}
		return Outcome{Requeue: true}

	case FileOmitted:
		return Outcome{Done: true}

	case FileKeep:
		return Outcome{Done: true}

	default:
		return poison(it, env, fsqerr.New(fsqerr.CodeIOError, "unknown state %v", it.State))
	}
}
