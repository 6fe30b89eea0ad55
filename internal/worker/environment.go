package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/fsqerr"
	"github.com/GSI-HPC/fsqd/internal/landing"
	"golang.org/x/sys/unix"
)

// copyBufSize is the fixed buffer size used to stream a landing file's
// bytes to the parallel filesystem (~1MiB).
const copyBufSize = 0xfffff + 1

// Environment implements action.Environment, wiring the state machine to a
// real landing store, an archive backend, and the parallel-FS mount.
type Environment struct {
	Store   *landing.Store
	Backend action.ArchiveBackend
	Tol     uint32
}

var _ action.Environment = (*Environment)(nil)

// Tolerance implements action.Environment.
func (e *Environment) Tolerance() uint32 { return e.Tol }

// Archive implements action.Environment.
func (e *Environment) Archive() action.ArchiveBackend { return e.Backend }

// PersistState implements action.Environment.
func (e *Environment) PersistState(it *action.Item, s action.State) error {
	return e.Store.SetState(it.LandingPath, s)
}

// CopyToParallelFS implements action.Environment: create missing parent
// directories (mode 0755, chown to {uid,gid}), open the destination
// write-only|create|exclusive mode 0640, stream the landing file's bytes
// across in fixed ≥1 MiB chunks, assert the source size matches the
// recorded size, and fchown the destination.
func (e *Environment) CopyToParallelFS(ctx context.Context, it *action.Item) error {
	dest := it.FileInfo.RelativePath
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("worker: mkdir %s: %w", filepath.Dir(dest), err)
	}
	if err := unix.Chown(filepath.Dir(dest), int(it.UID), int(it.GID)); err != nil {
		return fmt.Errorf("worker: chown %s: %w", filepath.Dir(dest), err)
	}

	src, err := os.Open(it.LandingPath)
	if err != nil {
		return fmt.Errorf("worker: open landing file %s: %w", it.LandingPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("worker: stat %s: %w", it.LandingPath, err)
	}
	if uint64(info.Size()) != it.Size {
		return fsqerr.New(fsqerr.CodeRangeMismatch, "landing file %s is %d bytes, action item expects %d", it.LandingPath, info.Size(), it.Size)
	}

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return fmt.Errorf("worker: create parallel-FS file %s: %w", dest, err)
	}
	defer dst.Close()

	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		return fmt.Errorf("worker: copy to %s: %w", dest, err)
	}

	if err := dst.Chown(int(it.UID), int(it.GID)); err != nil {
		return fmt.Errorf("worker: fchown %s: %w", dest, err)
	}
	return nil
}

// UnlinkParallelFS implements action.Environment.
func (e *Environment) UnlinkParallelFS(it *action.Item) error {
	if err := os.Remove(it.FileInfo.RelativePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UnlinkLanding implements action.Environment.
func (e *Environment) UnlinkLanding(it *action.Item) error {
	if err := os.Remove(it.LandingPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
