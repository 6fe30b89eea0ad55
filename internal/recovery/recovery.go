// Package recovery implements a startup walk of the landing-store tree that
// restores crash-interrupted work from the xattr journal.
package recovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/GSI-HPC/fsqd/internal/landing"
	"github.com/hashicorp/go-multierror"
)

// Scan walks root (the landing-store mount) and, for every regular file,
// re-derives an Action Item when the persisted state is FILE_OMITTED. Any
// other intermediate state is left untouched and logged as needing operator
// intervention, rather than guessed at. The reset to LOCAL_COPY_DONE is
// applied only to the in-memory Item; the on-disk xattr is left as
// FILE_OMITTED until the item's first Advance call persists the new state
// through the normal xattr-then-memory path, so running the scan twice with
// no intervening connections re-derives the same items. Per-file errors are
// collected rather than aborting the whole scan.
func Scan(store *landing.Store, root string) ([]*action.Item, error) {
	var items []*action.Item
	var errs *multierror.Error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("recovery: walking %s: %w", path, err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeType != 0 {
			// Not a regular file (symlink, device, ...): foreign, skip.
			return nil
		}

		tags, err := store.ReadTags(path)
		if err != nil {
			fsqlog.Warnf("recovery: %s: missing or unreadable xattrs, treating as foreign: %v", path, err)
			return nil
		}

		if tags.State != action.FileOmitted {
			fsqlog.Warnf("recovery scan found file stuck in state %s; operator intervention required: %s", tags.State, path)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("recovery: stat %s: %w", path, err))
			return nil
		}

		item := &action.Item{
			State:       action.LocalCopyDone,
			LandingPath: path,
			Size:        uint64(info.Size()),
			ArchiveID:   uint16(tags.ArchiveID),
			FileInfo: action.FileInfo{
				FilesystemName: tags.FS,
				RelativePath:   tags.FPath,
				Description:    tags.Desc,
				StorageDest:    tags.StorageDest,
			},
		}
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			item.UID = st.Uid
			item.GID = st.Gid
		}
		items = append(items, item)
		return nil
	})
	if walkErr != nil {
		errs = multierror.Append(errs, walkErr)
	}

	return items, errs.ErrorOrNil()
}
