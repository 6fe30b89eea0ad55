// Package landing constructs landing paths, creates landing files with
// exclusive-create semantics, and tags finished files with the six
// persistent xattrs that serve as the crash-recovery journal.
package landing

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/fsqerr"
	"github.com/pkg/xattr"
)

// pathCeiling bounds high-level/low-level path halves and the persisted
// fpath/fs xattrs to 2048 bytes.
const pathCeiling = 2048

// descCeiling bounds the persisted description xattr.
const descCeiling = 255

// Xattr key names. Fixed and stable: a landing store's recovery journal is
// only useful across restarts if these never change.
const (
	xattrState       = "user.fsq.state"
	xattrArchiveID   = "user.fsq.arvid"
	xattrFS          = "user.fsq.fs"
	xattrFPath       = "user.fsq.fpath"
	xattrDesc        = "user.fsq.desc"
	xattrStorageDest = "user.fsq.stordest"
)

// NullDevicePath is the system null device landing files are opened against
// for StorageDest == NULL.
const NullDevicePath = "/dev/null"

// Tags is the full set of persistent xattrs owned by the Landing Store on
// every non-NULL landing file. These are the source of truth for recovery;
// the in-memory Item is a cache.
type Tags struct {
	State       action.State
	ArchiveID   int32
	FS          string
	FPath       string
	Desc        string
	StorageDest action.StorageDest
}

// Store roots landing operations at a configured local mount.
type Store struct {
	Root string
}

// New returns a Store rooted at root.
func New(root string) *Store {
	return &Store{Root: root}
}

// ExtractHlLl splits fpath at its last '/' into a high-level directory
// prefix and a low-level basename, stripping fs from the front of fpath
// first if present.
func ExtractHlLl(fpath, fs string) (hl, ll string, err error) {
	trimmed := fpath
	if fs != "" && strings.HasPrefix(fpath, fs) {
		trimmed = strings.TrimPrefix(fpath, fs)
	}
	if len(trimmed) > pathCeiling {
		return "", "", fsqerr.New(fsqerr.CodeNameTooLong, "fpath %d bytes exceeds ceiling %d", len(trimmed), pathCeiling)
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		hl, ll = "", trimmed
	} else {
		hl, ll = trimmed[:idx], trimmed[idx:]
	}
	if len(hl) > pathCeiling || len(ll) > pathCeiling {
		return "", "", fsqerr.New(fsqerr.CodeNameTooLong, "split path half exceeds ceiling %d", pathCeiling)
	}
	return hl, ll, nil
}

// LandingPath joins the store root with the high-level/low-level halves.
func (s *Store) LandingPath(hl, ll string) string {
	return filepath.Join(s.Root, hl, ll)
}

// Create opens a new landing file for writing. For storageDest == NULL it
// opens the system null device and skips xattr bookkeeping entirely. For
// every other destination it creates any missing
// parent directories (mode 0755) and opens the file
// write-only|create|exclusive, mode 0660; a name collision is reported as
// ErrAlreadyExists.
func (s *Store) Create(storageDest action.StorageDest, hl, ll string) (f *os.File, path string, err error) {
	if storageDest == action.StorageNull {
		f, err = os.OpenFile(NullDevicePath, os.O_WRONLY, 0)
		return f, NullDevicePath, err
	}

	path = s.LandingPath(hl, ll)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, "", fmt.Errorf("landing: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0660)
	if err != nil {
		if os.IsExist(err) {
			return nil, path, fsqerr.ErrAlreadyExists
		}
		return nil, path, fmt.Errorf("landing: create %s: %w", path, err)
	}
	return f, path, nil
}

// WriteTags atomically sets all six persistent xattrs on path from t (the
// session handler passes the initial state LOCAL_COPY_DONE in t.State).
// "Atomic" here means: done once,
// after all DATA bytes are written and before any Item referencing the file
// is enqueued (the session thread enforces the ordering; this function just
// performs the writes).
func (s *Store) WriteTags(path string, t Tags) error {
	if len(t.FPath) > pathCeiling || len(t.FS) > pathCeiling {
		return fsqerr.ErrNameTooLong
	}
	if len(t.Desc) > descCeiling {
		return fsqerr.ErrNameTooLong
	}
	sets := []struct {
		key   string
		value string
	}{
		{xattrState, strconv.FormatUint(uint64(t.State), 10)},
		{xattrArchiveID, strconv.FormatInt(int64(t.ArchiveID), 10)},
		{xattrFS, t.FS},
		{xattrFPath, t.FPath},
		{xattrDesc, t.Desc},
		{xattrStorageDest, strconv.FormatUint(uint64(t.StorageDest), 10)},
	}
	for _, kv := range sets {
		if err := xattr.Set(path, kv.key, []byte(kv.value)); err != nil {
			return fmt.Errorf("landing: set xattr %q on %s: %w", kv.key, path, err)
		}
	}
	return nil
}

// SetState updates only the `state` xattr on path — the hot path used by
// every worker-side transition, which updates the on-disk xattr state
// before the in-memory copy.
func (s *Store) SetState(path string, state action.State) error {
	if err := xattr.Set(path, xattrState, []byte(strconv.FormatUint(uint64(state), 10))); err != nil {
		return fmt.Errorf("landing: set xattr %q on %s: %w", xattrState, path, err)
	}
	return nil
}

// ReadTags reads all six persistent xattrs from path. Any missing key is
// reported as an error so the caller can treat the file as foreign.
func (s *Store) ReadTags(path string) (Tags, error) {
	var t Tags
	stateRaw, err := xattr.Get(path, xattrState)
	if err != nil {
		return t, fmt.Errorf("landing: get xattr %q on %s: %w", xattrState, path, err)
	}
	stateVal, err := strconv.ParseUint(string(stateRaw), 10, 32)
	if err != nil {
		return t, fmt.Errorf("landing: parse xattr %q on %s: %w", xattrState, path, err)
	}
	t.State = action.State(stateVal)

	archiveRaw, err := xattr.Get(path, xattrArchiveID)
	if err != nil {
		return t, fmt.Errorf("landing: get xattr %q on %s: %w", xattrArchiveID, path, err)
	}
	archiveVal, err := strconv.ParseInt(string(archiveRaw), 10, 32)
	if err != nil {
		return t, fmt.Errorf("landing: parse xattr %q on %s: %w", xattrArchiveID, path, err)
	}
	t.ArchiveID = int32(archiveVal)

	fsRaw, err := xattr.Get(path, xattrFS)
	if err != nil {
		return t, fmt.Errorf("landing: get xattr %q on %s: %w", xattrFS, path, err)
	}
	t.FS = string(fsRaw)

	fpathRaw, err := xattr.Get(path, xattrFPath)
	if err != nil {
		return t, fmt.Errorf("landing: get xattr %q on %s: %w", xattrFPath, path, err)
	}
	t.FPath = string(fpathRaw)

	descRaw, err := xattr.Get(path, xattrDesc)
	if err != nil {
		return t, fmt.Errorf("landing: get xattr %q on %s: %w", xattrDesc, path, err)
	}
	t.Desc = string(descRaw)

	storRaw, err := xattr.Get(path, xattrStorageDest)
	if err != nil {
		return t, fmt.Errorf("landing: get xattr %q on %s: %w", xattrStorageDest, path, err)
	}
	storVal, err := strconv.ParseUint(string(storRaw), 10, 32)
	if err != nil {
		return t, fmt.Errorf("landing: parse xattr %q on %s: %w", xattrStorageDest, path, err)
	}
	t.StorageDest = action.StorageDest(storVal)

	return t, nil
}
