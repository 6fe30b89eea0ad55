// Package action implements the in-memory record of one in-flight file and
// the state machine that drives it from landing to its configured terminal
// storage destination.
package action

import "fmt"

// State is the persisted lifecycle state of an Action Item. Values are
// fixed bitmask constants so xattr state values survive a mixed-version
// recovery scan unambiguously.
type State uint32

// Lifecycle states.
const (
	LocalCopyDone   State = 0x1
	LustreCopyRun   State = 0x2
	LustreCopyError State = 0x4
	LustreCopyDone  State = 0x8
	TSMArchiveRun   State = 0x10
	TSMArchiveError State = 0x20
	TSMArchiveDone  State = 0x40
	FileOmitted     State = 0x80
	FileKeep        State = 0x100
)

var stateNames = map[State]string{
	LocalCopyDone:   "LOCAL_COPY_DONE",
	LustreCopyRun:   "LUSTRE_COPY_RUN",
	LustreCopyError: "LUSTRE_COPY_ERROR",
	LustreCopyDone:  "LUSTRE_COPY_DONE",
	TSMArchiveRun:   "TSM_ARCHIVE_RUN",
	TSMArchiveError: "TSM_ARCHIVE_ERROR",
	TSMArchiveDone:  "TSM_ARCHIVE_DONE",
	FileOmitted:     "FILE_OMITTED",
	FileKeep:        "FILE_KEEP",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(0x%x)", uint32(s))
}

// Terminal reports whether s is one of the two terminal states.
func (s State) Terminal() bool { return s == FileKeep || s == FileOmitted }

// StorageDest is the enumeration of destinations a landed file may be
// routed to.
type StorageDest uint32

// Storage destinations.
const (
	StorageNull StorageDest = iota
	StorageLocal
	StorageLustre
	StorageTSM
	StorageLustreTSM
)

var storageDestNames = map[StorageDest]string{
	StorageNull:      "NULL",
	StorageLocal:     "LOCAL",
	StorageLustre:    "LUSTRE",
	StorageTSM:       "TSM",
	StorageLustreTSM: "LUSTRE_TSM",
}

func (d StorageDest) String() string {
	if n, ok := storageDestNames[d]; ok {
		return n
	}
	return fmt.Sprintf("StorageDest(%d)", uint32(d))
}
