package action

import "time"

// FileInfo is the target-semantics part of an Action Item: where the file
// is ultimately meant to live, carried over from the OPEN request.
type FileInfo struct {
	FilesystemName string
	RelativePath   string
	Description    string
	StorageDest    StorageDest
}

// Timestamps records when a file crossed each milestone: received, landed,
// copied (to the parallel FS), archived.
type Timestamps struct {
	Received time.Time
	Landed   time.Time
	Copied   time.Time
	Archived time.Time
}

// Item is single-owner at any given moment: either the queue holds it, or
// the worker that dequeued it does; no internal locking is needed as a
// result.
type Item struct {
	State State

	FileInfo     FileInfo
	LandingPath  string
	Size         uint64
	Progressed   uint64
	ErrorCount   uint32
	Timestamps   Timestamps
	ArchiveID    uint16
	UID          uint32
	GID          uint32
}

// StorageDestinationReached reports whether the item's current state is the
// terminal state for its configured StorageDest.
func (it *Item) StorageDestinationReached() bool {
	switch it.FileInfo.StorageDest {
	case StorageLocal:
		return it.State == LocalCopyDone
	case StorageLustre:
		return it.State == LustreCopyDone
	case StorageTSM, StorageLustreTSM:
		return it.State == TSMArchiveDone
	default:
		return false
	}
}
