// Package archive provides ArchiveBackend implementations: the HSM/archival
// capability point. This package never speaks a real TSM or Lustre HSM wire
// protocol — it models the capability boundary the daemon actually depends
// on (request + optional poll), leaving the real llapi_hsm_request /
// llapi_hsm_state_get calls to a caller-supplied Request/Poll func.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/GSI-HPC/fsqd/internal/action"
)

// FireAndForget is the default ArchiveBackend: RequestArchive is assumed to
// succeed immediately and the state machine moves straight to
// TSM_ARCHIVE_DONE on its next dequeue.
type FireAndForget struct {
	// Request, if set, is called to actually perform the archive request
	// (e.g. shelling out to a real HSM client); if nil, RequestArchive
	// always succeeds.
	Request func(ctx context.Context, parallelFSPath string, archiveID uint16) error
}

var _ action.ArchiveBackend = (*FireAndForget)(nil)

// RequestArchive implements action.ArchiveBackend.
func (f *FireAndForget) RequestArchive(ctx context.Context, parallelFSPath string, archiveID uint16) error {
	if f.Request == nil {
		return nil
	}
	return f.Request(ctx, parallelFSPath, archiveID)
}

// Polling is an ArchiveBackend that additionally supports PollState,
// re-checking whether a previously requested archive has completed. The
// state machine sleeps 50ms between polls.
type Polling struct {
	Request func(ctx context.Context, parallelFSPath string, archiveID uint16) error
	Poll    func(ctx context.Context, parallelFSPath string) (archived bool, err error)

	mu      sync.Mutex
	pending map[string]struct{}
}

var (
	_ action.ArchiveBackend = (*Polling)(nil)
	_ action.Poller         = (*Polling)(nil)
)

// PollInterval is the sleep between polls while TSM_ARCHIVE_RUN is pending.
const PollInterval = 50 * time.Millisecond

// RequestArchive implements action.ArchiveBackend.
func (p *Polling) RequestArchive(ctx context.Context, parallelFSPath string, archiveID uint16) error {
	if p.Request != nil {
		if err := p.Request(ctx, parallelFSPath, archiveID); err != nil {
			return err
		}
	}
	p.mu.Lock()
	if p.pending == nil {
		p.pending = make(map[string]struct{})
	}
	p.pending[parallelFSPath] = struct{}{}
	p.mu.Unlock()
	return nil
}

// PollState implements action.Poller. It sleeps PollInterval before asking
// the backend whether the archive request has completed.
func (p *Polling) PollState(ctx context.Context, parallelFSPath string) (bool, error) {
	select {
	case <-time.After(PollInterval):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if p.Poll == nil {
		return true, nil
	}
	archived, err := p.Poll(ctx, parallelFSPath)
	if err != nil {
		return false, err
	}
	if archived {
		p.mu.Lock()
		delete(p.pending, parallelFSPath)
		p.mu.Unlock()
	}
	return archived, nil
}
