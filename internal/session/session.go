// Package session implements one goroutine per accepted connection, driving
// a client through connect/open/data/close cycles and producing Action
// Items for the work queue.
package session

import (
	"os"
	"time"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/fsqerr"
	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/GSI-HPC/fsqd/internal/identity"
	"github.com/GSI-HPC/fsqd/internal/landing"
	"github.com/GSI-HPC/fsqd/internal/queue"
	"github.com/GSI-HPC/fsqd/internal/wire"
)

// Handler holds everything a session goroutine needs, wired explicitly
// instead of through package-level globals.
type Handler struct {
	Identity *identity.Map
	Store    *landing.Store
	Queue    *queue.Queue
	Sessions *Counter
}

// openFile tracks the landing file currently being written within one
// OPEN/CLOSE cycle.
type openFile struct {
	f           *os.File
	path        string
	storageDest action.StorageDest
	fileInfo    action.FileInfo
	archiveID   uint16
	uid, gid    uint32
	size        uint64
}

// Serve drives one accepted connection end to end. It always closes conn
// and releases the session-count slot before returning.
func (h *Handler) Serve(conn wire.Conn, closeConn func() error) {
	defer func() {
		h.Sessions.Release()
		_ = closeConn()
	}()

	login, err := h.handleConnect(conn)
	if err != nil {
		fsqlog.Warnf("session: connect failed: %v", err)
		return
	}
	fsqlog.Infof("session: %s connected from %s", login.Node, login.Hostname)

	for {
		pkt, err := wire.Recv(conn, wire.Open|wire.Disconnect)
		if err != nil {
			fsqlog.Warnf("session: %s: %v", login.Node, err)
			_ = wire.SendError(conn, wire.Open, err)
			return
		}
		if pkt.State.Has(wire.Disconnect) {
			fsqlog.Infof("session: %s disconnected", login.Node)
			return
		}

		of, err := h.handleOpen(conn, pkt, login.Node)
		if err != nil {
			fsqlog.Warnf("session: %s: open failed: %v", login.Node, err)
			_ = wire.SendError(conn, wire.Open, err)
			continue
		}
		if err := wire.SendReply(conn, wire.Open); err != nil {
			fsqlog.Warnf("session: %s: %v", login.Node, err)
			return
		}

		if fatal := h.dataCloseLoop(conn, of); fatal != nil {
			fsqlog.Warnf("session: %s: %v", login.Node, fatal)
			return
		}
	}
}

func (h *Handler) handleConnect(conn wire.Conn) (wire.LoginInfo, error) {
	pkt, err := wire.Recv(conn, wire.Connect)
	if err != nil {
		_ = wire.SendError(conn, wire.Connect, err)
		return wire.LoginInfo{}, err
	}

	if _, ok := h.Identity.Lookup(pkt.Login.Node); !ok {
		_ = wire.SendError(conn, wire.Connect, fsqerr.ErrAuthAccessDenied)
		return wire.LoginInfo{}, fsqerr.ErrAuthAccessDenied
	}
	fsqlog.Debugf("session: connect from node %q (password field present: %v)", pkt.Login.Node, pkt.Login.Password != "")

	if err := wire.SendReply(conn, wire.Connect); err != nil {
		return wire.LoginInfo{}, err
	}
	return pkt.Login, nil
}

func (h *Handler) handleOpen(conn wire.Conn, pkt *wire.Packet, node string) (*openFile, error) {
	fi := action.FileInfo{
		FilesystemName: pkt.File.FilesystemName,
		RelativePath:   pkt.File.RelativePath,
		Description:    pkt.File.Description,
		StorageDest:    action.StorageDest(pkt.File.StorageDest),
	}

	// OPEN packets carry no login info; uid/gid/archive_id always come from
	// the node identity resolved at CONNECT, never from pkt itself.
	entry, ok := h.Identity.Lookup(node)
	if !ok {
		entry = identity.Entry{}
	}

	hl, ll, err := landing.ExtractHlLl(fi.RelativePath, fi.FilesystemName)
	if err != nil {
		return nil, err
	}

	f, path, err := h.Store.Create(fi.StorageDest, hl, ll)
	if err != nil {
		return nil, err
	}

	return &openFile{
		f:           f,
		path:        path,
		storageDest: fi.StorageDest,
		fileInfo:    fi,
		archiveID:   entry.ArchiveID,
		uid:         entry.UID,
		gid:         entry.GID,
	}, nil
}

// dataCloseLoop reads DATA/CLOSE packets for one open file until CLOSE,
// returning a non-nil error only for conditions fatal to the whole session
// (socket/protocol errors); landing-level errors (e.g. a write failure) are
// reported to the client via ERROR|REPLY and also end the session, since an
// I/O error on the socket or disk is always fatal to the session.
func (h *Handler) dataCloseLoop(conn wire.Conn, of *openFile) error {
	for {
		pkt, err := wire.Recv(conn, wire.Data|wire.Close)
		if err != nil {
			_ = of.f.Close()
			_ = wire.SendError(conn, wire.Data, err)
			return err
		}

		if pkt.State.Has(wire.Close) {
			return h.handleClose(conn, of)
		}

		n := pkt.Data.PayloadBytes
		buf := make([]byte, n)
		if err := wire.ReadExact(conn, buf); err != nil {
			_ = of.f.Close()
			_ = wire.SendError(conn, wire.Data, err)
			return err
		}
		if _, err := of.f.Write(buf); err != nil {
			_ = of.f.Close()
			wireErr := fsqerr.New(fsqerr.CodeIOError, "writing landing file: %v", err)
			_ = wire.SendError(conn, wire.Data, wireErr)
			return wireErr
		}
		of.size += n

		if err := wire.SendReply(conn, wire.Data); err != nil {
			_ = of.f.Close()
			return err
		}
	}
}

func (h *Handler) handleClose(conn wire.Conn, of *openFile) error {
	if err := of.f.Close(); err != nil {
		wireErr := fsqerr.New(fsqerr.CodeIOError, "closing landing file: %v", err)
		_ = wire.SendError(conn, wire.Close, wireErr)
		return wireErr
	}

	if of.storageDest == action.StorageNull {
		return wire.SendReply(conn, wire.Close)
	}

	tags := landing.Tags{
		State:       action.LocalCopyDone,
		ArchiveID:   int32(of.archiveID),
		FS:          of.fileInfo.FilesystemName,
		FPath:       of.fileInfo.RelativePath,
		Desc:        of.fileInfo.Description,
		StorageDest: of.storageDest,
	}
	if err := h.Store.WriteTags(of.path, tags); err != nil {
		_ = wire.SendError(conn, wire.Close, err)
		return err
	}

	item := &action.Item{
		State:       action.LocalCopyDone,
		FileInfo:    of.fileInfo,
		LandingPath: of.path,
		Size:        of.size,
		ArchiveID:   of.archiveID,
		UID:         of.uid,
		GID:         of.gid,
	}
	item.Timestamps.Received = time.Now()
	item.Timestamps.Landed = time.Now()
	h.Queue.Enqueue(item)

	return wire.SendReply(conn, wire.Close)
}
