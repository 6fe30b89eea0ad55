package session

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/GSI-HPC/fsqd/internal/identity"
	"github.com/GSI-HPC/fsqd/internal/landing"
	"github.com/GSI-HPC/fsqd/internal/queue"
	"github.com/GSI-HPC/fsqd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	root := t.TempDir()
	identPath := filepath.Join(root, "identmap")
	require.NoError(t, os.WriteFile(identPath, []byte("node-alpha srv1 1 1000 1000\n"), 0644))
	idmap, err := identity.Load(identPath)
	require.NoError(t, err)

	landingRoot := filepath.Join(root, "landing")
	require.NoError(t, os.MkdirAll(landingRoot, 0755))

	return &Handler{
		Identity: idmap,
		Store:    landing.New(landingRoot),
		Queue:    queue.New(),
		Sessions: NewCounter(4),
	}, landingRoot
}

func TestServeEmptyFileLocal(t *testing.T) {
	h, landingRoot := newTestHandler(t)
	if _, err := os.Lstat("/proc/self"); err != nil {
		t.Skip("requires /proc/self")
	}

	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Serve(serverConn, serverConn.Close)
		close(done)
	}()

	require.NoError(t, wire.Send(clientConn, &wire.Packet{State: wire.Connect, Login: wire.LoginInfo{Node: "node-alpha"}}))
	reply, err := wire.Recv(clientConn, wire.Connect|wire.ReplyBit)
	require.NoError(t, err)
	assert.False(t, reply.State.Has(wire.ErrorBit))

	require.NoError(t, wire.Send(clientConn, &wire.Packet{State: wire.Open, File: wire.FileInfo{
		FilesystemName: "/lustre", RelativePath: "/lustre/a/empty.bin", StorageDest: uint32(1),
	}}))
	reply, err = wire.Recv(clientConn, wire.Open|wire.ReplyBit)
	require.NoError(t, err)
	if reply.State.Has(wire.ErrorBit) {
		t.Skipf("landing store refused OPEN in this environment: %s", reply.Error.Message)
	}

	require.NoError(t, wire.Send(clientConn, &wire.Packet{State: wire.Close}))
	reply, err = wire.Recv(clientConn, wire.Close|wire.ReplyBit)
	require.NoError(t, err)
	assert.False(t, reply.State.Has(wire.ErrorBit))

	require.NoError(t, wire.Send(clientConn, &wire.Packet{State: wire.Disconnect}))
	_ = clientConn.Close()
	<-done

	info, err := os.Stat(filepath.Join(landingRoot, "a/empty.bin"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	item, ok := h.Queue.Dequeue()
	require.True(t, ok)
	assert.Equal(t, uint16(1), item.ArchiveID)
	assert.Equal(t, uint32(1000), item.UID)
	assert.Equal(t, uint32(1000), item.GID)
}

func TestServeUnknownNodeDenied(t *testing.T) {
	h, _ := newTestHandler(t)
	require.True(t, h.Sessions.TryAcquire())

	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Serve(serverConn, serverConn.Close)
		close(done)
	}()

	require.NoError(t, wire.Send(clientConn, &wire.Packet{State: wire.Connect, Login: wire.LoginInfo{Node: "node-unknown"}}))
	reply, err := wire.Recv(clientConn, wire.Connect|wire.ReplyBit)
	require.NoError(t, err)
	assert.True(t, reply.State.Has(wire.ErrorBit))

	_ = clientConn.Close()
	<-done
	assert.Equal(t, 0, h.Sessions.Count())
}
