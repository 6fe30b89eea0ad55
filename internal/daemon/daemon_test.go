package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/GSI-HPC/fsqd/internal/fsqconfig"
	"github.com/GSI-HPC/fsqd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpts(t *testing.T) (*fsqconfig.Options, string) {
	t.Helper()
	root := t.TempDir()
	localfs := filepath.Join(root, "landing")
	parallelfs := filepath.Join(root, "lustre")
	require.NoError(t, os.MkdirAll(localfs, 0755))
	require.NoError(t, os.MkdirAll(parallelfs, 0755))

	identPath := filepath.Join(root, "identmap")
	require.NoError(t, os.WriteFile(identPath, []byte("node-alpha srv1 1 1000 1000\n"), 0644))

	opts := fsqconfig.NewDefault()
	opts.LocalFS = localfs
	opts.IdentMap = identPath
	opts.Port = 0 // overridden per test via a free port
	return opts, parallelfs
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestNewRejectsMissingLocalFS(t *testing.T) {
	opts, parallelfs := newTestOpts(t)
	opts.LocalFS = "/does/not/exist"
	_, err := New(opts, parallelfs)
	assert.Error(t, err)
}

func TestNewRejectsMissingParallelFS(t *testing.T) {
	opts, _ := newTestOpts(t)
	_, err := New(opts, "/does/not/exist")
	assert.Error(t, err)
}

func TestRunAcceptsConnectionsUntilStop(t *testing.T) {
	opts, parallelfs := newTestOpts(t)
	opts.Port = freePort(t)
	sup, err := New(opts, parallelfs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(runDone)
	}()

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.Port)))
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	require.NoError(t, wire.Send(conn, &wire.Packet{State: wire.Connect, Login: wire.LoginInfo{Node: "node-alpha"}}))
	reply, err := wire.Recv(conn, wire.Connect|wire.ReplyBit)
	require.NoError(t, err)
	assert.False(t, reply.State.Has(wire.ErrorBit))

	sup.Stop()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
