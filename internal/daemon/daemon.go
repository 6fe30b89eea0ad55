// Package daemon runs the recovery scan, starts the worker pool, binds the
// listen socket, and drives the accept loop until a termination signal
// flips the keep-running flag.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/archive"
	"github.com/GSI-HPC/fsqd/internal/fsqconfig"
	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/GSI-HPC/fsqd/internal/fsqmetrics"
	"github.com/GSI-HPC/fsqd/internal/identity"
	"github.com/GSI-HPC/fsqd/internal/landing"
	"github.com/GSI-HPC/fsqd/internal/queue"
	"github.com/GSI-HPC/fsqd/internal/recovery"
	"github.com/GSI-HPC/fsqd/internal/session"
	"github.com/GSI-HPC/fsqd/internal/worker"
)

// Supervisor owns every long-lived component of a running daemon.
type Supervisor struct {
	Opts    *fsqconfig.Options
	Backend action.ArchiveBackend

	identity *identity.Map
	store    *landing.Store
	queue    *queue.Queue
	sessions *session.Counter
	pool     *worker.Pool
	metrics  *fsqmetrics.Registry

	running  atomic.Bool
	listener net.Listener
}

// New validates opts and assembles a Supervisor ready to Run. parallelFSRoot
// is the positional `<lustre_mount_point>` argument used only to validate
// that the parallel-FS mount exists before startup.
func New(opts *fsqconfig.Options, parallelFSRoot string) (*Supervisor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if info, err := os.Stat(opts.LocalFS); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("daemon: localfs %q is not a directory: %w", opts.LocalFS, err)
	}
	if info, err := os.Stat(parallelFSRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("daemon: parallel-FS mount %q is not a directory: %w", parallelFSRoot, err)
	}

	idmap, err := identity.Load(opts.IdentMap)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		Opts:     opts,
		Backend:  &archive.FireAndForget{},
		identity: idmap,
		store:    landing.New(opts.LocalFS),
		queue:    queue.New(),
		sessions: session.NewCounter(opts.SThreads),
		metrics:  fsqmetrics.New(),
	}
	s.running.Store(true)
	return s, nil
}

// Run runs the recovery scan, starts the worker pool, binds the listen
// socket, and accepts connections until Stop is called or INT/TERM is
// received. It blocks until every worker goroutine has exited; session
// goroutines still serving a connection are not waited for.
func (s *Supervisor) Run(ctx context.Context) error {
	items, err := recovery.Scan(s.store, s.Opts.LocalFS)
	if err != nil {
		fsqlog.Warnf("daemon: recovery scan reported errors: %v", err)
	}
	for _, item := range items {
		s.queue.Enqueue(item)
	}
	fsqlog.Messagef("recovery scan re-enqueued %d file(s)", len(items))

	env := &worker.Environment{Store: s.store, Backend: s.Backend, Tol: uint32(s.Opts.TolErr)}
	s.pool = worker.NewPool(s.queue, env)
	s.pool.OnTransition = func(st action.State) { s.metrics.Transition(st.String()) }
	s.pool.OnPoison = s.metrics.Poisoned
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	s.pool.Start(workerCtx, s.Opts.QThreads)

	s.metrics.SetQueueDepthFunc(func() float64 { return float64(s.queue.Size()) })
	if s.Opts.MetricsAddr != "" {
		s.metrics.Serve(s.Opts.MetricsAddr)
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.Opts.Port))
	if err != nil {
		return fmt.Errorf("daemon: listen on port %d: %w", s.Opts.Port, err)
	}
	s.listener = ln
	defer ln.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fsqlog.Infof("daemon: shutdown signal received")
		s.Stop()
	}()

	fsqlog.Messagef("fsqd listening on port %d, localfs=%s", s.Opts.Port, s.Opts.LocalFS)
	s.acceptLoop(ln)

	// Shutdown drain policy: stop accepting and close the queue. Workers keep
	// advancing the items already queued, including the ones they re-enqueue,
	// and exit once the queue is empty; the wait for that is not bounded.
	s.queue.Close()
	s.pool.Wait()
	return nil
}

func (s *Supervisor) acceptLoop(ln net.Listener) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	results := make(chan acceptResult)
	go func() {
		for {
			conn, err := ln.Accept()
			results <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	for s.running.Load() {
		res := <-results
		if res.err != nil {
			if s.running.Load() {
				fsqlog.Warnf("daemon: accept: %v", res.err)
			}
			return
		}
		s.handleAccept(res.conn)
	}
	_ = ln.Close()
}

func (s *Supervisor) handleAccept(conn net.Conn) {
	if !s.sessions.TryAcquire() {
		// Cap reached: close without reading a byte.
		_ = conn.Close()
		return
	}
	s.metrics.SessionOpened()
	h := &session.Handler{Identity: s.identity, Store: s.store, Queue: s.queue, Sessions: s.sessions}
	go func() {
		defer s.metrics.SessionClosed()
		h.Serve(conn, conn.Close)
	}()
}

// Stop flips the keep-running flag and closes the listen socket so the
// accept loop's blocked Accept call returns immediately instead of waiting
// for one more connection.
func (s *Supervisor) Stop() {
	s.running.Store(false)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
