// Package worker implements a fixed pool of goroutines that dequeue Action
// Items and advance each by one state transition.
package worker

import (
	"context"
	"sync"

	"github.com/GSI-HPC/fsqd/internal/action"
	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/GSI-HPC/fsqd/internal/queue"
)

// Pool is a fixed-size set of worker goroutines draining a shared Queue.
type Pool struct {
	q   *queue.Queue
	env action.Environment
	wg  sync.WaitGroup

	// OnTransition and OnPoison, when set, are called after every Advance
	// step so callers (the daemon's metrics registry) can observe state
	// transitions without this package depending on fsqmetrics.
	OnTransition func(action.State)
	OnPoison     func()
}

// NewPool returns a Pool that will dequeue from q and advance items through
// env once Start is called.
func NewPool(q *queue.Queue, env action.Environment) *Pool {
	return &Pool{q: q, env: env}
}

// Start launches n worker goroutines. Workers never touch the client
// socket; a single Action Item is only ever owned by one worker at a time,
// since ownership transfers via the queue.
func (p *Pool) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Wait blocks until every worker goroutine has returned (i.e. until the
// queue has been closed and drained).
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		item, ok := p.q.Dequeue()
		if !ok {
			return
		}
		p.process(ctx, item)
	}
}

func (p *Pool) process(ctx context.Context, item *action.Item) {
	out := action.Advance(ctx, item, p.env)
	if out.Err != nil {
		fsqlog.Warnf("worker: %s: %v (state now %s, error_count=%d)", item.LandingPath, out.Err, item.State, item.ErrorCount)
	}
	if p.OnTransition != nil {
		p.OnTransition(item.State)
	}
	if item.State == action.FileOmitted && p.OnPoison != nil {
		p.OnPoison()
	}
	if out.Done {
		return
	}
	if out.Requeue {
		p.q.Enqueue(item)
	}
}
