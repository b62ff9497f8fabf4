// Package workers contains a fixed size goroutine pool and a completion barrier used to fan a
// frame's conversion work out over it.
package workers

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/rgbd/logging"
)

// ErrPoolStopped is returned by Submit once the pool has been stopped.
var ErrPoolStopped = errors.New("worker pool stopped")

// Stats are running totals for a pool.
type Stats struct {
	Submitted uint64
	Completed uint64
	Panicked  uint64
}

// Pool runs submitted tasks on a fixed set of long-lived goroutines in FIFO order.
type Pool struct {
	logger logging.Logger
	size   int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool

	activeWorkers sync.WaitGroup
	submitted     atomic.Uint64
	completed     atomic.Uint64
	panicked      atomic.Uint64
}

// NewPool starts n workers.
func NewPool(n int, logger logging.Logger) (*Pool, error) {
	if n < 1 {
		return nil, errors.Errorf("worker pool needs at least one worker, got %d", n)
	}
	p := &Pool{logger: logger, size: n}
	p.cond = sync.NewCond(&p.mu)
	p.activeWorkers.Add(n)
	for i := 0; i < n; i++ {
		goutils.ManagedGo(p.work, p.activeWorkers.Done)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Stats returns the pool's running totals.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Submit queues task and returns without waiting for it to run.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.queue = append(p.queue, task)
	p.submitted.Inc()
	p.cond.Signal()
	return nil
}

// Stop stops accepting tasks, lets the workers drain what is already queued and waits for them
// to exit. Calling Stop more than once is safe.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.activeWorkers.Wait()
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Inc()
			p.logger.Errorw("worker task panicked", "panic", r)
		}
		p.completed.Inc()
	}()
	task()
}
