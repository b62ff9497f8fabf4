package workers

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rgbd/rimage/transform"
)

// ErrWorkerTaskFailure is wrapped by DispatchAndWait when at least one task failed or panicked.
var ErrWorkerTaskFailure = errors.New("worker task failure")

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(task func()) error
}

// Barrier dispatches one batch of partition tasks at a time and blocks until all of them have
// finished. Every task decrements the outstanding count exactly once, whether it returns, fails
// or panics.
type Barrier struct {
	pool Submitter

	mu        sync.Mutex
	cond      *sync.Cond
	remaining int
	errs      error
}

// NewBarrier returns a Barrier submitting to pool.
func NewBarrier(pool Submitter) *Barrier {
	b := &Barrier{pool: pool}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// DispatchAndWait runs fn once per partition on the pool and waits for every call to complete.
// Failures, panics and rejected submissions are combined into one error wrapping
// ErrWorkerTaskFailure. A Barrier handles one batch at a time.
func (b *Barrier) DispatchAndWait(parts []transform.Partition, fn func(transform.Partition) error) error {
	if len(parts) == 0 {
		return nil
	}
	b.mu.Lock()
	if b.remaining != 0 {
		b.mu.Unlock()
		return errors.New("barrier already has a batch in flight")
	}
	b.remaining = len(parts)
	b.errs = nil
	b.mu.Unlock()

	for _, part := range parts {
		err := b.pool.Submit(func() {
			var taskErr error
			defer func() {
				if r := recover(); r != nil {
					taskErr = errors.Errorf("panic converting %v: %v", part, r)
				}
				b.done(taskErr)
			}()
			if taskErr = fn(part); taskErr != nil {
				taskErr = errors.Wrapf(taskErr, "converting %v", part)
			}
		})
		if err != nil {
			b.done(errors.Wrapf(err, "cannot submit %v", part))
		}
	}

	b.mu.Lock()
	for b.remaining > 0 {
		b.cond.Wait()
	}
	errs := b.errs
	b.errs = nil
	b.mu.Unlock()

	if errs == nil {
		return nil
	}
	failed := len(multierr.Errors(errs))
	return errors.Wrapf(ErrWorkerTaskFailure, "%d of %d tasks failed: %v", failed, len(parts), errs)
}

func (b *Barrier) done(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		panic("barrier completion count went negative")
	}
	b.errs = multierr.Append(b.errs, err)
	b.remaining--
	if b.remaining == 0 {
		b.cond.Broadcast()
	}
}
