package utils

import (
	"context"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var stopped atomic.Int32
	sw := NewStoppableWorkers(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		stopped.Inc()
	})
	sw.AddWorkers(func(ctx context.Context) {
		<-ctx.Done()
		stopped.Inc()
	})
	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, 2)

	// no new workers once stopped
	sw.AddWorkers(func(ctx context.Context) { stopped.Inc() })
	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, 2)
}

func TestStoppableWorkersParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var done atomic.Bool
	sw := NewStoppableWorkers(ctx, func(ctx context.Context) {
		<-ctx.Done()
		done.Store(true)
	})
	cancel()
	sw.Wait()
	test.That(t, done.Load(), test.ShouldBeTrue)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)
	sw.Stop()
}
