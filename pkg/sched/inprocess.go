package sched

import (
	"context"
	"time"

	"github.com/uber-go/tally"
)

// InProcessLock arbitrates engines within one process only. Tests and
// single-process deployments use it in place of FileLock without touching
// call sites.
type InProcessLock struct {
	arb     *arbiter
	timeout time.Duration
	scope   tally.Scope
}

// NewInProcessLock creates an in-process device lock
func NewInProcessLock(opts ...Option) *InProcessLock {
	o := buildOptions(opts)
	return &InProcessLock{
		arb:     newArbiter(),
		timeout: o.Timeout,
		scope:   o.Scope,
	}
}

// Lock blocks until the caller holds the lock
func (l *InProcessLock) Lock(ctx context.Context, tag string, priority uint8) error {
	sw := l.scope.Timer("lock_wait").Start()
	err := l.arb.acquire(ctx, tag, priority, l.timeout)
	sw.Stop()
	if err != nil {
		l.scope.Counter("lock_failures").Inc(1)
		return err
	}
	l.scope.Counter("lock_acquisitions").Inc(1)
	return nil
}

// Unlock releases the lock and wakes the next qualifying waiter
func (l *InProcessLock) Unlock() error {
	return l.arb.release()
}

// Holder returns the tag of the current holder, empty when free
func (l *InProcessLock) Holder() string {
	return l.arb.holderTag()
}
