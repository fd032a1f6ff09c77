package sched

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// waiter is one queued lock request
type waiter struct {
	tag      string
	priority uint8
	seq      uint64
	granted  chan struct{}
	index    int
}

// waiterQueue orders waiters by priority (higher first), then arrival
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() interface{} {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

// arbiter serializes lock grants among in-process waiters. Grants go to
// the highest-priority waiter, FIFO among equals.
type arbiter struct {
	mu      sync.Mutex
	seq     uint64
	held    bool
	holder  string
	waiters waiterQueue
}

func newArbiter() *arbiter {
	a := &arbiter{}
	heap.Init(&a.waiters)
	return a
}

// acquire blocks until the caller is granted the lock, the timeout
// elapses, or ctx is canceled.
func (a *arbiter) acquire(ctx context.Context, tag string, priority uint8, timeout time.Duration) error {
	a.mu.Lock()
	if !a.held && a.waiters.Len() == 0 {
		a.held = true
		a.holder = tag
		a.mu.Unlock()
		return nil
	}

	a.seq++
	w := &waiter{
		tag:      tag,
		priority: priority,
		seq:      a.seq,
		granted:  make(chan struct{}),
	}
	heap.Push(&a.waiters, w)
	a.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.granted:
		return nil
	case <-ctx.Done():
		return a.abandon(w, ctx.Err())
	case <-timer.C:
		return a.abandon(w, ErrLockTimeout)
	}
}

// abandon removes a waiter that gave up. If the grant raced the give-up,
// the grant wins and is passed on to the next waiter.
func (a *arbiter) abandon(w *waiter, cause error) error {
	a.mu.Lock()
	select {
	case <-w.granted:
		// Granted concurrently; hand the lock back.
		a.releaseLocked()
		a.mu.Unlock()
		return cause
	default:
	}
	heap.Remove(&a.waiters, w.index)
	a.mu.Unlock()
	return cause
}

// release frees the lock and grants it to the best waiter, if any
func (a *arbiter) release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.held {
		return ErrNotHeld
	}
	a.releaseLocked()
	return nil
}

func (a *arbiter) releaseLocked() {
	a.held = false
	a.holder = ""
	if a.waiters.Len() > 0 {
		next := heap.Pop(&a.waiters).(*waiter)
		a.held = true
		a.holder = next.tag
		close(next.granted)
	}
}

// holderTag returns the current holder's tag, empty when free
func (a *arbiter) holderTag() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}
