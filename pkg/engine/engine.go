// Package engine decouples task submission from execution for one vFPGA
// hardware context. Tasks run exactly once, in submission order, on a
// single background worker; completions are recorded in completion order
// and popped by pollers.
package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"

	"github.com/openaccel/vfpga/pkg/sched"
)

// DefaultQueueDepth bounds the task queue; Schedule fails with
// ErrQueueFull once the worker falls this far behind.
const DefaultQueueDepth = 1024

// Options configure an Engine
type Options struct {
	QueueDepth int
	Lock       sched.DeviceLock
	LockTag    string
	Scope      tally.Scope
	Logger     *logrus.Entry
}

// Option mutates engine Options
type Option func(*Options)

// WithQueueDepth bounds the task queue
func WithQueueDepth(n int) Option {
	return func(o *Options) { o.QueueDepth = n }
}

// WithLock makes the worker acquire the device lock around each task,
// using the task's priority for arbitration.
func WithLock(l sched.DeviceLock) Option {
	return func(o *Options) { o.Lock = l }
}

// WithLockTag overrides the tag presented to the device lock
func WithLockTag(tag string) Option {
	return func(o *Options) { o.LockTag = tag }
}

// WithScope attaches a metrics scope
func WithScope(s tally.Scope) Option {
	return func(o *Options) { o.Scope = s }
}

// WithLogger overrides the engine's logger
func WithLogger(l *logrus.Entry) Option {
	return func(o *Options) { o.Logger = l }
}

// Engine owns the task and completion queues for one hardware context
type Engine struct {
	id      string
	lock    sched.DeviceLock
	lockTag string
	log     *logrus.Entry

	tasks   chan Task
	stopCh  chan struct{}
	readyCh chan struct{}
	doneCh  chan struct{}

	mu          sync.Mutex
	completions []Completion
	started     bool
	stopped     bool

	queueSize    *atomic.Int64
	completedCnt *atomic.Uint64

	scope        tally.Scope
	submittedCtr tally.Counter
	completedCtr tally.Counter
	failedCtr    tally.Counter
	queueGauge   tally.Gauge
}

// New creates an Engine. Start must be called before tasks are scheduled.
func New(opts ...Option) *Engine {
	o := Options{
		QueueDepth: DefaultQueueDepth,
		Scope:      tally.NoopScope,
	}
	for _, fn := range opts {
		fn(&o)
	}
	id := uuid.New().String()
	if o.LockTag == "" {
		o.LockTag = id
	}
	logger := o.Logger
	if logger == nil {
		logger = logrus.WithField("component", "engine")
	}
	return &Engine{
		id:           id,
		lock:         o.Lock,
		lockTag:      o.LockTag,
		log:          logger.WithField("engine_id", id),
		tasks:        make(chan Task, o.QueueDepth),
		stopCh:       make(chan struct{}),
		readyCh:      make(chan struct{}),
		doneCh:       make(chan struct{}),
		queueSize:    atomic.NewInt64(0),
		completedCnt: atomic.NewUint64(0),
		scope:        o.Scope,
		submittedCtr: o.Scope.Counter("tasks_submitted"),
		completedCtr: o.Scope.Counter("tasks_completed"),
		failedCtr:    o.Scope.Counter("tasks_failed"),
		queueGauge:   o.Scope.Gauge("task_queue_size"),
	}
}

// ID returns the engine's unique id
func (e *Engine) ID() string {
	return e.id
}

// Start spawns the worker and blocks until it has entered its loop, so a
// task scheduled immediately after Start can never race a missing worker.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	go e.worker()
	<-e.readyCh
	e.log.Debug("engine worker started")
	return nil
}

// Schedule enqueues a task for execution. It never blocks the caller: a
// full queue fails with ErrQueueFull instead.
func (e *Engine) Schedule(t Task) error {
	// The stopped check and the enqueue stay under one critical section:
	// a send after Stop's drain would be accepted and never run. The
	// send is non-blocking, so holding mu here cannot stall.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if !e.started {
		return ErrNotStarted
	}

	select {
	case e.tasks <- t:
		e.queueSize.Inc()
		e.submittedCtr.Inc(1)
		e.queueGauge.Update(float64(e.queueSize.Load()))
		return nil
	default:
		return ErrQueueFull
	}
}

// NextCompletion pops the oldest completion. Returns false when none is
// pending; it never blocks.
func (e *Engine) NextCompletion() (Completion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.completions) == 0 {
		return Completion{}, false
	}
	c := e.completions[0]
	e.completions = e.completions[1:]
	return c, true
}

// CompletedCount returns the number of tasks completed so far
func (e *Engine) CompletedCount() uint64 {
	return e.completedCnt.Load()
}

// QueueSize returns the approximate number of queued tasks
func (e *Engine) QueueSize() int {
	return int(e.queueSize.Load())
}

// CancelPending removes and returns tasks that have not started yet.
// In-flight and completed work is unaffected.
func (e *Engine) CancelPending() []Task {
	var dropped []Task
	for {
		select {
		case t := <-e.tasks:
			e.queueSize.Dec()
			dropped = append(dropped, t)
		default:
			e.queueGauge.Update(float64(e.queueSize.Load()))
			return dropped
		}
	}
}

// Stop requests a graceful stop: the worker drains the queue, then exits.
// Stop blocks until the worker has exited. Safe to call twice.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		<-e.doneCh
		return
	}
	e.stopped = true
	wasStarted := e.started
	e.mu.Unlock()

	close(e.stopCh)
	if wasStarted {
		<-e.doneCh
	} else {
		close(e.doneCh)
	}
	e.log.Debug("engine stopped")
}

func (e *Engine) worker() {
	close(e.readyCh)
	defer close(e.doneCh)

	for {
		select {
		case t := <-e.tasks:
			e.runTask(t)
		case <-e.stopCh:
			// Drain: no queued task is silently dropped.
			for {
				select {
				case t := <-e.tasks:
					e.runTask(t)
				default:
					return
				}
			}
		}
	}
}

// runTask executes one task under the device lock and records its
// completion. Failures, including panics, become error completions; the
// worker loop never dies with a task.
func (e *Engine) runTask(t Task) {
	e.queueSize.Dec()
	e.queueGauge.Update(float64(e.queueSize.Load()))

	var value uint64
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("task %d panicked: %v", t.ID(), r)
			}
		}()
		if e.lock != nil {
			if lockErr := e.lock.Lock(context.Background(), e.lockTag, t.Priority()); lockErr != nil {
				err = errors.Wrapf(lockErr, "task %d could not acquire device", t.ID())
				return
			}
			defer e.lock.Unlock()
		}
		value, err = t.Run(context.Background())
	}()

	e.mu.Lock()
	e.completions = append(e.completions, Completion{TaskID: t.ID(), Value: value, Err: err})
	e.mu.Unlock()
	e.completedCnt.Inc()
	e.completedCtr.Inc(1)
	if err != nil {
		e.failedCtr.Inc(1)
		e.log.WithField("task_id", t.ID()).WithError(err).Warn("task failed")
	}
}
