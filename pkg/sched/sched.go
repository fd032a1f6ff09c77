// Package sched arbitrates exclusive, priority-ordered access to one
// physical vFPGA's control/DMA path across competing execution engines,
// possibly living in different processes.
package sched

import (
	"context"
	"errors"
	"time"

	"github.com/uber-go/tally"
)

// DefaultLockTimeout bounds how long a Lock call may wait before failing
const DefaultLockTimeout = 30 * time.Second

// Errors for lock arbitration
var (
	ErrLockTimeout     = errors.New("device lock wait timed out")
	ErrLockUnavailable = errors.New("device lock unavailable")
	ErrNotHeld         = errors.New("device lock not held by caller")
)

// DeviceLock grants mutually exclusive access to one device. Lock blocks
// until the caller is the sole holder, subject to the configured timeout;
// a canceled context surfaces as ctx.Err(), never as ErrLockTimeout.
//
// Implementations must arbitrate waiters by priority (higher wins), with
// FIFO order among equal priorities so no waiter starves.
type DeviceLock interface {
	Lock(ctx context.Context, tag string, priority uint8) error
	Unlock() error
}

// Options tune a lock's wait bound and metrics
type Options struct {
	Timeout time.Duration
	Scope   tally.Scope
}

// Option mutates lock Options
type Option func(*Options)

// WithTimeout overrides the default lock wait bound
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithScope attaches a metrics scope
func WithScope(s tally.Scope) Option {
	return func(o *Options) { o.Scope = s }
}

func buildOptions(opts []Option) Options {
	o := Options{
		Timeout: DefaultLockTimeout,
		Scope:   tally.NoopScope,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
