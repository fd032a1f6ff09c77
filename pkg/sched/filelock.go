package sched

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/uber-go/tally"
	"golang.org/x/sys/unix"
)

// flockRetryInterval paces the non-blocking flock loop while another
// process holds the device.
const flockRetryInterval = 5 * time.Millisecond

// FileLock arbitrates across processes sharing one physical device. Local
// waiters are ordered by priority first; the local winner then contends
// for an OS-visible flock on a per-device lock file, so two processes can
// never both hold the device.
type FileLock struct {
	arb     *arbiter
	path    string
	file    *os.File
	timeout time.Duration
	scope   tally.Scope
}

// NewFileLock creates (or attaches to) the lock file for a device id
func NewFileLock(lockDir, deviceID string, opts ...Option) (*FileLock, error) {
	o := buildOptions(opts)
	path := filepath.Join(lockDir, "vfpga_"+deviceID+".lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrap(ErrLockUnavailable, err.Error())
	}
	return &FileLock{
		arb:     newArbiter(),
		path:    path,
		file:    file,
		timeout: o.Timeout,
		scope:   o.Scope,
	}, nil
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.path
}

// Lock blocks until this caller holds both the local arbitration slot and
// the cross-process flock.
func (l *FileLock) Lock(ctx context.Context, tag string, priority uint8) error {
	deadline := time.Now().Add(l.timeout)

	sw := l.scope.Timer("lock_wait").Start()
	defer sw.Stop()

	if err := l.arb.acquire(ctx, tag, priority, l.timeout); err != nil {
		l.scope.Counter("lock_failures").Inc(1)
		return err
	}

	// Sole local contender from here on; poll the OS lock until the
	// remaining budget runs out.
	for {
		err := unix.Flock(int(l.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.scope.Counter("lock_acquisitions").Inc(1)
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			l.arb.release()
			l.scope.Counter("lock_failures").Inc(1)
			return errors.Wrap(ErrLockUnavailable, err.Error())
		}
		if time.Now().After(deadline) {
			l.arb.release()
			l.scope.Counter("lock_timeouts").Inc(1)
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			l.arb.release()
			return ctx.Err()
		case <-time.After(flockRetryInterval):
		}
	}
}

// Unlock drops the flock and wakes the next local waiter
func (l *FileLock) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrap(ErrLockUnavailable, err.Error())
	}
	return l.arb.release()
}

// Close releases the lock file descriptor
func (l *FileLock) Close() error {
	return l.file.Close()
}

// Process-wide lock instances, one per lock file, so every engine
// contending for a device shares the same local arbiter.
var (
	locksMu sync.Mutex
	locks   = make(map[string]*FileLock)
)

// ForDevice returns the process-wide FileLock for a device id, creating
// it on first use.
func ForDevice(lockDir, deviceID string, opts ...Option) (*FileLock, error) {
	key := filepath.Join(lockDir, deviceID)
	locksMu.Lock()
	defer locksMu.Unlock()
	if l, ok := locks[key]; ok {
		return l, nil
	}
	l, err := NewFileLock(lockDir, deviceID, opts...)
	if err != nil {
		return nil, err
	}
	locks[key] = l
	return l, nil
}
