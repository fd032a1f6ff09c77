package conn

import (
	"sync"

	"github.com/pkg/errors"
)

// QPAllocator hands out queue-pair numbers unique per physical network
// interface. Numbers released by closed connections are reused before
// fresh ones are drawn monotonically from the shell's range, so
// long-running many-peer services do not exhaust the range.
type QPAllocator struct {
	mu    sync.Mutex
	base  uint32
	limit uint32
	next  uint32
	free  []uint32
}

// NewQPAllocator creates an allocator over [base, base+count)
func NewQPAllocator(base, count uint32) *QPAllocator {
	return &QPAllocator{
		base:  base,
		limit: base + count,
		next:  base,
	}
}

// Alloc returns the next queue-pair number
func (a *QPAllocator) Alloc() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		qpn := a.free[n-1]
		a.free = a.free[:n-1]
		return qpn, nil
	}
	if a.next < a.limit {
		qpn := a.next
		a.next++
		return qpn, nil
	}
	return 0, ErrQPExhausted
}

// Release returns a queue-pair number for reuse
func (a *QPAllocator) Release(qpn uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if qpn < a.base || qpn >= a.limit {
		return errors.Errorf("queue pair 0x%x outside range [0x%x, 0x%x)", qpn, a.base, a.limit)
	}
	a.free = append(a.free, qpn)
	return nil
}

// InUse returns the number of outstanding queue-pair numbers
func (a *QPAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.next-a.base) - len(a.free)
}
