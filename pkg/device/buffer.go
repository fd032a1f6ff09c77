package device

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/openaccel/vfpga/pkg/driver"
)

// Buffer represents one DMA-capable allocation tracked by a Handle
type Buffer struct {
	data     []byte
	size     uint64
	hugePage bool
	attached bool
}

// Data returns the buffer contents
func (b *Buffer) Data() []byte {
	return b.data
}

// Addr returns the buffer's virtual address
func (b *Buffer) Addr() uintptr {
	if len(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.data[0]))
}

// Size returns the requested buffer size
func (b *Buffer) Size() uint64 {
	return b.size
}

// HugePage reports whether the buffer is backed by huge pages
func (b *Buffer) HugePage() bool {
	return b.hugePage
}

// release detaches and unmaps the buffer. Called with the allocation
// already removed from the handle's map.
func (b *Buffer) release(df *driver.DeviceFile, ctxID uint32) error {
	var err error
	if b.attached {
		err = df.UnmapUserMem(b.Addr(), ctxID)
		b.attached = false
	}
	if len(b.data) > 0 {
		if e := unix.Munmap(b.data); err == nil {
			err = e
		}
		b.data = nil
	}
	return err
}

// AllocBuffer allocates a page-aligned DMA buffer, attaches it to the
// region's TLB and tracks it in the allocation map. Huge-page buffers are
// backed by 2M pages and rounded up accordingly.
func (h *Handle) AllocBuffer(size uint64, hugePage bool) (*Buffer, error) {
	if size == 0 {
		return nil, ErrZeroSizeBuffer
	}

	pageSize := uint64(driver.PageSize)
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if hugePage {
		pageSize = driver.HugePageSize
		flags |= unix.MAP_HUGETLB
	}
	alignedSize := ((size + pageSize - 1) / pageSize) * pageSize

	data, err := unix.Mmap(-1, 0, int(alignedSize),
		unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, errors.Wrap(ErrAllocationFailure, err.Error())
	}

	buf := &Buffer{
		data:     data,
		size:     size,
		hugePage: hugePage,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		unix.Munmap(data)
		return nil, ErrHandleClosed
	}
	if err := h.df.MapUserMem(buf.Addr(), alignedSize, h.ctxID, hugePage); err != nil {
		h.mu.Unlock()
		unix.Munmap(data)
		return nil, errors.Wrap(err, "failed to attach buffer")
	}
	buf.attached = true
	h.allocations[buf.Addr()] = buf
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"addr": buf.Addr(),
		"size": size,
		"huge": hugePage,
	}).Debug("allocated DMA buffer")
	return buf, nil
}

// FreeBuffer releases the allocation at the given address. Freeing an
// address that was never allocated, or freeing twice, is an error.
func (h *Handle) FreeBuffer(addr uintptr) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	buf, ok := h.allocations[addr]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownAllocation
	}
	delete(h.allocations, addr)
	h.mu.Unlock()

	return buf.release(h.df, h.ctxID)
}

// AllocationCount returns the number of live allocations
func (h *Handle) AllocationCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allocations)
}

// Allocations returns a snapshot of the live allocation addresses
func (h *Handle) Allocations() []uintptr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	addrs := make([]uintptr, 0, len(h.allocations))
	for addr := range h.allocations {
		addrs = append(addrs, addr)
	}
	return addrs
}
