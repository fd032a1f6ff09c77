package driver

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RegisterIO is the raw register access contract. The mmapped config
// window implements it for real hardware; tests substitute a fake.
type RegisterIO interface {
	ReadReg(offset uint64) (uint64, error)
	WriteReg(offset uint64, value uint64) error
}

// MappedWindow is one mmapped register window of a region chardev
type MappedWindow struct {
	data []byte
}

// MapWindow maps one window of the device at the given mmap offset
func (d *DeviceFile) MapWindow(offset int64, size int) (*MappedWindow, error) {
	data, err := unix.Mmap(d.fd, offset, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "mmap window")
		}
		return nil, NewErrorWithCause(StatusDriverOperationFailed, "mmap window", err)
	}
	return &MappedWindow{data: data}, nil
}

// MapCtrlWindow maps the user-logic control window
func (d *DeviceFile) MapCtrlWindow() (*MappedWindow, error) {
	return d.MapWindow(MmapOffsetCtrl, CtrlRegionSize)
}

// MapCnfgWindow maps the shell config/DMA window
func (d *DeviceFile) MapCnfgWindow() (*MappedWindow, error) {
	return d.MapWindow(MmapOffsetCnfg, CnfgRegionSize)
}

// MapWritebackWindow maps the completion writeback window
func (d *DeviceFile) MapWritebackWindow() (*MappedWindow, error) {
	return d.MapWindow(MmapOffsetWriteback, WritebackRegionSize)
}

// Size returns the window size in bytes
func (w *MappedWindow) Size() int {
	return len(w.data)
}

// ReadReg reads a 64-bit register at the given byte offset
func (w *MappedWindow) ReadReg(offset uint64) (uint64, error) {
	// offset+8 would wrap near the top of the range, so compare the
	// other way around.
	if offset%8 != 0 || len(w.data) < 8 || offset > uint64(len(w.data))-8 {
		return 0, NewError(StatusInvalidArgument, "register read out of window")
	}
	ptr := (*uint64)(unsafe.Pointer(&w.data[offset]))
	return atomic.LoadUint64(ptr), nil
}

// WriteReg writes a 64-bit register at the given byte offset
func (w *MappedWindow) WriteReg(offset uint64, value uint64) error {
	if offset%8 != 0 || len(w.data) < 8 || offset > uint64(len(w.data))-8 {
		return NewError(StatusInvalidArgument, "register write out of window")
	}
	ptr := (*uint64)(unsafe.Pointer(&w.data[offset]))
	atomic.StoreUint64(ptr, value)
	return nil
}

// ReadWriteback reads the 32-bit completion counter at the given index
func (w *MappedWindow) ReadWriteback(idx int) (uint32, error) {
	// idx*4 would overflow for large idx; bound idx itself instead.
	if idx < 0 || len(w.data) < 4 || idx > (len(w.data)-4)/4 {
		return 0, NewError(StatusInvalidArgument, "writeback read out of window")
	}
	ptr := (*uint32)(unsafe.Pointer(&w.data[idx*4]))
	return atomic.LoadUint32(ptr), nil
}

// Unmap releases the window mapping
func (w *MappedWindow) Unmap() error {
	if w.data == nil {
		return nil
	}
	err := unix.Munmap(w.data)
	w.data = nil
	if err != nil {
		return NewErrorWithCause(StatusDriverOperationFailed, "munmap window", err)
	}
	return nil
}
