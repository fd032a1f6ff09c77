package driver

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceFile represents an open vFPGA region chardev
type DeviceFile struct {
	fd   int
	path string
}

// OpenDevice opens a vFPGA region by chardev path
func OpenDevice(path string) (*DeviceFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "opening device "+path)
		}
		return nil, NewErrorWithCause(StatusDriverOperationFailed, "opening device "+path, err)
	}
	return &DeviceFile{fd: fd, path: path}, nil
}

// Close closes the device file
func (d *DeviceFile) Close() error {
	if d.fd >= 0 {
		err := unix.Close(d.fd)
		d.fd = -1
		if err != nil {
			return NewErrorWithCause(StatusDriverOperationFailed, "closing device", err)
		}
	}
	return nil
}

// Fd returns the file descriptor
func (d *DeviceFile) Fd() int {
	return d.fd
}

// Path returns the device path
func (d *DeviceFile) Path() string {
	return d.path
}

// ioctl performs an ioctl syscall
func (d *DeviceFile) ioctl(cmd uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return StatusFromErrno(errno, "ioctl")
	}
	return nil
}

// IOCTL command codes (calculated from type and size)
var (
	ioctlRegisterCtx     = IoWR(int(VfpgaIoctlMagic), IoctlRegisterCtx, SizeOfRegisterCtxParams)
	ioctlUnregisterCtx   = IoW(int(VfpgaIoctlMagic), IoctlUnregisterCtx, SizeOfUnregisterCtxParams)
	ioctlMapUserMem      = IoW(int(VfpgaIoctlMagic), IoctlMapUserMem, SizeOfMapUserMemParams)
	ioctlUnmapUserMem    = IoW(int(VfpgaIoctlMagic), IoctlUnmapUserMem, SizeOfUnmapUserMemParams)
	ioctlReadShellConfig = IoR(int(VfpgaIoctlMagic), IoctlReadShellConfig, SizeOfShellConfig)
	ioctlGetEventFd      = IoWR(int(VfpgaIoctlMagic), IoctlGetEventFd, SizeOfEventFdParams)
)

// RegisterCtx registers the calling process with the region and returns
// the hardware context id the shell assigned to it
func (d *DeviceFile) RegisterCtx(pid uint32) (uint32, error) {
	params := RegisterCtxParams{Pid: pid}
	err := d.ioctl(ioctlRegisterCtx, unsafe.Pointer(&params))
	if err != nil {
		return 0, err
	}
	return params.CtxID, nil
}

// UnregisterCtx releases a hardware context id
func (d *DeviceFile) UnregisterCtx(ctxID uint32) error {
	params := UnregisterCtxParams{CtxID: ctxID}
	return d.ioctl(ioctlUnregisterCtx, unsafe.Pointer(&params))
}

// MapUserMem attaches a user buffer to the region's TLB for DMA
func (d *DeviceFile) MapUserMem(vaddr uintptr, size uint64, ctxID uint32, hugePage bool) error {
	params := MapUserMemParams{
		Vaddr:    vaddr,
		Size:     size,
		CtxID:    ctxID,
		HugePage: hugePage,
	}
	return d.ioctl(ioctlMapUserMem, unsafe.Pointer(&params))
}

// UnmapUserMem detaches a previously attached user buffer
func (d *DeviceFile) UnmapUserMem(vaddr uintptr, ctxID uint32) error {
	params := UnmapUserMemParams{
		Vaddr: vaddr,
		CtxID: ctxID,
	}
	return d.ioctl(ioctlUnmapUserMem, unsafe.Pointer(&params))
}

// ReadShellConfig queries the static shell configuration
func (d *DeviceFile) ReadShellConfig() (*ShellConfig, error) {
	var cfg ShellConfig
	err := d.ioctl(ioctlReadShellConfig, unsafe.Pointer(&cfg))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetEventFd returns an event descriptor signalled on region interrupts
func (d *DeviceFile) GetEventFd(ctxID uint32) (int, error) {
	params := EventFdParams{CtxID: ctxID}
	err := d.ioctl(ioctlGetEventFd, unsafe.Pointer(&params))
	if err != nil {
		return -1, err
	}
	return int(params.Fd), nil
}

// DevicePath returns the chardev path for a region index
func DevicePath(region int) string {
	return fmt.Sprintf("/dev/vfpga_%d", region)
}

// ScanDevices scans for available vFPGA region chardevs
func ScanDevices() ([]string, error) {
	var devices []string
	for i := 0; i < MaxVfpgaRegions; i++ {
		path := DevicePath(i)
		if _, err := os.Stat(path); err == nil {
			devices = append(devices, path)
		}
	}
	return devices, nil
}
