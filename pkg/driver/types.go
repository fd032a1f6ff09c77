package driver

import "unsafe"

// RegisterCtxParams matches struct vfpga_register_ctx_params
type RegisterCtxParams struct {
	Pid   uint32
	CtxID uint32 // output
}

// UnregisterCtxParams matches struct vfpga_unregister_ctx_params
type UnregisterCtxParams struct {
	CtxID uint32
	_     [4]byte // padding
}

// MapUserMemParams matches struct vfpga_map_user_mem_params
type MapUserMemParams struct {
	Vaddr    uintptr
	Size     uint64
	CtxID    uint32
	HugePage bool
	_        [3]byte // padding
}

// UnmapUserMemParams matches struct vfpga_unmap_user_mem_params
type UnmapUserMemParams struct {
	Vaddr uintptr
	CtxID uint32
	_     [4]byte // padding
}

// ShellConfig matches struct vfpga_shell_config, reported by the static shell
type ShellConfig struct {
	NRegions      uint32
	NDmaChannels  uint32
	QpnBase       uint32
	QpnRange      uint32
	NodeID        uint32
	EnableRdma    bool
	EnableAvx     bool
	EnableWb      bool
	_             [1]byte // padding
	WritebackSize uint64
}

// EventFdParams matches struct vfpga_event_fd_params
type EventFdParams struct {
	CtxID uint32
	Fd    int32 // output
}

// DriverInfo matches struct vfpga_driver_info
type DriverInfo struct {
	MajorVersion    uint32
	MinorVersion    uint32
	RevisionVersion uint32
}

// Struct sizes for ioctl command encoding
var (
	SizeOfRegisterCtxParams   = int(unsafe.Sizeof(RegisterCtxParams{}))
	SizeOfUnregisterCtxParams = int(unsafe.Sizeof(UnregisterCtxParams{}))
	SizeOfMapUserMemParams    = int(unsafe.Sizeof(MapUserMemParams{}))
	SizeOfUnmapUserMemParams  = int(unsafe.Sizeof(UnmapUserMemParams{}))
	SizeOfEventFdParams       = int(unsafe.Sizeof(EventFdParams{}))
	SizeOfShellConfig         = int(unsafe.Sizeof(ShellConfig{}))
)
