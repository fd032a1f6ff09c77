package driver

// IOCTL magic value - must match the fpga chardev driver
const (
	VfpgaIoctlMagic = 'f' // 0x66
)

// Driver version - must match installed driver
const (
	VfpgaDrvVerMajor    = 2
	VfpgaDrvVerMinor    = 1
	VfpgaDrvVerRevision = 0
)

// Shell limits
const (
	MaxVfpgaRegions  = 16
	MaxDmaChannels   = 4
	MaxQueuePairs    = 256
	MaxConnNameSize  = 64
	WritebackEntries = 2 * MaxDmaChannels
)

// Page sizes for buffer allocation
const (
	PageSize     = 4 * 1024
	HugePageSize = 2 * 1024 * 1024
)

// CompletionChannel selects which writeback counter an operation reports to
type CompletionChannel uint32

const (
	ChannelHostRead  CompletionChannel = 0
	ChannelHostWrite CompletionChannel = 1
	ChannelRdmaRead  CompletionChannel = 2
	ChannelRdmaWrite CompletionChannel = 3
)

// OpCode represents a control-path operation issued through the config window
type OpCode uint32

const (
	OpNop         OpCode = 0
	OpLocalRead   OpCode = 1
	OpLocalWrite  OpCode = 2
	OpTransfer    OpCode = 3
	OpRemoteRead  OpCode = 4
	OpRemoteWrite OpCode = 5
)

// Mmap window offsets into the chardev, one window per region.
// Byte layout inside each window is hardware-defined.
const (
	MmapOffsetCtrl      = 0x0
	MmapOffsetCnfg      = 0x100000
	MmapOffsetWriteback = 0x200000

	CtrlRegionSize      = 64 * 1024
	CnfgRegionSize      = 64 * 1024
	WritebackRegionSize = PageSize
)

// Config window register byte offsets (64-bit registers)
const (
	RegCtrl  = 0x00 // opcode | start bit
	RegVaddr = 0x08 // local buffer virtual address
	RegLen   = 0x10 // transfer length
	RegDest  = 0x18 // destination region / channel select
	RegPid   = 0x20 // owning context id
	RegStat  = 0x28 // completion status snapshot

	RegConnQpn  = 0x80 // queue-pair number for the selected endpoint slot
	RegConnAddr = 0x88 // endpoint buffer address
	RegConnLen  = 0x90 // endpoint buffer length
	RegConnCtl  = 0x98 // endpoint enable / teardown

	RegReconfAddr = 0xA0 // staging buffer address for partial reconfiguration
	RegReconfLen  = 0xA8 // staged bitstream length
	RegReconfCtl  = 0xB0 // start bit | target region
	RegReconfStat = 0xB8 // reconfiguration status
)

// RegCtrl bit fields
const (
	CtrlStart    = 1 << 0
	CtrlClear    = 1 << 1
	CtrlOpShift  = 8
	CtrlDstShift = 16
)

// RegReconfCtl / RegReconfStat bit fields
const (
	ReconfStart       = 1 << 0
	ReconfRegionShift = 8
	ReconfOffsetShift = 32

	ReconfStatDone  = 1 << 0
	ReconfStatError = 1 << 1
)

// IOCTL command numbers
const (
	IoctlRegisterCtx     = 1
	IoctlUnregisterCtx   = 2
	IoctlMapUserMem      = 3
	IoctlUnmapUserMem    = 4
	IoctlReadShellConfig = 5
	IoctlGetEventFd      = 6
)

// IOCTL direction flags for the _IOC macro
const (
	IocNone  = 0
	IocWrite = 1
	IocRead  = 2
)

// IOCTL size/direction encoding constants
const (
	IocNrBits   = 8
	IocTypeBits = 8
	IocSizeBits = 14
	IocDirBits  = 2

	IocNrShift   = 0
	IocTypeShift = IocNrShift + IocNrBits
	IocSizeShift = IocTypeShift + IocTypeBits
	IocDirShift  = IocSizeShift + IocSizeBits
)

// Ioc creates an IOCTL command number
func Ioc(dir, iocType, nr, size int) uint32 {
	return uint32((dir << IocDirShift) |
		(iocType << IocTypeShift) |
		(nr << IocNrShift) |
		(size << IocSizeShift))
}

// IoW creates a write IOCTL (data flows from user to kernel)
func IoW(iocType, nr, size int) uint32 {
	return Ioc(IocWrite, iocType, nr, size)
}

// IoR creates a read IOCTL (data flows from kernel to user)
func IoR(iocType, nr, size int) uint32 {
	return Ioc(IocRead, iocType, nr, size)
}

// IoWR creates a read-write IOCTL
func IoWR(iocType, nr, size int) uint32 {
	return Ioc(IocRead|IocWrite, iocType, nr, size)
}

// Io creates an IOCTL with no data transfer
func Io(iocType, nr int) uint32 {
	return Ioc(IocNone, iocType, nr, 0)
}
