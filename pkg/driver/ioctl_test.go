package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIocEncoding(t *testing.T) {
	// _IOC(dir, type, nr, size) layout: dir:2 | size:14 | type:8 | nr:8
	cmd := Ioc(IocWrite, 'f', 3, 24)
	assert.Equal(t, uint32(1)<<IocDirShift|uint32(24)<<IocSizeShift|
		uint32('f')<<IocTypeShift|uint32(3), cmd)
}

func TestIoctlCommandCodesAreDistinct(t *testing.T) {
	codes := []uint32{
		ioctlRegisterCtx,
		ioctlUnregisterCtx,
		ioctlMapUserMem,
		ioctlUnmapUserMem,
		ioctlReadShellConfig,
		ioctlGetEventFd,
	}
	seen := make(map[uint32]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate ioctl code 0x%08x", code)
		seen[code] = true
	}
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/vfpga_0", DevicePath(0))
	assert.Equal(t, "/dev/vfpga_15", DevicePath(15))
}

func TestOpenNonExistentDevice(t *testing.T) {
	_, err := OpenDevice("/dev/vfpga_nonexistent_device_12345")
	require.Error(t, err)

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, StatusNotFound, devErr.Status)
}

func TestCloseIsIdempotent(t *testing.T) {
	d := &DeviceFile{fd: -1, path: "/dev/vfpga_0"}
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
	assert.Equal(t, -1, d.Fd())
}
