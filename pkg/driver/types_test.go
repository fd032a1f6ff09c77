package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Struct sizes must match the C structs the driver expects. A mismatch
// here means a silently corrupt ioctl on real hardware.
func TestStructSizes(t *testing.T) {
	assert.Equal(t, 8, SizeOfRegisterCtxParams)
	assert.Equal(t, 8, SizeOfUnregisterCtxParams)
	assert.Equal(t, 24, SizeOfMapUserMemParams)
	assert.Equal(t, 16, SizeOfUnmapUserMemParams)
	assert.Equal(t, 8, SizeOfEventFdParams)
	assert.Equal(t, 32, SizeOfShellConfig)
}

func TestWritebackWindowHoldsAllChannels(t *testing.T) {
	assert.LessOrEqual(t, WritebackEntries*4, WritebackRegionSize)
}
