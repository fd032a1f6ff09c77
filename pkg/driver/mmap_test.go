package driver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(size int) *MappedWindow {
	return &MappedWindow{data: make([]byte, size)}
}

func TestWindowRegisterRoundTrip(t *testing.T) {
	w := testWindow(4096)

	require.NoError(t, w.WriteReg(0x10, 0xDEADBEEF))
	v, err := w.ReadReg(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), v)
}

func TestWindowRejectsOutOfRangeOffsets(t *testing.T) {
	w := testWindow(4096)
	invalid := NewError(StatusInvalidArgument, "")

	offsets := []uint64{
		4096,           // first out-of-window register
		4224,           // well past the end
		^uint64(0) - 7, // aligned, but offset+8 wraps to 0
		math.MaxUint64, // wraps and unaligned
	}
	for _, off := range offsets {
		_, err := w.ReadReg(off)
		assert.True(t, errors.Is(err, invalid), "ReadReg(%#x) = %v", off, err)
		err = w.WriteReg(off, 1)
		assert.True(t, errors.Is(err, invalid), "WriteReg(%#x) = %v", off, err)
	}
}

func TestWindowRejectsUnalignedOffsets(t *testing.T) {
	w := testWindow(4096)
	invalid := NewError(StatusInvalidArgument, "")

	_, err := w.ReadReg(0x0C)
	assert.True(t, errors.Is(err, invalid))
	assert.True(t, errors.Is(w.WriteReg(0x04, 1), invalid))
}

func TestWindowRejectsEmptyWindow(t *testing.T) {
	w := testWindow(0)
	invalid := NewError(StatusInvalidArgument, "")

	_, err := w.ReadReg(0)
	assert.True(t, errors.Is(err, invalid))
	assert.True(t, errors.Is(w.WriteReg(0, 1), invalid))
	_, err = w.ReadWriteback(0)
	assert.True(t, errors.Is(err, invalid))
}

func TestReadWritebackBounds(t *testing.T) {
	w := testWindow(16)
	invalid := NewError(StatusInvalidArgument, "")

	_, err := w.ReadWriteback(3)
	assert.NoError(t, err)

	for _, idx := range []int{-1, 4, math.MaxInt} {
		_, err := w.ReadWriteback(idx)
		assert.True(t, errors.Is(err, invalid), "ReadWriteback(%d) = %v", idx, err)
	}
}
