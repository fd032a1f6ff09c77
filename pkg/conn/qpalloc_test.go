package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQPAllocatorMonotonic(t *testing.T) {
	a := NewQPAllocator(0x100, 4)
	for i := uint32(0); i < 4; i++ {
		qpn, err := a.Alloc()
		require.NoError(t, err)
		assert.Equal(t, 0x100+i, qpn)
	}
	_, err := a.Alloc()
	assert.ErrorIs(t, err, ErrQPExhausted)
}

func TestQPAllocatorReclaim(t *testing.T) {
	a := NewQPAllocator(0x100, 2)
	first, err := a.Alloc()
	require.NoError(t, err)
	_, err = a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 2, a.InUse())

	require.NoError(t, a.Release(first))
	assert.Equal(t, 1, a.InUse())

	again, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, first, again, "released numbers are reused")
}

func TestQPAllocatorReleaseOutOfRange(t *testing.T) {
	a := NewQPAllocator(0x100, 2)
	assert.Error(t, a.Release(0x50))
	assert.Error(t, a.Release(0x200))
}
