package conn

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	out := frame{
		Type:       frameHello,
		Qpn:        0x123,
		BufferAddr: 0xDEAD0000,
		BufferLen:  4096,
		Token:      7,
	}
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, out))
	assert.Equal(t, frameSize, buf.Len())

	in, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, out, in)
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	raw := make([]byte, frameSize)
	raw[0], raw[1] = 0xBA, 0xAD
	_, err := readFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestReadFrameShortInput(t *testing.T) {
	_, err := readFrame(bytes.NewReader([]byte{0xF1, 0xD0, 1}))
	assert.Error(t, err)
}
