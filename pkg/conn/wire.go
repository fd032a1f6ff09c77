package conn

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Out-of-band handshake frames. Fixed size, exchanged only during
// connection setup and sync, never on the data path.

const (
	frameMagic = 0xF1D0

	frameHello = 1
	frameSync  = 2

	// magic(2) + type(1) + flags(1) + qpn(4) + bufferAddr(8) +
	// bufferLen(4) + token(4)
	frameSize = 24
)

// frame is one handshake message
type frame struct {
	Type       uint8
	Flags      uint8
	Qpn        uint32
	BufferAddr uint64
	BufferLen  uint32
	Token      uint32
}

func (f *frame) encode() [frameSize]byte {
	var buf [frameSize]byte
	binary.BigEndian.PutUint16(buf[0:2], frameMagic)
	buf[2] = f.Type
	buf[3] = f.Flags
	binary.BigEndian.PutUint32(buf[4:8], f.Qpn)
	binary.BigEndian.PutUint64(buf[8:16], f.BufferAddr)
	binary.BigEndian.PutUint32(buf[16:20], f.BufferLen)
	binary.BigEndian.PutUint32(buf[20:24], f.Token)
	return buf
}

func writeFrame(w io.Writer, f frame) error {
	buf := f.encode()
	_, err := w.Write(buf[:])
	return err
}

func readFrame(r io.Reader) (frame, error) {
	var buf [frameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return frame{}, err
	}
	if binary.BigEndian.Uint16(buf[0:2]) != frameMagic {
		return frame{}, errors.New("bad handshake magic")
	}
	return frame{
		Type:       buf[2],
		Flags:      buf[3],
		Qpn:        binary.BigEndian.Uint32(buf[4:8]),
		BufferAddr: binary.BigEndian.Uint64(buf[8:16]),
		BufferLen:  binary.BigEndian.Uint32(buf[16:20]),
		Token:      binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}
