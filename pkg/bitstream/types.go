// Package bitstream parses and loads partial bitstream images for vFPGA
// application regions. An image carries one or more sections, each
// targeting a shell region, with an MD5 digest guarding the payload.
package bitstream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Image file format constants
const (
	ImageMagic = 0x01564249 // "IBV\x01" in little-endian

	ImageHeaderSizeV1 = 40
	ImageHeaderSizeV2 = 48

	ImageVersionV1 = 1
	ImageVersionV2 = 2

	SectionHeaderSize = 16
)

// Errors
var (
	ErrInvalidMagic       = errors.New("invalid image magic number")
	ErrUnsupportedVersion = errors.New("unsupported image version")
	ErrTruncatedHeader    = errors.New("truncated image header")
	ErrInvalidChecksum    = errors.New("invalid image checksum")
	ErrTruncatedData      = errors.New("truncated image data")
)

// SectionType classifies what a section programs
type SectionType uint32

const (
	SectionConfig   SectionType = 1 // region configuration frames
	SectionDatapath SectionType = 2 // datapath bitstream
	SectionMetadata SectionType = 3 // build metadata, not loaded
)

func (s SectionType) String() string {
	switch s {
	case SectionConfig:
		return "config"
	case SectionDatapath:
		return "datapath"
	case SectionMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Header represents the common image header fields
type Header struct {
	Magic        uint32
	Version      uint32
	Flags        uint32
	SectionCount uint32
	PayloadSize  uint32
	ExpectedMD5  [16]byte
}

// HeaderV2 extends Header with V2-specific fields
type HeaderV2 struct {
	Header
	ShellVersion uint32
	Reserved     uint32
}

// Section is one loadable region of the image
type Section struct {
	Type         SectionType
	TargetRegion uint32
	LoadOffset   uint32
	Data         []byte
}

// Image is a parsed bitstream image
type Image struct {
	Version  uint32
	Flags    uint32
	Sections []Section
}

// ParseHeader parses the common header fields from raw bytes
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < ImageHeaderSizeV1 {
		return nil, ErrTruncatedHeader
	}

	header := &Header{
		Magic:        binary.LittleEndian.Uint32(data[0:4]),
		Version:      binary.LittleEndian.Uint32(data[4:8]),
		Flags:        binary.LittleEndian.Uint32(data[8:12]),
		SectionCount: binary.LittleEndian.Uint32(data[12:16]),
		PayloadSize:  binary.LittleEndian.Uint32(data[16:20]),
	}
	copy(header.ExpectedMD5[:], data[24:40])

	if header.Magic != ImageMagic {
		return nil, fmt.Errorf("%w: got 0x%08X, expected 0x%08X", ErrInvalidMagic, header.Magic, ImageMagic)
	}

	return header, nil
}

// HeaderSize returns the header size for a given image version
func HeaderSize(version uint32) (int, error) {
	switch version {
	case ImageVersionV1:
		return ImageHeaderSizeV1, nil
	case ImageVersionV2:
		return ImageHeaderSizeV2, nil
	default:
		return 0, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
}
