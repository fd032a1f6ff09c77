package bitstream

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"os"
)

// Parse parses a bitstream image from a file path
func Parse(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses a bitstream image from raw bytes
func ParseBytes(data []byte) (*Image, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	headerSize, err := HeaderSize(header.Version)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize {
		return nil, ErrTruncatedHeader
	}

	payloadEnd := headerSize + int(header.PayloadSize)
	if payloadEnd > len(data) {
		return nil, fmt.Errorf("%w: payload exceeds file size", ErrTruncatedData)
	}
	payload := data[headerSize:payloadEnd]

	if sum := md5.Sum(payload); sum != header.ExpectedMD5 {
		return nil, ErrInvalidChecksum
	}

	img := &Image{
		Version: header.Version,
		Flags:   header.Flags,
	}

	off := 0
	for i := uint32(0); i < header.SectionCount; i++ {
		section, n, err := parseSection(payload[off:])
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		img.Sections = append(img.Sections, section)
		off += n
	}

	return img, nil
}

// parseSection decodes one section header and its data, returning the
// number of payload bytes consumed.
func parseSection(data []byte) (Section, int, error) {
	if len(data) < SectionHeaderSize {
		return Section{}, 0, ErrTruncatedData
	}

	length := binary.LittleEndian.Uint32(data[12:16])
	end := SectionHeaderSize + int(length)
	if end > len(data) {
		return Section{}, 0, ErrTruncatedData
	}

	return Section{
		Type:         SectionType(binary.LittleEndian.Uint32(data[0:4])),
		TargetRegion: binary.LittleEndian.Uint32(data[4:8]),
		LoadOffset:   binary.LittleEndian.Uint32(data[8:12]),
		Data:         data[SectionHeaderSize:end],
	}, end, nil
}

// LoadableSections returns the sections that program hardware, in image
// order. Metadata sections are skipped.
func (img *Image) LoadableSections() []Section {
	var out []Section
	for _, s := range img.Sections {
		if s.Type == SectionMetadata {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SectionForRegion returns the first loadable section targeting a region
func (img *Image) SectionForRegion(region uint32) (*Section, error) {
	for i := range img.Sections {
		s := &img.Sections[i]
		if s.Type != SectionMetadata && s.TargetRegion == region {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no section targets region %d", region)
}
