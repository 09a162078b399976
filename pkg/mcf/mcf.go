// Package mcf implements the Model Container File format.
//
// An MCF file is a single little-endian container holding a fixed header, a
// set of 8-byte aligned sections and a section directory. It describes
// structure and data only and never implies runtime behaviour: each section
// carries its own payload version, which consumers compare against the
// schema they understand.
package mcf

import "encoding/binary"

// MCF global constants must never change.
const (
	// MagicMCF is the file magic for all MCF containers, encoded as "MCF\0".
	MagicMCF = "MCF\x00"

	// CurrentMajor changes only with a breaking container layout change.
	CurrentMajor uint16 = 1

	// CurrentMinor may add optional sections or fields.
	CurrentMinor uint16 = 0

	mcfHeaderSize  = 40
	mcfSectionSize = 24
	mcfAlign       = 8
)

type SectionType uint32

const (
	// SectionGraph holds the model graph description (JSON).
	SectionGraph SectionType = 0x0001
	// SectionTensorData holds raw weight payloads referenced by the graph.
	SectionTensorData SectionType = 0x0004
)

func (t SectionType) String() string {
	switch t {
	case SectionGraph:
		return "graph"
	case SectionTensorData:
		return "tensor_data"
	default:
		return "unknown"
	}
}

type MCFHeader struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

func (h *MCFHeader) Valid() bool {
	if string(h.Magic[:]) != MagicMCF {
		return false
	}
	return h.HeaderSize >= mcfHeaderSize
}

func (h *MCFHeader) Compatible() bool {
	return h.Major == CurrentMajor
}

type MCFSection struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

func (s MCFSection) End() uint64 {
	return s.Offset + s.Size
}

func encodeHeader(dst []byte, h MCFHeader) bool {
	if len(dst) < mcfHeaderSize {
		return false
	}
	le := binary.LittleEndian
	copy(dst[0:4], h.Magic[:])
	le.PutUint16(dst[4:6], h.Major)
	le.PutUint16(dst[6:8], h.Minor)
	le.PutUint32(dst[8:12], h.HeaderSize)
	le.PutUint32(dst[12:16], h.SectionCount)
	le.PutUint64(dst[16:24], h.SectionDirOffset)
	le.PutUint64(dst[24:32], h.FileSize)
	le.PutUint64(dst[32:40], h.Flags)
	return true
}

func decodeHeader(src []byte) (MCFHeader, bool) {
	var h MCFHeader
	if len(src) < mcfHeaderSize {
		return h, false
	}
	le := binary.LittleEndian
	copy(h.Magic[:], src[0:4])
	h.Major = le.Uint16(src[4:6])
	h.Minor = le.Uint16(src[6:8])
	h.HeaderSize = le.Uint32(src[8:12])
	h.SectionCount = le.Uint32(src[12:16])
	h.SectionDirOffset = le.Uint64(src[16:24])
	h.FileSize = le.Uint64(src[24:32])
	h.Flags = le.Uint64(src[32:40])
	return h, true
}

func encodeSection(dst []byte, s MCFSection) bool {
	if len(dst) < mcfSectionSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(dst[0:4], s.Type)
	le.PutUint32(dst[4:8], s.Version)
	le.PutUint64(dst[8:16], s.Offset)
	le.PutUint64(dst[16:24], s.Size)
	return true
}

func decodeSection(src []byte) (MCFSection, bool) {
	var s MCFSection
	if len(src) < mcfSectionSize {
		return s, false
	}
	le := binary.LittleEndian
	s.Type = le.Uint32(src[0:4])
	s.Version = le.Uint32(src[4:8])
	s.Offset = le.Uint64(src[8:16])
	s.Size = le.Uint64(src[16:24])
	return s, true
}

func rangesOverlap(a0, a1, b0, b1 uint64) bool {
	// half-open ranges [a0,a1) and [b0,b1)
	return a0 < b1 && b0 < a1
}

func alignUp(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}
