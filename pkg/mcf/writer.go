package mcf

import (
	"bytes"
	"errors"
	"io"
	"sort"
)

// Writer assembles an MCF container in memory. Models targeted by this
// format are small enough that buffering the whole file is fine; the
// header is produced last, once every section offset is known.
type Writer struct {
	buf      bytes.Buffer
	sections []MCFSection
	seen     map[SectionType]struct{}
	flags    uint64
	done     bool
}

func NewWriter() *Writer {
	w := &Writer{seen: make(map[SectionType]struct{})}
	w.buf.Write(make([]byte, mcfHeaderSize))
	w.pad(mcfAlign)
	return w
}

// WriteSection appends a section payload. A section type may only be written once.
func (w *Writer) WriteSection(typ SectionType, version uint32, data []byte) error {
	if w.done {
		return errors.New("mcf: writer already finalised")
	}
	if _, ok := w.seen[typ]; ok {
		return errors.New("mcf: duplicate section type")
	}
	w.pad(mcfAlign)
	off := uint64(w.buf.Len())
	w.buf.Write(data)
	w.sections = append(w.sections, MCFSection{
		Type:    uint32(typ),
		Version: version,
		Offset:  off,
		Size:    uint64(len(data)),
	})
	w.seen[typ] = struct{}{}
	return nil
}

func (w *Writer) AddFlags(flags uint64) {
	w.flags |= flags
}

// Bytes finalises the container and returns its encoding.
// After Bytes, further sections are rejected.
func (w *Writer) Bytes() ([]byte, error) {
	if !w.done {
		if err := w.finalise(); err != nil {
			return nil, err
		}
	}
	return w.buf.Bytes(), nil
}

// WriteTo finalises the container and writes it to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	b, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(b)
	return int64(n), err
}

func (w *Writer) finalise() error {
	if len(w.sections) == 0 {
		return errors.New("mcf: no sections written")
	}
	w.done = true

	// Deterministic directory ordering.
	sort.Slice(w.sections, func(i, j int) bool {
		return w.sections[i].Type < w.sections[j].Type
	})

	w.pad(mcfAlign)
	dirOffset := uint64(w.buf.Len())
	var secBuf [mcfSectionSize]byte
	for _, s := range w.sections {
		if !encodeSection(secBuf[:], s) {
			return errors.New("mcf: encode section failed")
		}
		w.buf.Write(secBuf[:])
	}

	var header MCFHeader
	copy(header.Magic[:], MagicMCF)
	header.Major = CurrentMajor
	header.Minor = CurrentMinor
	header.HeaderSize = mcfHeaderSize
	header.SectionCount = uint32(len(w.sections))
	header.SectionDirOffset = dirOffset
	header.FileSize = uint64(w.buf.Len())
	header.Flags = w.flags

	if !encodeHeader(w.buf.Bytes()[:mcfHeaderSize], header) {
		return errors.New("mcf: encode header failed")
	}
	return nil
}

func (w *Writer) pad(n uint64) {
	cur := uint64(w.buf.Len())
	if gap := alignUp(cur, n) - cur; gap > 0 {
		w.buf.Write(make([]byte, gap))
	}
}
