// Package fixture builds small synthetic PE32+ images for tests.
package fixture

import (
	"encoding/binary"
)

// Fixed header layout of images produced by Builder.
const (
	PEHeaderOffset      = 0x80
	NumberOfSectionsOff = PEHeaderOffset + 6
	OptionalHeaderSize  = 0xF0
	SectionTableOffset  = PEHeaderOffset + 24 + OptionalHeaderSize
	ChecksumOffset      = PEHeaderOffset + 24 + 64
	HeadersSize         = 0x400
	FileAlignment       = 0x200
	SectionAlignment    = 0x1000

	// MaxSections is how many 40-byte headers fit before the first raw section.
	MaxSections = (HeadersSize - SectionTableOffset) / 40
)

// Section characteristics used by Builder.
const (
	ScnCode  = 0x00000020 | 0x20000000 | 0x40000000
	ScnData  = 0x00000040 | 0x40000000 | 0x80000000
	ScnRData = 0x00000040 | 0x40000000
)

type section struct {
	name            string
	va              uint32
	data            []byte
	characteristics uint32
}

// Builder assembles a minimal PE32+ image that debug/pe can also open.
type Builder struct {
	imageBase  uint64
	entryPoint uint32
	checksum   uint32
	dirs       [16]struct{ rva, size uint32 }
	sections   []section
}

// New creates a builder for an image based at imageBase.
func New(imageBase uint64) *Builder {
	return &Builder{imageBase: imageBase}
}

// EntryPoint sets AddressOfEntryPoint.
func (b *Builder) EntryPoint(rva uint32) *Builder {
	b.entryPoint = rva
	return b
}

// Checksum sets the optional header CheckSum field.
func (b *Builder) Checksum(v uint32) *Builder {
	b.checksum = v
	return b
}

// DataDirectory sets data directory entry index (9 is TLS).
func (b *Builder) DataDirectory(index int, rva, size uint32) *Builder {
	b.dirs[index].rva, b.dirs[index].size = rva, size
	return b
}

// Section appends a section whose data starts at the given RVA.
func (b *Builder) Section(name string, rva uint32, data []byte, characteristics uint32) *Builder {
	b.sections = append(b.sections, section{name: name, va: rva, data: data, characteristics: characteristics})
	return b
}

// Build lays out headers and raw section data.
func (b *Builder) Build() []byte {
	if len(b.sections) > MaxSections {
		panic("fixture: too many sections")
	}

	total := uint32(HeadersSize)
	rawPointers := make([]uint32, len(b.sections))
	rawSizes := make([]uint32, len(b.sections))
	var sizeOfImage uint32 = SectionAlignment
	for i, s := range b.sections {
		rawPointers[i] = total
		rawSizes[i] = alignUp(uint32(len(s.data)), FileAlignment)
		total += rawSizes[i]
		if end := alignUp(s.va+uint32(len(s.data)), SectionAlignment); end > sizeOfImage {
			sizeOfImage = end
		}
	}

	buf := make([]byte, total)
	le := binary.LittleEndian

	// DOS header.
	buf[0], buf[1] = 'M', 'Z'
	le.PutUint32(buf[0x3C:], PEHeaderOffset)

	// Signature + COFF header.
	copy(buf[PEHeaderOffset:], "PE\x00\x00")
	coff := buf[PEHeaderOffset+4:]
	le.PutUint16(coff[0:], 0x8664) // AMD64
	le.PutUint16(coff[2:], uint16(len(b.sections)))
	le.PutUint16(coff[16:], OptionalHeaderSize)
	le.PutUint16(coff[18:], 0x0022) // EXECUTABLE_IMAGE | LARGE_ADDRESS_AWARE

	// PE32+ optional header.
	opt := buf[PEHeaderOffset+24:]
	le.PutUint16(opt[0:], 0x20B)
	le.PutUint32(opt[16:], b.entryPoint)
	le.PutUint64(opt[24:], b.imageBase)
	le.PutUint32(opt[32:], SectionAlignment)
	le.PutUint32(opt[36:], FileAlignment)
	le.PutUint16(opt[48:], 6) // MajorSubsystemVersion
	le.PutUint32(opt[56:], sizeOfImage)
	le.PutUint32(opt[60:], HeadersSize)
	le.PutUint32(opt[64:], b.checksum)
	le.PutUint16(opt[68:], 3) // IMAGE_SUBSYSTEM_WINDOWS_CUI
	le.PutUint32(opt[108:], 16)
	for i, d := range b.dirs {
		le.PutUint32(opt[112+i*8:], d.rva)
		le.PutUint32(opt[116+i*8:], d.size)
	}

	for i, s := range b.sections {
		hdr := buf[SectionTableOffset+i*40:]
		copy(hdr[:8], s.name)
		le.PutUint32(hdr[8:], uint32(len(s.data)))
		le.PutUint32(hdr[12:], s.va)
		le.PutUint32(hdr[16:], rawSizes[i])
		le.PutUint32(hdr[20:], rawPointers[i])
		le.PutUint32(hdr[36:], s.characteristics)
		copy(buf[rawPointers[i]:], s.data)
	}

	return buf
}

func alignUp(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return ((value + alignment - 1) / alignment) * alignment
}
