package pe

import (
	"debug/pe"
	"encoding/binary"
	"strings"
)

const (
	peHeaderPointerOffset = 0x3C
	sectionHeaderSize     = 40
	sectionNameSize       = 8
)

// Section is one entry of the section directory.
type Section struct {
	Name           string
	VirtualSize    uint32
	VirtualAddress uint32
	RawSize        uint32
	RawPointer     uint32

	// Characteristics holds the IMAGE_SCN_* flags.
	Characteristics uint32
}

// Permissions returns the memory permissions as "RWX", with '-' for a missing right.
func (s Section) Permissions() string {
	return getSectionPermissions(s.Characteristics)
}

// IsWritableCode reports a section that is both writable and executable.
func (s Section) IsWritableCode() bool {
	const wx = pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE
	return s.Characteristics&wx == wx
}

// Contains reports whether rva falls inside the section's raw-backed range.
func (s Section) Contains(rva uint64) bool {
	start := uint64(s.VirtualAddress)
	return rva >= start && rva < start+uint64(s.RawSize)
}

// ParseSections reads the section directory from a raw image.
//
// Layout:
//
//	0x3C           uint32  offset of the PE header (H)
//	H+6            uint16  NumberOfSections
//	H+20           uint16  SizeOfOptionalHeader
//	H+24+optSize   40-byte section headers
func ParseSections(data []byte) ([]Section, error) {
	size := uint64(len(data))

	if err := checkRange("PE头偏移", peHeaderPointerOffset, 4, size); err != nil {
		return nil, err
	}
	peHeaderOffset := uint64(binary.LittleEndian.Uint32(data[peHeaderPointerOffset:]))

	if err := checkRange("节区数量", peHeaderOffset+6, 2, size); err != nil {
		return nil, err
	}
	numberOfSections := uint64(binary.LittleEndian.Uint16(data[peHeaderOffset+6:]))

	if err := checkRange("可选头大小", peHeaderOffset+20, 2, size); err != nil {
		return nil, err
	}
	optionalHeaderSize := uint64(binary.LittleEndian.Uint16(data[peHeaderOffset+20:]))

	// Section table = Signature(4) + COFF Header(20) + Optional Header.
	sectionTableOffset := peHeaderOffset + 24 + optionalHeaderSize
	if err := checkRange("节区表", sectionTableOffset, numberOfSections*sectionHeaderSize, size); err != nil {
		return nil, err
	}

	sections := make([]Section, 0, numberOfSections)
	for i := uint64(0); i < numberOfSections; i++ {
		entry := data[sectionTableOffset+i*sectionHeaderSize:][:sectionHeaderSize]
		sections = append(sections, Section{
			Name:           sectionName(entry[:sectionNameSize]),
			VirtualSize:    binary.LittleEndian.Uint32(entry[8:12]),
			VirtualAddress: binary.LittleEndian.Uint32(entry[12:16]),
			RawSize:        binary.LittleEndian.Uint32(entry[16:20]),
			RawPointer:     binary.LittleEndian.Uint32(entry[20:24]),

			Characteristics: binary.LittleEndian.Uint32(entry[36:40]),
		})
	}

	return sections, nil
}

// sectionName trims trailing NULs, then drops non-ASCII bytes. NULs followed by
// a non-ASCII byte are not trailing and survive.
func sectionName(raw []byte) string {
	raw = []byte(strings.TrimRight(string(raw), "\x00"))
	var b strings.Builder
	for _, c := range raw {
		if c < 0x80 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func getSectionPermissions(c uint32) string {
	perms := [3]byte{'-', '-', '-'}

	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}

	return string(perms[:])
}
