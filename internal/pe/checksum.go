package pe

import "encoding/binary"

// Checksum holds the optional header CheckSum and the value recomputed from the file.
type Checksum struct {
	Stored   uint32
	Computed uint32
}

// Valid reports whether the stored checksum matches. A stored value of 0 means
// the linker did not checksum the image, which is common for non-system files.
func (c Checksum) Valid() bool {
	return c.Stored == 0 || c.Stored == c.Computed
}

// checksumOffset returns the file offset of the CheckSum field. It sits at the
// same place in PE32 and PE32+ optional headers.
func checksumOffset(data []byte) (uint64, error) {
	size := uint64(len(data))
	if err := checkRange("e_lfanew", 0x3C, 4, size); err != nil {
		return 0, err
	}
	off := uint64(binary.LittleEndian.Uint32(data[0x3C:])) + 24 + 64
	if err := checkRange("CheckSum", off, 4, size); err != nil {
		return 0, err
	}
	return off, nil
}

// ComputeChecksum recomputes the image checksum the way the Windows loader does:
// a 16-bit one's complement sum over the file with the CheckSum field treated as
// zero, plus the file length.
func ComputeChecksum(data []byte) (Checksum, error) {
	off, err := checksumOffset(data)
	if err != nil {
		return Checksum{}, err
	}

	byteAt := func(i int) uint32 {
		if i >= len(data) || (uint64(i) >= off && uint64(i) < off+4) {
			return 0
		}
		return uint32(data[i])
	}

	var sum uint32
	for i := 0; i < len(data); i += 2 {
		sum += byteAt(i) | byteAt(i+1)<<8
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	return Checksum{
		Stored:   binary.LittleEndian.Uint32(data[off:]),
		Computed: sum + uint32(len(data)),
	}, nil
}
