package pe

import (
	"bytes"
	"errors"
	"testing"
)

const testImageBase = 0x140000000

func testSections() []Section {
	return []Section{
		{Name: ".text", VirtualAddress: 0x1000, RawSize: 0x200, RawPointer: 0x400},
		{Name: ".rdata", VirtualAddress: 0x2000, RawSize: 0x100, RawPointer: 0x600},
		// Overlaps .rdata; the first match must win.
		{Name: ".dup", VirtualAddress: 0x2080, RawSize: 0x100, RawPointer: 0x700},
		{Name: ".bss", VirtualAddress: 0x3000, RawSize: 0, RawPointer: 0},
	}
}

// bruteForce resolves by checking every section without early exit.
func bruteForce(sections []Section, va uint64) (uint64, bool) {
	if va < testImageBase {
		return 0, false
	}
	rva := va - testImageBase
	found := -1
	for i := len(sections) - 1; i >= 0; i-- {
		s := sections[i]
		if rva >= uint64(s.VirtualAddress) && rva < uint64(s.VirtualAddress)+uint64(s.RawSize) {
			found = i
		}
	}
	if found < 0 {
		return 0, false
	}
	s := sections[found]
	return uint64(s.RawPointer) + rva - uint64(s.VirtualAddress), true
}

func TestResolveMatchesBruteForce(t *testing.T) {
	sections := testSections()
	r := NewResolver(FromBytes("test", make([]byte, 0x800)), sections, testImageBase)

	for va := uint64(testImageBase - 0x10); va < testImageBase+0x3100; va += 0x8 {
		want, ok := bruteForce(sections, va)
		got, err := r.Resolve(va)

		if !ok {
			var nErr *AddressNotMappedError
			if !errors.As(err, &nErr) {
				t.Fatalf("Resolve(0x%X) error = %v, want *AddressNotMappedError", va, err)
			}
			if nErr.VA != va {
				t.Errorf("AddressNotMappedError.VA = 0x%X, want 0x%X", nErr.VA, va)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Resolve(0x%X) error = %v", va, err)
		}
		if got != want {
			t.Errorf("Resolve(0x%X) = 0x%X, want 0x%X", va, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(FromBytes("test", make([]byte, 0x800)), testSections(), testImageBase)

	tests := []struct {
		name      string
		va        uint64
		want      uint64
		wantErr   bool
		belowBase bool
	}{
		{name: "Start of .text", va: testImageBase + 0x1000, want: 0x400},
		{name: "Last byte of .text", va: testImageBase + 0x11FF, want: 0x5FF},
		{name: "One past .text", va: testImageBase + 0x1200, wantErr: true},
		{name: "Overlap resolves to first section", va: testImageBase + 0x2090, want: 0x690},
		{name: "Overlap tail in second section", va: testImageBase + 0x2150, want: 0x7D0},
		{name: "Zero raw size never matches", va: testImageBase + 0x3000, wantErr: true},
		{name: "Headers are not mapped", va: testImageBase, wantErr: true},
		{name: "Below image base", va: 0x1000, wantErr: true, belowBase: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.va)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var nErr *AddressNotMappedError
				if !errors.As(err, &nErr) {
					t.Fatalf("Resolve() error type = %T, want *AddressNotMappedError", err)
				}
				if nErr.BelowBase != tt.belowBase {
					t.Errorf("BelowBase = %v, want %v", nErr.BelowBase, tt.belowBase)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Resolve() = 0x%X, want 0x%X", got, tt.want)
			}
		})
	}
}

func TestResolveRVA(t *testing.T) {
	r := NewResolver(FromBytes("test", make([]byte, 0x800)), testSections(), testImageBase)

	got, err := r.ResolveRVA(0x2010)
	if err != nil {
		t.Fatalf("ResolveRVA() error = %v", err)
	}
	if got != 0x610 {
		t.Errorf("ResolveRVA() = 0x%X, want 0x610", got)
	}

	if _, err := r.ResolveRVA(0x5000); err == nil {
		t.Error("ResolveRVA() of unmapped RVA should return error")
	}
}

func TestReadRange(t *testing.T) {
	data := make([]byte, 0x700)
	for i := range data {
		data[i] = byte(i)
	}
	r := NewResolver(FromBytes("test", data), testSections(), testImageBase)

	t.Run("In bounds", func(t *testing.T) {
		got, err := r.ReadRange(testImageBase+0x1010, 4)
		if err != nil {
			t.Fatalf("ReadRange() error = %v", err)
		}
		if !bytes.Equal(got, data[0x410:0x414]) {
			t.Errorf("ReadRange() = %x, want %x", got, data[0x410:0x414])
		}
	})

	t.Run("Returns a copy", func(t *testing.T) {
		got, err := r.ReadRange(testImageBase+0x1000, 1)
		if err != nil {
			t.Fatalf("ReadRange() error = %v", err)
		}
		got[0] ^= 0xFF
		if data[0x400] != 0x00 {
			t.Error("ReadRange() result aliases the image buffer")
		}
	})

	t.Run("Past end of buffer", func(t *testing.T) {
		// RVA 0x2100 resolves through .dup to 0x780, past the 0x700-byte buffer.
		_, err := r.ReadRange(testImageBase+0x2100, 16)
		var mErr *MalformedHeaderError
		if !errors.As(err, &mErr) {
			t.Fatalf("ReadRange() error = %v, want *MalformedHeaderError", err)
		}
	})

	t.Run("Range may cross section end while in buffer", func(t *testing.T) {
		got, err := r.ReadRange(testImageBase+0x11F0, 0x20)
		if err != nil {
			t.Fatalf("ReadRange() error = %v", err)
		}
		if !bytes.Equal(got, data[0x5F0:0x610]) {
			t.Errorf("ReadRange() = %x, want %x", got, data[0x5F0:0x610])
		}
	})

	t.Run("Unmapped", func(t *testing.T) {
		_, err := r.ReadRange(testImageBase+0x9000, 1)
		var nErr *AddressNotMappedError
		if !errors.As(err, &nErr) {
			t.Fatalf("ReadRange() error = %v, want *AddressNotMappedError", err)
		}
	})

	t.Run("Negative length", func(t *testing.T) {
		if _, err := r.ReadRange(testImageBase+0x1000, -1); err == nil {
			t.Error("ReadRange() with negative length should return error")
		}
	})
}
