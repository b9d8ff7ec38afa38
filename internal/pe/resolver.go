package pe

import "fmt"

// Resolver maps virtual addresses inside the image to file offsets.
// Lookup is a linear scan and the first covering section wins; overlapping
// sections are not rejected.
type Resolver struct {
	data      []byte
	sections  []Section
	imageBase uint64
}

// NewResolver creates a resolver over img using the given sections and image base.
func NewResolver(img *Image, sections []Section, imageBase uint64) *Resolver {
	return &Resolver{
		data:      img.Bytes(),
		sections:  sections,
		imageBase: imageBase,
	}
}

// Resolve converts an absolute virtual address into a file offset.
func (r *Resolver) Resolve(va uint64) (uint64, error) {
	if va < r.imageBase {
		return 0, &AddressNotMappedError{VA: va, ImageBase: r.imageBase, BelowBase: true}
	}
	rva := va - r.imageBase
	off, ok := r.lookup(rva)
	if !ok {
		return 0, &AddressNotMappedError{VA: va, RVA: rva, ImageBase: r.imageBase}
	}
	return off, nil
}

// ResolveRVA converts a relative virtual address into a file offset.
func (r *Resolver) ResolveRVA(rva uint64) (uint64, error) {
	off, ok := r.lookup(rva)
	if !ok {
		return 0, &AddressNotMappedError{VA: rva + r.imageBase, RVA: rva, ImageBase: r.imageBase}
	}
	return off, nil
}

func (r *Resolver) lookup(rva uint64) (uint64, bool) {
	for _, s := range r.sections {
		if s.Contains(rva) {
			return uint64(s.RawPointer) + (rva - uint64(s.VirtualAddress)), true
		}
	}
	return 0, false
}

// ReadRange returns a copy of n bytes starting at virtual address va.
func (r *Resolver) ReadRange(va uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("读取长度无效: %d", n)
	}
	off, err := r.Resolve(va)
	if err != nil {
		return nil, err
	}
	field := fmt.Sprintf("VA 0x%X", va)
	if err := checkRange(field, off, uint64(n), uint64(len(r.data))); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[off:off+uint64(n)])
	return out, nil
}
