package pe

import (
	"encoding/binary"
	"fmt"
)

// maxTLSCallbacks bounds the walk over a callback array that is missing its terminator.
const maxTLSCallbacks = 100

// Offset of AddressOfCallBacks inside IMAGE_TLS_DIRECTORY32/64.
const (
	tlsCallbacksOff32 = 12
	tlsCallbacksOff64 = 24
)

// ReadTLSCallbacks walks the TLS directory at dirRVA and returns the callback VAs
// in array order. Anti-debug checks often run from these callbacks before the
// entry point.
func ReadTLSCallbacks(r *Resolver, dirRVA uint32, is64Bit bool) ([]uint64, error) {
	if dirRVA == 0 {
		return nil, nil
	}

	ptrSize, fieldOff := 4, uint64(tlsCallbacksOff32)
	if is64Bit {
		ptrSize, fieldOff = 8, tlsCallbacksOff64
	}

	off, err := r.ResolveRVA(uint64(dirRVA))
	if err != nil {
		return nil, fmt.Errorf("读取TLS目录失败: %w", err)
	}
	if err := checkRange("TLS目录", off, fieldOff+uint64(ptrSize), uint64(len(r.data))); err != nil {
		return nil, err
	}
	arrayVA := readPointer(r.data[off+fieldOff:], ptrSize)
	if arrayVA == 0 {
		return nil, nil
	}

	var callbacks []uint64
	for i := 0; i < maxTLSCallbacks; i++ {
		va := arrayVA + uint64(i*ptrSize)
		raw, err := r.ReadRange(va, ptrSize)
		if err != nil {
			return callbacks, fmt.Errorf("读取TLS回调表失败 (第 %d 项): %w", i, err)
		}
		cb := readPointer(raw, ptrSize)
		if cb == 0 {
			break
		}
		callbacks = append(callbacks, cb)
	}
	return callbacks, nil
}

func readPointer(b []byte, size int) uint64 {
	if size == 4 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}
