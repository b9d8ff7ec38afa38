// Package keyfold derives the AES key hidden behind a pointer table in the image.
//
// Each pointer in the table references a fixed-size block. The key is the byte-wise
// XOR of the SHA-256 digests of all referenced blocks.
package keyfold

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// KeySize is the size of the derived key and of each digest.
const KeySize = sha256.Size

// Defaults for Params.
const (
	DefaultPointerCount = 8
	DefaultBlockSize    = 64
)

// Key is the derived key material.
type Key [KeySize]byte

// Hex returns the key hex encoded.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// Reader reads bytes at virtual addresses. *pe.Resolver implements it.
type Reader interface {
	ReadRange(va uint64, n int) ([]byte, error)
}

// Params controls the shape of the pointer table and blocks.
type Params struct {
	PointerCount int
	BlockSize    int
}

// DefaultParams returns eight pointers to 64-byte blocks.
func DefaultParams() Params {
	return Params{PointerCount: DefaultPointerCount, BlockSize: DefaultBlockSize}
}

// BlockError identifies the pointer whose block could not be read.
type BlockError struct {
	Index int
	VA    uint64
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("读取第 %d 个数据块 (VA 0x%X) 失败: %v", e.Index, e.VA, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// ReadPointerTable reads count little-endian 64-bit VAs starting at tableVA.
func ReadPointerTable(r Reader, tableVA uint64, count int) ([]uint64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("指针数量无效: %d", count)
	}
	raw, err := r.ReadRange(tableVA, count*8)
	if err != nil {
		return nil, fmt.Errorf("读取指针表 (VA 0x%X) 失败: %w", tableVA, err)
	}
	table := make([]uint64, count)
	for i := range table {
		table[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return table, nil
}

// HashBlocks reads each referenced block and returns its SHA-256 digest, in table order.
func HashBlocks(r Reader, table []uint64, blockSize int) ([][KeySize]byte, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("数据块大小无效: %d", blockSize)
	}
	digests := make([][KeySize]byte, 0, len(table))
	for i, ptr := range table {
		block, err := r.ReadRange(ptr, blockSize)
		if err != nil {
			return nil, &BlockError{Index: i, VA: ptr, Err: err}
		}
		digests = append(digests, sha256.Sum256(block))
	}
	return digests, nil
}

// Fold XORs digests into a zeroed accumulator. The result does not depend on order.
func Fold(digests [][KeySize]byte) Key {
	var key Key
	for _, d := range digests {
		for j := range key {
			key[j] ^= d[j]
		}
	}
	return key
}

// Derive reads the pointer table at tableVA, hashes every referenced block and folds
// the digests into a key.
func Derive(r Reader, tableVA uint64, p Params) (Key, error) {
	table, err := ReadPointerTable(r, tableVA, p.PointerCount)
	if err != nil {
		return Key{}, err
	}
	digests, err := HashBlocks(r, table, p.BlockSize)
	if err != nil {
		return Key{}, err
	}
	return Fold(digests), nil
}
