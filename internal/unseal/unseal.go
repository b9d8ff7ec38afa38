// Package unseal extracts and decrypts the AES-256-CBC blob embedded in an image.
package unseal

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/ZacharyZcR/PEUnseal/internal/pe"
)

// BlockSize is the AES block size and the PKCS#7 block size.
const BlockSize = aes.BlockSize

// KeySize is the AES-256 key size.
const KeySize = 32

// Reader reads bytes at virtual addresses. *pe.Resolver implements it.
type Reader interface {
	ReadRange(va uint64, n int) ([]byte, error)
}

// Result is the outcome of decryption. PaddingErr is set, and Unpadded is nil,
// when the plaintext does not end in valid PKCS#7 padding.
type Result struct {
	IV         []byte
	Ciphertext []byte
	Plaintext  []byte
	Unpadded   []byte
	PaddingErr *PaddingError
}

// PaddingValid reports whether unpadding succeeded.
func (r *Result) PaddingValid() bool {
	return r.PaddingErr == nil
}

// ExtractError reports which of the IV or ciphertext reads failed, and where.
type ExtractError struct {
	Field string
	VA    uint64
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("读取%s (VA 0x%X) 失败: %v", e.Field, e.VA, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Extract reads the IV and ciphertext from their virtual addresses.
func Extract(r Reader, ivVA, ciphertextVA uint64, ciphertextLen int) (iv, ciphertext []byte, err error) {
	if ciphertextLen <= 0 || ciphertextLen%BlockSize != 0 {
		return nil, nil, &pe.MalformedHeaderError{
			Field:  fmt.Sprintf("密文长度 %d 不是 %d 的倍数", ciphertextLen, BlockSize),
			Offset: ciphertextVA,
			Need:   uint64(max(ciphertextLen, 0)),
		}
	}

	iv, err = r.ReadRange(ivVA, BlockSize)
	if err != nil {
		return nil, nil, &ExtractError{Field: "IV", VA: ivVA, Err: err}
	}
	ciphertext, err = r.ReadRange(ciphertextVA, ciphertextLen)
	if err != nil {
		return nil, nil, &ExtractError{Field: "密文", VA: ciphertextVA, Err: err}
	}
	return iv, ciphertext, nil
}

func newBlock(key, iv, data []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("密钥长度无效: %d 字节 (需要 %d)", len(key), KeySize)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("IV长度无效: %d 字节 (需要 %d)", len(iv), BlockSize)
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("数据长度 %d 不是 %d 的倍数", len(data), BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("创建AES失败: %w", err)
	}
	return block, nil
}

// DecryptCBC decrypts ciphertext with AES-256 in CBC mode. No padding is removed.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// EncryptCBC encrypts block-aligned plaintext with AES-256 in CBC mode.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key, iv, plaintext)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

// Open decrypts ciphertext and attempts to remove PKCS#7 padding. Together with
// Extract it is the whole decrypt step.
// A padding failure is recorded in the result, never returned as an error.
func Open(key, iv, ciphertext []byte) (*Result, error) {
	plaintext, err := DecryptCBC(key, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	res := &Result{IV: iv, Ciphertext: ciphertext, Plaintext: plaintext}
	unpadded, err := Unpad(plaintext, BlockSize)
	var perr *PaddingError
	if errors.As(err, &perr) {
		res.PaddingErr = perr
		return res, nil
	}
	res.Unpadded = unpadded
	return res, nil
}
