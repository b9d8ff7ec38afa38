package unseal

import (
	"bytes"
	"fmt"
)

// Reasons carried by PaddingError.
const (
	ReasonEmpty  = "empty buffer"
	ReasonLength = "padding length"
	ReasonBytes  = "padding bytes"
)

// PaddingError reports invalid PKCS#7 padding. It is not fatal: the decrypted
// buffer is still valid output.
type PaddingError struct {
	Reason string
	Pad    int
}

func (e *PaddingError) Error() string {
	if e.Reason == ReasonEmpty {
		return "PKCS#7 填充无效: " + e.Reason
	}
	return fmt.Sprintf("PKCS#7 填充无效: %s (0x%02X)", e.Reason, e.Pad)
}

// Pad appends PKCS#7 padding. A full block is added when len(buf) is already aligned.
func Pad(buf []byte, blockSize int) []byte {
	n := blockSize - len(buf)%blockSize
	out := make([]byte, len(buf), len(buf)+n)
	copy(out, buf)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

// Unpad strips PKCS#7 padding. The returned slice aliases buf.
func Unpad(buf []byte, blockSize int) ([]byte, error) {
	if len(buf) == 0 {
		return nil, &PaddingError{Reason: ReasonEmpty}
	}
	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > blockSize || pad > len(buf) {
		return nil, &PaddingError{Reason: ReasonLength, Pad: pad}
	}
	for _, b := range buf[len(buf)-pad:] {
		if int(b) != pad {
			return nil, &PaddingError{Reason: ReasonBytes, Pad: pad}
		}
	}
	return buf[:len(buf)-pad], nil
}
