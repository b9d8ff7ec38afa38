package pipeline

import (
	"encoding/hex"

	"github.com/ZacharyZcR/PEUnseal/internal/keyfold"
	"github.com/ZacharyZcR/PEUnseal/internal/pe"
	"github.com/ZacharyZcR/PEUnseal/internal/unseal"
)

// SectionReport is a parsed section together with the entropy of its raw data.
type SectionReport struct {
	pe.Section
	Entropy float64
}

// Report is the terminal output of a pipeline run.
type Report struct {
	ImagePath string
	ImageSize int64
	ImageBase uint64
	// ImageBaseDetected is set when ImageBase came from the optional header.
	ImageBaseDetected bool
	// Info is nil when debug/pe could not read the headers.
	Info     *pe.Info
	Sections []SectionReport
	// Checksum is nil when the CheckSum field lies outside the file.
	Checksum *pe.Checksum
	// TLSCallbacks lists callback VAs found through the TLS directory.
	TLSCallbacks []uint64

	PointerTable []uint64
	Key          keyfold.Key
	IV           []byte
	Ciphertext   []byte
	Plaintext    []byte
	// Unpadded is nil when PaddingErr is set.
	Unpadded   []byte
	PaddingErr *unseal.PaddingError

	CiphertextEntropy float64
	PlaintextEntropy  float64
}

// KeyHex returns the derived key hex encoded.
func (r *Report) KeyHex() string {
	return r.Key.Hex()
}

// IVHex returns the IV hex encoded.
func (r *Report) IVHex() string {
	return hex.EncodeToString(r.IV)
}

// CiphertextHex returns the ciphertext hex encoded.
func (r *Report) CiphertextHex() string {
	return hex.EncodeToString(r.Ciphertext)
}

// PaddingValid reports whether PKCS#7 unpadding succeeded.
func (r *Report) PaddingValid() bool {
	return r.PaddingErr == nil
}

// Output returns the unpadded plaintext when padding was valid, otherwise the full plaintext.
func (r *Report) Output() []byte {
	if r.PaddingValid() {
		return r.Unpadded
	}
	return r.Plaintext
}
