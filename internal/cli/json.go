package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ZacharyZcR/PEUnseal/internal/pipeline"
)

type jsonSection struct {
	Name           string  `json:"name"`
	VirtualAddress uint32  `json:"virtual_address"`
	RawSize        uint32  `json:"raw_size"`
	RawPointer     uint32  `json:"raw_pointer"`
	Permissions    string  `json:"permissions"`
	Entropy        float64 `json:"entropy"`
}

type jsonChecksum struct {
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
	Valid    bool   `json:"valid"`
}

type jsonReport struct {
	Path          string        `json:"path"`
	ImageBase     uint64        `json:"image_base"`
	Sections      []jsonSection `json:"sections"`
	Checksum      *jsonChecksum `json:"checksum,omitempty"`
	TLSCallbacks  []string      `json:"tls_callbacks,omitempty"`
	Key           string        `json:"key"`
	IV            string        `json:"iv"`
	Ciphertext    string        `json:"ciphertext"`
	Plaintext     string        `json:"plaintext"`
	PaddingValid  bool          `json:"padding_valid"`
	PaddingReason string        `json:"padding_reason,omitempty"`
	// Unpadded is present whenever padding was valid, even when it is empty.
	Unpadded      *string       `json:"unpadded,omitempty"`
}

// WriteJSON writes the report as indented JSON. Byte fields are hex encoded.
func WriteJSON(w io.Writer, rep *pipeline.Report) error {
	out := jsonReport{
		Path:         rep.ImagePath,
		ImageBase:    rep.ImageBase,
		Sections:     make([]jsonSection, 0, len(rep.Sections)),
		Key:          rep.KeyHex(),
		IV:           rep.IVHex(),
		Ciphertext:   rep.CiphertextHex(),
		Plaintext:    hex.EncodeToString(rep.Plaintext),
		PaddingValid: rep.PaddingValid(),
	}
	for _, s := range rep.Sections {
		out.Sections = append(out.Sections, jsonSection{
			Name:           s.Name,
			VirtualAddress: s.VirtualAddress,
			RawSize:        s.RawSize,
			RawPointer:     s.RawPointer,
			Permissions:    s.Permissions(),
			Entropy:        s.Entropy,
		})
	}
	if sum := rep.Checksum; sum != nil {
		out.Checksum = &jsonChecksum{
			Stored:   fmt.Sprintf("0x%08X", sum.Stored),
			Computed: fmt.Sprintf("0x%08X", sum.Computed),
			Valid:    sum.Valid(),
		}
	}
	for _, cb := range rep.TLSCallbacks {
		out.TLSCallbacks = append(out.TLSCallbacks, fmt.Sprintf("0x%X", cb))
	}
	if rep.PaddingValid() {
		unpadded := hex.EncodeToString(rep.Unpadded)
		out.Unpadded = &unpadded
	} else {
		out.PaddingReason = rep.PaddingErr.Reason
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
