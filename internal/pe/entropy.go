package pe

import "math"

// CalculateEntropy calculates Shannon entropy for a given data block, in bits per byte.
// Values close to 8 indicate encrypted or compressed data.
func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	n := float64(len(data))
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// SectionEntropy returns the entropy of a section's raw data, clipped to the buffer.
func SectionEntropy(data []byte, s Section) float64 {
	start := uint64(s.RawPointer)
	if start >= uint64(len(data)) {
		return 0.0
	}
	end := start + uint64(s.RawSize)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return CalculateEntropy(data[start:end])
}
