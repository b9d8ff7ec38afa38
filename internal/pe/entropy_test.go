package pe

import (
	"math"
	"testing"
)

func TestCalculateEntropy(t *testing.T) {
	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}

	tests := []struct {
		name string
		data []byte
		want float64
	}{
		{name: "Empty data", data: []byte{}, want: 0.0},
		{name: "Single repeated byte", data: []byte{0x00, 0x00, 0x00, 0x00}, want: 0.0},
		{name: "Two symbols, equal frequency", data: []byte{0xAA, 0xBB, 0xAA, 0xBB}, want: 1.0},
		{name: "Eight distinct bytes", data: []byte{0, 1, 2, 3, 4, 5, 6, 7}, want: 3.0},
		{name: "Every byte value once", data: allBytes, want: 8.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateEntropy(tt.data)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("CalculateEntropy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSectionEntropy(t *testing.T) {
	data := make([]byte, 0x20)
	for i := 0x10; i < 0x18; i++ {
		data[i] = byte(i)
	}

	tests := []struct {
		name    string
		section Section
		want    float64
	}{
		{name: "Distinct bytes", section: Section{RawPointer: 0x10, RawSize: 8}, want: 3.0},
		{name: "Clipped to buffer", section: Section{RawPointer: 0x18, RawSize: 0x100}, want: 0.0},
		{name: "Starts past buffer", section: Section{RawPointer: 0x100, RawSize: 8}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SectionEntropy(data, tt.section)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("SectionEntropy() = %v, want %v", got, tt.want)
			}
		})
	}
}
