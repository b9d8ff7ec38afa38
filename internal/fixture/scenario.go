package fixture

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
)

// Offsets inside the .data section of a Scenario image.
const (
	DataRVA           = 0x1000
	IVOffset          = 0x000
	CiphertextOffset  = 0x010
	PointerTableOff   = 0x100
	BlocksOffset      = 0x200
	ScenarioBlockSize = 64
	ScenarioBlocks    = 8
)

// Scenario is a synthetic target with a known key, IV, ciphertext and plaintext.
type Scenario struct {
	ImageBase      uint64
	PointerTableVA uint64
	IVVA           uint64
	CiphertextVA   uint64

	Blocks     [][]byte
	Key        [32]byte
	IV         []byte
	Plaintext  []byte
	Ciphertext []byte
	Image      []byte
}

// NewScenario builds an image whose ciphertext decrypts to plaintext.
// When pad is true the plaintext is PKCS#7 padded before encryption; otherwise its
// length must already be a multiple of 16.
func NewScenario(imageBase uint64, plaintext []byte, pad bool) *Scenario {
	sc := &Scenario{
		ImageBase:      imageBase,
		PointerTableVA: imageBase + DataRVA + PointerTableOff,
		IVVA:           imageBase + DataRVA + IVOffset,
		CiphertextVA:   imageBase + DataRVA + CiphertextOffset,
		Plaintext:      plaintext,
	}

	for i := 0; i < ScenarioBlocks; i++ {
		block := make([]byte, ScenarioBlockSize)
		for j := range block {
			block[j] = byte(i*ScenarioBlockSize+j) ^ 0x5A
		}
		sc.Blocks = append(sc.Blocks, block)
		digest := sha256.Sum256(block)
		for j := range sc.Key {
			sc.Key[j] ^= digest[j]
		}
	}

	sc.IV = make([]byte, aes.BlockSize)
	for i := range sc.IV {
		sc.IV[i] = byte(0xA0 + i)
	}

	input := plaintext
	if pad {
		n := aes.BlockSize - len(plaintext)%aes.BlockSize
		input = append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(n)}, n)...)
	}
	if len(input) > PointerTableOff-CiphertextOffset {
		panic("fixture: plaintext too long")
	}
	block, err := aes.NewCipher(sc.Key[:])
	if err != nil {
		panic(err)
	}
	sc.Ciphertext = make([]byte, len(input))
	cipher.NewCBCEncrypter(block, sc.IV).CryptBlocks(sc.Ciphertext, input)

	data := make([]byte, BlocksOffset+ScenarioBlocks*ScenarioBlockSize)
	copy(data[IVOffset:], sc.IV)
	copy(data[CiphertextOffset:], sc.Ciphertext)
	for i, blk := range sc.Blocks {
		off := BlocksOffset + i*ScenarioBlockSize
		copy(data[off:], blk)
		binary.LittleEndian.PutUint64(data[PointerTableOff+i*8:], imageBase+DataRVA+uint64(off))
	}

	sc.Image = New(imageBase).
		EntryPoint(0x2000).
		Section(".data", DataRVA, data, ScnData).
		Section(".text", 0x2000, bytes.Repeat([]byte{0xCC}, 0x40), ScnCode).
		Build()
	return sc
}
