package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/PEUnseal/internal/config"
	"github.com/ZacharyZcR/PEUnseal/internal/fixture"
	"github.com/ZacharyZcR/PEUnseal/internal/pe"
	"github.com/ZacharyZcR/PEUnseal/internal/pipeline"
)

const imageBase = 0x140000000

func init() {
	color.NoColor = true
}

func runScenario(t *testing.T, plaintext []byte, pad bool) (*fixture.Scenario, *pipeline.Report) {
	t.Helper()
	sc := fixture.NewScenario(imageBase, plaintext, pad)

	cfg := config.Default()
	cfg.ImageBase = sc.ImageBase
	cfg.PointerTableVA = sc.PointerTableVA
	cfg.IVVA = sc.IVVA
	cfg.CiphertextVA = sc.CiphertextVA
	cfg.CiphertextLen = len(sc.Ciphertext)

	r, err := pipeline.New(cfg, nil)
	require.NoError(t, err)
	rep, err := r.Run(pe.FromBytes("target.exe", sc.Image))
	require.NoError(t, err)
	return sc, rep
}

func TestReporterPrint(t *testing.T) {
	sc, rep := runScenario(t, []byte("flag{static}"), true)

	var buf bytes.Buffer
	NewReporter(rep, &buf).Print()
	out := buf.String()

	assert.Contains(t, out, "target.exe")
	assert.Contains(t, out, "0x140000000")
	assert.Contains(t, out, ".data")
	assert.Contains(t, out, hex.EncodeToString(sc.Key[:]))
	assert.Contains(t, out, hex.EncodeToString(sc.IV))
	assert.Contains(t, out, hex.EncodeToString(sc.Ciphertext))
	assert.Contains(t, out, "✓ 有效 (去除 4 字节)")
	assert.Contains(t, out, `"flag{static}"`)
	assert.NotContains(t, out, "【指针表】")
	assert.NotContains(t, out, "【TLS回调】")
	assert.Contains(t, out, "R-X")
	assert.Contains(t, out, "RW-")
	assert.Contains(t, out, "未设置 (计算值 0x")
}

func TestReporterChecksumAndTLS(t *testing.T) {
	_, rep := runScenario(t, []byte("tls"), true)
	rep.Checksum = &pe.Checksum{Stored: 0x1111, Computed: 0x2222}
	rep.TLSCallbacks = []uint64{0x140002000, 0x140002010}

	var buf bytes.Buffer
	NewReporter(rep, &buf).Print()
	out := buf.String()

	assert.Contains(t, out, "0x00001111 ✗ (计算值 0x00002222)")
	assert.Contains(t, out, "【TLS回调】(共 2 个)")
	assert.Contains(t, out, "1. 0x140002010")

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, rep))
	var got struct {
		Checksum struct {
			Stored string `json:"stored"`
			Valid  bool   `json:"valid"`
		} `json:"checksum"`
		TLSCallbacks []string `json:"tls_callbacks"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "0x00001111", got.Checksum.Stored)
	assert.False(t, got.Checksum.Valid)
	assert.Equal(t, []string{"0x140002000", "0x140002010"}, got.TLSCallbacks)
}

func TestReporterVerbose(t *testing.T) {
	_, rep := runScenario(t, []byte("verbose"), true)

	var buf bytes.Buffer
	r := NewReporter(rep, &buf)
	r.SetVerbose(true)
	r.Print()
	out := buf.String()

	assert.Contains(t, out, "【指针表】(共 8 项)")
	assert.Contains(t, out, "0x140001200")
	assert.Contains(t, out, "x64 (64位)")
	assert.Contains(t, out, "00000000  ")
}

func TestReporterPaddingFailure(t *testing.T) {
	raw := bytes.Repeat([]byte{0x41}, 16)
	raw[15] = 0x11
	_, rep := runScenario(t, raw, false)

	var buf bytes.Buffer
	NewReporter(rep, &buf).Print()
	out := buf.String()

	assert.Contains(t, out, "✗ PKCS#7 填充无效: padding length (0x11)")
	assert.Contains(t, out, `"AAAAAAAAAAAAAAA\x11"`)
}

func TestWriteJSON(t *testing.T) {
	t.Run("Valid padding", func(t *testing.T) {
		sc, rep := runScenario(t, []byte("json"), true)

		var buf bytes.Buffer
		require.NoError(t, WriteJSON(&buf, rep))

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "target.exe", got["path"])
		assert.Equal(t, float64(imageBase), got["image_base"])
		assert.Equal(t, hex.EncodeToString(sc.Key[:]), got["key"])
		assert.Equal(t, hex.EncodeToString(sc.IV), got["iv"])
		assert.Equal(t, hex.EncodeToString(sc.Ciphertext), got["ciphertext"])
		assert.Equal(t, true, got["padding_valid"])
		assert.Equal(t, hex.EncodeToString([]byte("json")), got["unpadded"])
		assert.NotContains(t, got, "padding_reason")
		require.Len(t, got["sections"], 2)
		section := got["sections"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "RW-", section["permissions"])
	})

	t.Run("Valid padding with nothing left", func(t *testing.T) {
		_, rep := runScenario(t, bytes.Repeat([]byte{0x10}, 16), false)
		require.True(t, rep.PaddingValid())

		var buf bytes.Buffer
		require.NoError(t, WriteJSON(&buf, rep))

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, true, got["padding_valid"])
		assert.Contains(t, got, "unpadded")
		assert.Equal(t, "", got["unpadded"])
	})

	t.Run("Invalid padding", func(t *testing.T) {
		raw := bytes.Repeat([]byte{0x03}, 32)
		raw[31] = 0x02
		raw[30] = 0x07
		_, rep := runScenario(t, raw, false)

		var buf bytes.Buffer
		require.NoError(t, WriteJSON(&buf, rep))

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, false, got["padding_valid"])
		assert.Equal(t, "padding bytes", got["padding_reason"])
		assert.Equal(t, hex.EncodeToString(raw), got["plaintext"])
		assert.NotContains(t, got, "unpadded")
	})
}

func TestQuoteBytes(t *testing.T) {
	assert.Equal(t, `"hi\n"`, quoteBytes([]byte("hi\n")))
	assert.Equal(t, "ff00", quoteBytes([]byte{0xFF, 0x00}))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.in), "formatSize(%d)", tt.in)
	}
}
