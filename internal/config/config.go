// Package config loads the target layout: where the pointer table, IV and ciphertext live.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config describes one target layout. Addresses are absolute VAs.
type Config struct {
	// ImageBase of 0 means "take it from the optional header".
	ImageBase      uint64 `yaml:"image_base" toml:"image_base"`
	PointerTableVA uint64 `yaml:"pointer_table_va" toml:"pointer_table_va"`
	IVVA           uint64 `yaml:"iv_va" toml:"iv_va"`
	CiphertextVA   uint64 `yaml:"ciphertext_va" toml:"ciphertext_va"`
	CiphertextLen  int    `yaml:"ciphertext_len" toml:"ciphertext_len"`
	BlockSize      int    `yaml:"block_size" toml:"block_size"`
	KeySize        int    `yaml:"key_size" toml:"key_size"`
	PointerCount   int    `yaml:"pointer_count" toml:"pointer_count"`
}

// Default returns a layout with only the algorithm parameters filled in.
func Default() Config {
	return Config{
		BlockSize:    64,
		KeySize:      32,
		PointerCount: 8,
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	//nolint:gosec // G304: path is the user supplied layout profile
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("解析YAML配置失败 %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("解析TOML配置失败 %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("不支持的配置格式: %q (支持 .yaml, .yml, .toml)", ext)
	}

	return cfg, nil
}

// Validate checks that every address is set and sizes are usable.
func (c Config) Validate() error {
	var errs []error
	if c.PointerTableVA == 0 {
		errs = append(errs, errors.New("未设置 pointer_table_va"))
	}
	if c.IVVA == 0 {
		errs = append(errs, errors.New("未设置 iv_va"))
	}
	if c.CiphertextVA == 0 {
		errs = append(errs, errors.New("未设置 ciphertext_va"))
	}
	if c.CiphertextLen <= 0 || c.CiphertextLen%16 != 0 {
		errs = append(errs, fmt.Errorf("ciphertext_len 必须是16的正整数倍: %d", c.CiphertextLen))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block_size 必须为正数: %d", c.BlockSize))
	}
	if c.KeySize != 32 {
		errs = append(errs, fmt.Errorf("key_size 仅支持 32 (SHA-256 / AES-256): %d", c.KeySize))
	}
	if c.PointerCount <= 0 || c.PointerCount > 1024 {
		errs = append(errs, fmt.Errorf("pointer_count 超出范围 1..1024: %d", c.PointerCount))
	}
	if c.ImageBase != 0 {
		for _, va := range []uint64{c.PointerTableVA, c.IVVA, c.CiphertextVA} {
			if va != 0 && va < c.ImageBase {
				errs = append(errs, fmt.Errorf("VA 0x%X 低于 image_base 0x%X", va, c.ImageBase))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("配置无效: %w", errors.Join(errs...))
	}
	return nil
}

// ParseAddress parses a hexadecimal address with or without the 0x prefix.
// The whole string must be hex digits.
func ParseAddress(addr string) (uint64, error) {
	digits := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
	if digits == "" {
		return 0, fmt.Errorf("地址格式错误: %q (缺少十六进制数字)", addr)
	}
	result, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("地址格式错误: %s (应为十六进制，例如: 0x140001000): %w", addr, err)
	}
	return result, nil
}
