package pe

import (
	"bytes"
	"debug/pe"
	"fmt"
)

// Info contains header metadata read through debug/pe.
type Info struct {
	Architecture string
	Subsystem    string
	EntryPoint   uint64
	ImageBase    uint64
	Is64Bit      bool
	// StoredChecksum is the optional header CheckSum field.
	StoredChecksum uint32
	TLSDirectory   DataDirectory
}

// DataDirectory is one optional header data directory entry.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// tlsDirectoryIndex is IMAGE_DIRECTORY_ENTRY_TLS.
const tlsDirectoryIndex = 9

// Analyzer extracts header metadata from an image.
type Analyzer struct {
	image *Image
}

// NewAnalyzer creates a new analyzer for the given image.
func NewAnalyzer(img *Image) *Analyzer {
	return &Analyzer{image: img}
}

// Analyze parses the file and optional headers.
// Images whose headers debug/pe rejects return an error; callers treat that as advisory.
func (a *Analyzer) Analyze() (*Info, error) {
	f, err := pe.NewFile(bytes.NewReader(a.image.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("解析PE头失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	info := &Info{}
	a.extractBasicInfo(f, info)
	return info, nil
}

func (a *Analyzer) extractBasicInfo(f *pe.File, info *Info) {
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		info.Architecture = "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		info.Architecture = "x64 (64位)"
	case pe.IMAGE_FILE_MACHINE_ARM:
		info.Architecture = "ARM"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		info.Architecture = "ARM64"
	default:
		info.Architecture = fmt.Sprintf("未知 (0x%X)", f.Machine)
	}

	if opt, ok := f.OptionalHeader.(*pe.OptionalHeader32); ok {
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = uint64(opt.ImageBase)
		info.Subsystem = getSubsystem(opt.Subsystem)
		info.StoredChecksum = opt.CheckSum
		info.TLSDirectory = dataDirectory(opt.DataDirectory[:], opt.NumberOfRvaAndSizes, tlsDirectoryIndex)
	} else if opt, ok := f.OptionalHeader.(*pe.OptionalHeader64); ok {
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = opt.ImageBase
		info.Subsystem = getSubsystem(opt.Subsystem)
		info.StoredChecksum = opt.CheckSum
		info.TLSDirectory = dataDirectory(opt.DataDirectory[:], opt.NumberOfRvaAndSizes, tlsDirectoryIndex)
		info.Is64Bit = true
	}
}

func dataDirectory(dirs []pe.DataDirectory, count uint32, index int) DataDirectory {
	if index >= len(dirs) || uint32(index) >= count {
		return DataDirectory{}
	}
	return DataDirectory{VirtualAddress: dirs[index].VirtualAddress, Size: dirs[index].Size}
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "Windows GUI"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}
