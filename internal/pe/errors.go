package pe

import "fmt"

// FileAccessError reports that the image could not be loaded into memory.
type FileAccessError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("%s %s 失败: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

// MalformedHeaderError reports a structural read that would fall outside the image.
type MalformedHeaderError struct {
	Field  string
	Offset uint64
	Need   uint64
	Size   uint64
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("结构损坏: %s 位于偏移 0x%X 需要 %d 字节, 文件大小 %d 字节",
		e.Field, e.Offset, e.Need, e.Size)
}

// AddressNotMappedError reports a virtual address that no section covers.
type AddressNotMappedError struct {
	VA        uint64
	RVA       uint64
	ImageBase uint64
	// BelowBase is set when VA < ImageBase, in which case RVA is meaningless.
	BelowBase bool
}

func (e *AddressNotMappedError) Error() string {
	if e.BelowBase {
		return fmt.Sprintf("VA 0x%X 低于镜像基址 0x%X", e.VA, e.ImageBase)
	}
	return fmt.Sprintf("VA 0x%X (RVA 0x%X) 不在任何节区内", e.VA, e.RVA)
}

// checkRange returns a MalformedHeaderError when [off, off+n) is not inside a buffer of size.
func checkRange(field string, off, n, size uint64) error {
	if off > size || n > size-off {
		return &MalformedHeaderError{Field: field, Offset: off, Need: n, Size: size}
	}
	return nil
}
