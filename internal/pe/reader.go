// Package pe provides static PE image loading, section parsing and address resolution.
package pe

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// Image is a complete, read-only in-memory copy of a target executable.
type Image struct {
	data   []byte
	path   string
	mapped mmap.MMap
}

// Load reads the whole file at path into memory.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "读取文件", Err: err}
	}
	return &Image{data: data, path: path}, nil
}

// LoadMapped maps the whole file at path read-only. Call Close to unmap.
func LoadMapped(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "打开文件", Err: err}
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "获取文件信息", Err: err}
	}
	// Zero-length files cannot be mapped.
	if stat.Size() == 0 {
		return &Image{data: []byte{}, path: path}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "映射文件", Err: err}
	}
	return &Image{data: m, path: path, mapped: m}, nil
}

// FromBytes wraps an in-memory buffer. The buffer must not be modified afterwards.
func FromBytes(name string, data []byte) *Image {
	return &Image{data: data, path: name}
}

// Close releases the mapping, if any. The image must not be used afterwards.
func (img *Image) Close() error {
	if img.mapped == nil {
		return nil
	}
	err := img.mapped.Unmap()
	img.mapped = nil
	img.data = nil
	return err
}

// Bytes returns the underlying buffer. Callers must treat it as read-only.
func (img *Image) Bytes() []byte {
	return img.data
}

// Path returns the path or name the image was loaded from.
func (img *Image) Path() string {
	return img.path
}

// Size returns the image size in bytes.
func (img *Image) Size() int64 {
	return int64(len(img.data))
}
