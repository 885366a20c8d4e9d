package flash

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Medium is the raw backing store under a Controller. It has no flash
// semantics of its own.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Sync() error
	Close() error
}

// MemoryMedium keeps the region in a byte slice.
type MemoryMedium struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryMedium creates an erased in-memory medium of size bytes.
func NewMemoryMedium(size int64) *MemoryMedium {
	data := make([]byte, size)
	for i := range data {
		data[i] = ErasedByte
	}
	return &MemoryMedium{data: data}
}

// NewMemoryMediumFrom creates a medium holding a copy of image.
func NewMemoryMediumFrom(image []byte) *MemoryMedium {
	return &MemoryMedium{data: append([]byte(nil), image...)}
}

func (m *MemoryMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("%w: read %d bytes at %d", ErrOutOfRange, len(p), off)
	}
	return copy(p, m.data[off:]), nil
}

func (m *MemoryMedium) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("%w: write %d bytes at %d", ErrOutOfRange, len(p), off)
	}
	return copy(m.data[off:], p), nil
}

func (m *MemoryMedium) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

// Bytes returns a copy of the medium content.
func (m *MemoryMedium) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data...)
}

func (m *MemoryMedium) Sync() error  { return nil }
func (m *MemoryMedium) Close() error { return nil }

// FileMedium keeps the region in an image file, so a shell session or a
// server sees the same flash content across restarts.
type FileMedium struct {
	file *os.File
	size int64
}

// OpenFileMedium opens the image at path, creating an erased image of size
// bytes when the file does not exist.
func OpenFileMedium(path string, size int64) (*FileMedium, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash image: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat flash image: %w", err)
	}

	switch stat.Size() {
	case size:
	case 0:
		if err := fillErased(file, size); err != nil {
			file.Close()
			return nil, err
		}
	default:
		file.Close()
		return nil, fmt.Errorf("%w: image %s is %d bytes, expected %d", ErrGeometryMismatch, path, stat.Size(), size)
	}

	return &FileMedium{file: file, size: size}, nil
}

func fillErased(file *os.File, size int64) error {
	chunk := make([]byte, 64*1024)
	for i := range chunk {
		chunk[i] = ErasedByte
	}

	for off := int64(0); off < size; off += int64(len(chunk)) {
		n := int64(len(chunk))
		if size-off < n {
			n = size - off
		}
		if _, err := file.WriteAt(chunk[:n], off); err != nil {
			return fmt.Errorf("failed to initialize flash image: %w", err)
		}
	}
	return file.Sync()
}

func (f *FileMedium) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, fmt.Errorf("%w: read %d bytes at %d", ErrOutOfRange, len(p), off)
	}
	return f.file.ReadAt(p, off)
}

func (f *FileMedium) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, fmt.Errorf("%w: write %d bytes at %d", ErrOutOfRange, len(p), off)
	}
	return f.file.WriteAt(p, off)
}

func (f *FileMedium) Size() int64  { return f.size }
func (f *FileMedium) Sync() error  { return f.file.Sync() }
func (f *FileMedium) Close() error { return f.file.Close() }
