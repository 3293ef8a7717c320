package cpu

// Host memory backend. Backs eager-mode array evaluation; nothing here
// can fail, so the fatal-on-error contract is trivially satisfied.

import (
	"unsafe"

	"github.com/djeday123/gojit/backend"
)

// storage is a CPU memory buffer backed by a Go byte slice.
type storage struct {
	data []byte
}

func (s *storage) Device() backend.Device { return backend.CPU0 }

func (s *storage) Ptr() uintptr {
	if len(s.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s.data[0]))
}

func (s *storage) Bytes() []byte { return s.data }
func (s *storage) ByteLen() int  { return len(s.data) }
func (s *storage) Free()         { s.data = nil }

// Backend implements backend.Backend on host memory.
type Backend struct{}

func init() {
	backend.Register(&Backend{})
}

func (b *Backend) Name() string                   { return "cpu" }
func (b *Backend) DeviceType() backend.DeviceType { return backend.CPU }

func (b *Backend) Alloc(byteLen int) backend.Storage {
	return &storage{data: make([]byte, byteLen)}
}

func (b *Backend) AllocZeroed(byteLen int) backend.Storage {
	// make zeroes already
	return b.Alloc(byteLen)
}

func (b *Backend) Free(s backend.Storage) { s.Free() }

func (b *Backend) CopyToDevice(dst backend.Storage, src []byte) {
	copy(dst.Bytes(), src)
}

func (b *Backend) CopyFromDevice(dst []byte, src backend.Storage) {
	copy(dst, src.Bytes())
}
