package backend

// Device memory collaborators for the tracing array type. The extraction
// pipeline itself never touches device memory; these exist so eager-mode
// arrays have real storage and so an extracted PTX module can be loaded
// and launched. A platform call that fails leaves device state corrupted
// with no recovery path, so every implementation terminates the process
// on error instead of returning one.

import "fmt"

// DeviceType represents the compute device.
type DeviceType uint8

const (
	CPU DeviceType = iota
	CUDA
)

func (d DeviceType) String() string {
	names := [...]string{"cpu", "cuda"}
	if int(d) < len(names) {
		return names[d]
	}
	return fmt.Sprintf("device(%d)", d)
}

// Device identifies a specific device (type + index).
type Device struct {
	Type  DeviceType
	Index int // GPU index, 0 for CPU
}

var CPU0 = Device{Type: CPU, Index: 0}

func CUDADevice(index int) Device { return Device{Type: CUDA, Index: index} }

func (d Device) String() string {
	if d.Type == CPU {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

// Storage represents a raw memory buffer on a device.
type Storage interface {
	// Device returns which device this storage lives on.
	Device() Device

	// Ptr returns the raw address of the data. For CPU this is a host
	// pointer, for GPU a device pointer.
	Ptr() uintptr

	// Bytes returns the underlying byte slice (CPU only, nil for GPU).
	Bytes() []byte

	// ByteLen returns the total size in bytes.
	ByteLen() int

	// Free releases the memory.
	Free()
}

// Backend is the memory-management surface each device must provide.
type Backend interface {
	Name() string
	DeviceType() DeviceType

	Alloc(byteLen int) Storage
	AllocZeroed(byteLen int) Storage
	Free(s Storage)

	CopyToDevice(dst Storage, src []byte)
	CopyFromDevice(dst []byte, src Storage)
}

// Registry holds all available backends.
var registry = map[DeviceType]Backend{}

// Register adds a backend to the global registry.
func Register(b Backend) {
	registry[b.DeviceType()] = b
}

// Get returns the backend for a device type.
func Get(dt DeviceType) (Backend, error) {
	b, ok := registry[dt]
	if !ok {
		return nil, fmt.Errorf("backend %s not registered", dt)
	}
	return b, nil
}

// GetForDevice returns the backend for a specific device.
func GetForDevice(d Device) (Backend, error) {
	return Get(d.Type)
}
