package cuda

// Loading and launching extracted PTX modules.
// Loaded at runtime via cuModuleLoadData — no nvcc needed.

import (
	"fmt"
	"log"
	"unsafe"
)

// Module is one loaded PTX module with its resolved kernel entry points.
type Module struct {
	backend *Backend
	hmod    uintptr
	funcs   map[string]uintptr
}

// LoadModule uploads PTX text to the driver and returns the loaded module.
// Malformed PTX is a caller bug, reported as an error rather than a fatal
// stop, because no device state has been touched yet.
func (b *Backend) LoadModule(ptx string) (*Module, error) {
	b.ensureInit()
	image := append([]byte(ptx), 0) // null-terminate
	var hmod uintptr
	if r := cuModuleLoadData(&hmod, unsafe.Pointer(&image[0])); r != CUDA_SUCCESS {
		return nil, fmt.Errorf("cuModuleLoadData: %s", r.Error())
	}
	return &Module{backend: b, hmod: hmod, funcs: make(map[string]uintptr)}, nil
}

// Function resolves a kernel by name, caching the handle.
func (m *Module) Function(name string) (uintptr, error) {
	if fn, ok := m.funcs[name]; ok {
		return fn, nil
	}
	nameBytes := append([]byte(name), 0)
	var fn uintptr
	if r := cuModuleGetFunction(&fn, m.hmod, &nameBytes[0]); r != CUDA_SUCCESS {
		return 0, fmt.Errorf("cuModuleGetFunction(%s): %s", name, r.Error())
	}
	m.funcs[name] = fn
	return fn, nil
}

// Launch runs a kernel over n elements with 256 threads per block and
// waits for completion. params are device pointers in declaration order.
func (m *Module) Launch(name string, n int, params ...uintptr) error {
	fn, err := m.Function(name)
	if err != nil {
		return err
	}

	args := make([]unsafe.Pointer, len(params))
	for i := range params {
		args[i] = unsafe.Pointer(&params[i])
	}
	var argp unsafe.Pointer
	if len(args) > 0 {
		argp = unsafe.Pointer(&args[0])
	}

	blocks := uint32((n + 255) / 256)
	if blocks == 0 {
		blocks = 1
	}
	if r := cuLaunchKernel(fn, blocks, 1, 1, 256, 1, 1, 0, m.backend.stream, argp, nil); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuLaunchKernel(%s): %s", name, r.Error())
	}
	m.backend.Synchronize()
	return nil
}

// Unload releases the module.
func (m *Module) Unload() {
	if m.hmod == 0 {
		return
	}
	if r := cuModuleUnload(m.hmod); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuModuleUnload: %s", r.Error())
	}
	m.hmod = 0
}
