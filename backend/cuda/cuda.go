package cuda

// CUDA memory backend -- implements backend.Backend over the Driver API.
//
// A failed driver call leaves device memory in an unknown state and the
// pipeline has no rollback for that, so every wrapper here is a
// process-terminating check: corruption is fatal, not an error value.
//
// Registration: import _ "github.com/djeday123/gojit/backend/cuda"
// init() registers the backend only when a CUDA driver and device exist,
// so binaries still run on machines without NVIDIA GPUs.

import (
	"log"
	"sync"
	"unsafe"

	"github.com/djeday123/gojit/backend"
)

// Storage is a device memory buffer.
type Storage struct {
	dptr uintptr
	n    int
	dev  backend.Device
}

func (s *Storage) Device() backend.Device { return s.dev }
func (s *Storage) Ptr() uintptr           { return s.dptr }
func (s *Storage) Bytes() []byte          { return nil }
func (s *Storage) ByteLen() int           { return s.n }

func (s *Storage) Free() {
	if s.dptr == 0 {
		return
	}
	if r := cuMemFree(s.dptr); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuMemFree: %s", r.Error())
	}
	s.dptr = 0
}

// Backend implements backend.Backend for NVIDIA GPUs.
type Backend struct {
	mu          sync.Mutex
	initialized bool

	deviceIdx int
	device    int32
	ctx       uintptr
	stream    uintptr
	info      *DeviceInfo
}

func init() {
	// Only register if the CUDA driver is available.
	if err := initDriver(); err != nil {
		return // silently skip -- CPU backend will be used
	}
	if r := cuInit(0); r != CUDA_SUCCESS {
		return // no CUDA devices
	}
	backend.Register(&Backend{})
}

func (b *Backend) Name() string                   { return "cuda" }
func (b *Backend) DeviceType() backend.DeviceType { return backend.CUDA }

// ensureInit performs lazy initialization on first use.
func (b *Backend) ensureInit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		cuCtxSetCurrent(b.ctx)
		return
	}

	if r := cuDeviceGet(&b.device, int32(b.deviceIdx)); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuDeviceGet(%d): %s", b.deviceIdx, r.Error())
	}
	if r := cuCtxCreate(&b.ctx, 0, b.device); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuCtxCreate: %s", r.Error())
	}
	if r := cuStreamCreate(&b.stream, CU_STREAM_NON_BLOCKING); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuStreamCreate: %s", r.Error())
	}

	info, err := QueryDevice(b.deviceIdx)
	if err != nil {
		log.Fatalf("cuda: QueryDevice: %v", err)
	}
	b.info = info
	b.initialized = true
}

// Info returns device information, initializing the backend if needed.
func (b *Backend) Info() *DeviceInfo {
	b.ensureInit()
	return b.info
}

func (b *Backend) Alloc(byteLen int) backend.Storage {
	b.ensureInit()
	var dptr uintptr
	if r := cuMemAlloc(&dptr, uint64(byteLen)); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuMemAlloc(%d): %s", byteLen, r.Error())
	}
	return &Storage{dptr: dptr, n: byteLen, dev: backend.CUDADevice(b.deviceIdx)}
}

func (b *Backend) AllocZeroed(byteLen int) backend.Storage {
	s := b.Alloc(byteLen)
	if r := cuMemsetD8(s.Ptr(), 0, uint64(byteLen)); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuMemsetD8: %s", r.Error())
	}
	return s
}

func (b *Backend) Free(s backend.Storage) { s.Free() }

func (b *Backend) CopyToDevice(dst backend.Storage, src []byte) {
	if len(src) == 0 {
		return
	}
	b.ensureInit()
	if r := cuMemcpyHtoD(dst.Ptr(), unsafe.Pointer(&src[0]), uint64(len(src))); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuMemcpyHtoD: %s", r.Error())
	}
}

func (b *Backend) CopyFromDevice(dst []byte, src backend.Storage) {
	if len(dst) == 0 {
		return
	}
	b.ensureInit()
	if r := cuMemcpyDtoH(unsafe.Pointer(&dst[0]), src.Ptr(), uint64(len(dst))); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuMemcpyDtoH: %s", r.Error())
	}
}

// Synchronize blocks until all work queued on the default stream is done.
func (b *Backend) Synchronize() {
	b.ensureInit()
	if r := cuStreamSynchronize(b.stream); r != CUDA_SUCCESS {
		log.Fatalf("cuda: cuStreamSynchronize: %s", r.Error())
	}
}
