package array

import "unsafe"

// copySliceToStorage copies a Go slice into a storage buffer safely.
func copySliceToStorage[T any](data []T, dst []byte) {
	if len(data) == 0 || len(dst) == 0 {
		return
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	srcLen := len(data) * elemSize
	if srcLen > len(dst) {
		srcLen = len(dst)
	}
	srcBytes := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), srcLen)
	copy(dst, srcBytes)
}

// ptrSlice interprets a storage's memory as a typed slice.
func ptrSlice[T any](b []byte, n int) []T {
	if n == 0 || len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// Float32s returns the concrete values of an eager float32 array,
// nil for symbolic values.
func (a *Array) Float32s() []float32 {
	if a.store == nil {
		return nil
	}
	return ptrSlice[float32](a.store.Bytes(), a.n)
}

// Uint64s returns the concrete values of an eager uint64 array,
// nil for symbolic values.
func (a *Array) Uint64s() []uint64 {
	if a.store == nil {
		return nil
	}
	return ptrSlice[uint64](a.store.Bytes(), a.n)
}
