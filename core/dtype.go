package core

import "fmt"

// DType represents the scalar element type of an array.
type DType uint8

const (
	Float32 DType = iota
	Float64
	Int32
	Int64
	UInt32
	UInt64
	Bool
)

// Size returns the byte size of one element.
func (d DType) Size() int {
	switch d {
	case Float32, Int32, UInt32:
		return 4
	case Float64, Int64, UInt64:
		return 8
	case Bool:
		return 1
	default:
		panic(fmt.Sprintf("unknown dtype: %d", d))
	}
}

// Alignment returns the natural alignment of the type, used when laying
// out the globals buffer. Equal to Size for every supported scalar.
func (d DType) Alignment() int {
	return d.Size()
}

func (d DType) String() string {
	names := [...]string{"float32", "float64", "int32", "int64", "uint32", "uint64", "bool"}
	if int(d) < len(names) {
		return names[d]
	}
	return fmt.Sprintf("dtype(%d)", d)
}

// IsFloat returns true for floating point types.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// PTXType returns the PTX type suffix for loads, stores and arithmetic
// on this element type (without the leading dot).
func (d DType) PTXType() string {
	switch d {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Int32:
		return "s32"
	case Int64:
		return "s64"
	case UInt32:
		return "u32"
	case UInt64:
		return "u64"
	case Bool:
		return "pred"
	default:
		panic(fmt.Sprintf("unknown dtype: %d", d))
	}
}

// PTXRegClass returns the virtual register class prefix used for values
// of this type: "f" for f32, "fd" for f64, "r" for 32-bit integers and
// "rd" for 64-bit integers.
func (d DType) PTXRegClass() string {
	switch d {
	case Float32:
		return "f"
	case Float64:
		return "fd"
	case Int32, UInt32, Bool:
		return "r"
	case Int64, UInt64:
		return "rd"
	default:
		panic(fmt.Sprintf("unknown dtype: %d", d))
	}
}
