package array

// Dual-mode arithmetic entry points. While the context records, each op
// validates operand compatibility, appends one node to the variable table
// and returns a symbolic handle. Otherwise the op evaluates elementwise
// on host storage and the result registers as a plain constant.

import (
	"fmt"
	"math"

	"github.com/djeday123/gojit/core"
	"github.com/djeday123/gojit/trace"
)

func checkBinary(a, b *Array) (int, error) {
	if a.ctx != b.ctx {
		return 0, fmt.Errorf("operands bound to different contexts")
	}
	if a.dtype != b.dtype {
		return 0, fmt.Errorf("dtype mismatch: %s vs %s", a.dtype, b.dtype)
	}
	if a.n == b.n || b.n == 1 {
		return a.n, nil
	}
	if a.n == 1 {
		return b.n, nil
	}
	return 0, fmt.Errorf("length mismatch: %d vs %d", a.n, b.n)
}

// at reads element i with length-1 broadcasting.
func at(data []float32, i int) float32 {
	if len(data) == 1 {
		return data[0]
	}
	return data[i]
}

func eagerResult(a *Array, data []float32) *Array {
	store := hostAlloc(len(data) * core.Float32.Size())
	copySliceToStorage(data, store.Bytes())
	id := a.ctx.Table().CreateConst(core.Float32, float64(data[0]))
	return &Array{ctx: a.ctx, id: id, dtype: core.Float32, n: len(data), store: store}
}

func binaryOp(op trace.Op, a, b *Array, eval func(x, y float32) float32) (*Array, error) {
	n, err := checkBinary(a, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.ctx.Recording() {
		id, err := a.ctx.Table().Create(op, a.dtype, a.id, b.id)
		if err != nil {
			return nil, err
		}
		return &Array{ctx: a.ctx, id: id, dtype: a.dtype, n: n}, nil
	}
	if a.dtype != core.Float32 {
		return nil, fmt.Errorf("%s: eager mode supports float32, got %s", op, a.dtype)
	}
	if a.Symbolic() || b.Symbolic() {
		return nil, fmt.Errorf("%s: operand has no concrete value outside a recording", op)
	}
	va, vb := a.Float32s(), b.Float32s()
	out := make([]float32, n)
	for i := range out {
		out[i] = eval(at(va, i), at(vb, i))
	}
	return eagerResult(a, out), nil
}

func unaryOp(op trace.Op, a *Array, eval func(x float32) float32) (*Array, error) {
	if a.ctx.Recording() {
		id, err := a.ctx.Table().Create(op, a.dtype, a.id)
		if err != nil {
			return nil, err
		}
		return &Array{ctx: a.ctx, id: id, dtype: a.dtype, n: a.n}, nil
	}
	if a.dtype != core.Float32 {
		return nil, fmt.Errorf("%s: eager mode supports float32, got %s", op, a.dtype)
	}
	if a.Symbolic() {
		return nil, fmt.Errorf("%s: operand has no concrete value outside a recording", op)
	}
	va := a.Float32s()
	out := make([]float32, a.n)
	for i := range out {
		out[i] = eval(va[i])
	}
	return eagerResult(a, out), nil
}

// Add performs element-wise addition.
func Add(a, b *Array) (*Array, error) {
	return binaryOp(trace.OpAdd, a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction.
func Sub(a, b *Array) (*Array, error) {
	return binaryOp(trace.OpSub, a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication.
func Mul(a, b *Array) (*Array, error) {
	return binaryOp(trace.OpMul, a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division.
func Div(a, b *Array) (*Array, error) {
	return binaryOp(trace.OpDiv, a, b, func(x, y float32) float32 { return x / y })
}

// Neg negates element-wise.
func Neg(a *Array) (*Array, error) {
	return unaryOp(trace.OpNeg, a, func(x float32) float32 { return -x })
}

// Sqrt takes the element-wise square root.
func Sqrt(a *Array) (*Array, error) {
	return unaryOp(trace.OpSqrt, a, func(x float32) float32 { return float32(math.Sqrt(float64(x))) })
}

// Sqr squares element-wise.
func Sqr(a *Array) (*Array, error) {
	return unaryOp(trace.OpSqr, a, func(x float32) float32 { return x * x })
}

// Hypot computes sqrt(a^2 + b^2), the square-root-of-sum-of-squares
// composition.
func Hypot(a, b *Array) (*Array, error) {
	aa, err := Sqr(a)
	if err != nil {
		return nil, err
	}
	bb, err := Sqr(b)
	if err != nil {
		return nil, err
	}
	sum, err := Add(aa, bb)
	if err != nil {
		return nil, err
	}
	return Sqrt(sum)
}

// ScatterAdd accumulates value into target at the positions of index:
// target[index[i]] += value[i]. While recording this appends a
// side-effecting node lowered to an atomic global add, because parallel
// execution lanes may hit the same destination address.
func ScatterAdd(target, value, index *Array) error {
	if target.ctx != value.ctx || target.ctx != index.ctx {
		return fmt.Errorf("scatter_add: operands bound to different contexts")
	}
	if target.dtype != value.dtype {
		return fmt.Errorf("scatter_add: dtype mismatch: %s vs %s", target.dtype, value.dtype)
	}
	if index.dtype != core.UInt64 {
		return fmt.Errorf("scatter_add: index must be uint64, got %s", index.dtype)
	}
	if target.ctx.Recording() {
		_, err := target.ctx.Table().Create(trace.OpScatterAdd, value.dtype,
			target.id, value.id, index.id)
		return err
	}
	if target.dtype != core.Float32 {
		return fmt.Errorf("scatter_add: eager mode supports float32, got %s", target.dtype)
	}
	if target.Symbolic() || value.Symbolic() || index.Symbolic() {
		return fmt.Errorf("scatter_add: operand has no concrete value outside a recording")
	}
	td, vd, id := target.Float32s(), value.Float32s(), index.Uint64s()
	for i := 0; i < value.n; i++ {
		pos := id[0]
		if len(id) > 1 {
			pos = id[i]
		}
		if int(pos) >= target.n {
			return fmt.Errorf("scatter_add: index %d out of range %d", pos, target.n)
		}
		td[pos] += at(vd, i)
	}
	return nil
}
