package array

// Traced array values. An Array is a handle to one variable in the trace
// table of its context, optionally backed by concrete host storage when
// the value was computed eagerly (no recording session active) or written
// by the user. Operations are dual-mode: while a session records they
// append symbolic nodes, otherwise they evaluate against the CPU backend
// and register the concrete result as a constant.

import (
	"fmt"

	"github.com/djeday123/gojit/backend"
	_ "github.com/djeday123/gojit/backend/cpu" // eager mode needs host storage
	"github.com/djeday123/gojit/core"
	"github.com/djeday123/gojit/jit"
	"github.com/djeday123/gojit/trace"
)

// Array is a vector of scalars bound to a jit context.
type Array struct {
	ctx   *jit.Context
	id    trace.ID
	dtype core.DType
	n     int
	store backend.Storage // host data, nil for symbolic values
}

// TraceID returns the trace variable this array wraps. Implements
// jit.Value.
func (a *Array) TraceID() trace.ID { return a.id }

func (a *Array) Len() int              { return a.n }
func (a *Array) DType() core.DType     { return a.dtype }
func (a *Array) Context() *jit.Context { return a.ctx }

// Symbolic reports whether the value exists only as a trace node.
func (a *Array) Symbolic() bool { return a.store == nil }

func (a *Array) String() string {
	return fmt.Sprintf("Array(id=%d, dtype=%s, n=%d, symbolic=%v)",
		a.id, a.dtype, a.n, a.Symbolic())
}

// SetLabel names the array. Labels are cosmetic: the emitter prints them
// as comments and the globals table prefers them over generated names.
func (a *Array) SetLabel(text string) *Array {
	_ = a.ctx.Table().Label(a.id, text) // own id, always valid
	return a
}

// SetRequiresGradient marks the array as a differentiation leaf.
func (a *Array) SetRequiresGradient() *Array {
	_ = a.ctx.Table().SetNeedGrad(a.id) // own id, always valid
	return a
}

func ctxOrDefault(ctx *jit.Context) *jit.Context {
	if ctx == nil {
		return jit.Default
	}
	return ctx
}

func hostAlloc(byteLen int) backend.Storage {
	b, err := backend.Get(backend.CPU)
	if err != nil {
		panic(err) // cpu backend is imported above; cannot happen
	}
	return b.Alloc(byteLen)
}

// FromSlice creates a float32 array holding the given values. While a
// session records, a new constant lowers to a single scalar immediate,
// so only uniform data can be created; capture non-uniform data by
// creating it before the session starts, which classifies it as a
// global bound through the globals buffer.
func FromSlice(ctx *jit.Context, data []float32) (*Array, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty array")
	}
	ctx = ctxOrDefault(ctx)
	if ctx.Recording() {
		for _, v := range data[1:] {
			if v != data[0] {
				return nil, fmt.Errorf("non-uniform data cannot be traced as a constant while recording")
			}
		}
	}
	store := hostAlloc(len(data) * core.Float32.Size())
	copySliceToStorage(data, store.Bytes())
	id := ctx.Table().CreateConst(core.Float32, float64(data[0]))
	return &Array{ctx: ctx, id: id, dtype: core.Float32, n: len(data), store: store}, nil
}

// Const creates a float32 array of n copies of value.
func Const(ctx *jit.Context, value float64, n int) *Array {
	ctx = ctxOrDefault(ctx)
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(value)
	}
	store := hostAlloc(n * core.Float32.Size())
	copySliceToStorage(data, store.Bytes())
	id := ctx.Table().CreateConst(core.Float32, value)
	return &Array{ctx: ctx, id: id, dtype: core.Float32, n: n, store: store}
}

// Zeros creates a zero-filled float32 array of n elements.
func Zeros(ctx *jit.Context, n int) *Array {
	return Const(ctx, 0, n)
}

// Arange creates a uint64 index array [0, 1, ..., n-1]. While recording
// this is the lane index of the executing thread; eagerly it is the
// concrete sequence.
func Arange(ctx *jit.Context, n int) (*Array, error) {
	ctx = ctxOrDefault(ctx)
	if ctx.Recording() {
		id, err := ctx.Table().Create(trace.OpArange, core.UInt64)
		if err != nil {
			return nil, err
		}
		return &Array{ctx: ctx, id: id, dtype: core.UInt64, n: n}, nil
	}
	data := make([]uint64, n)
	for i := range data {
		data[i] = uint64(i)
	}
	store := hostAlloc(n * core.UInt64.Size())
	copySliceToStorage(data, store.Bytes())
	id := ctx.Table().CreateConst(core.UInt64, 0)
	return &Array{ctx: ctx, id: id, dtype: core.UInt64, n: n, store: store}, nil
}

// Gradient returns the accumulated gradient of a as a new array handle.
func Gradient(a *Array) (*Array, error) {
	id, err := a.ctx.GradientID(a)
	if err != nil {
		return nil, err
	}
	if id == trace.InvalidID {
		return nil, fmt.Errorf("no gradient has reached variable %d", a.id)
	}
	v := a.ctx.Table().MustGet(id)
	return &Array{ctx: a.ctx, id: id, dtype: v.Type, n: a.n}, nil
}

// SetGradient seeds the gradient slot of a with the value of grad.
func SetGradient(a, grad *Array) error {
	return a.ctx.SetGradient(a, grad)
}
