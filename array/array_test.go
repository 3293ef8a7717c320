package array

import (
	"math"
	"strings"
	"testing"

	"github.com/djeday123/gojit/core"
	"github.com/djeday123/gojit/jit"
)

func TestEagerArithmetic(t *testing.T) {
	ctx := jit.NewContext(nil)
	a, err := FromSlice(ctx, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	b, err := FromSlice(ctx, []float32{4, 5, 6})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := []float32{5, 7, 9}
	for i, v := range sum.Float32s() {
		if v != want[i] {
			t.Errorf("sum[%d] = %v, want %v", i, v, want[i])
		}
	}

	prod, err := Mul(a, b)
	if err != nil {
		t.Fatalf("Mul: %v", err)
	}
	wantP := []float32{4, 10, 18}
	for i, v := range prod.Float32s() {
		if v != wantP[i] {
			t.Errorf("prod[%d] = %v, want %v", i, v, wantP[i])
		}
	}
}

func TestEagerBroadcastScalar(t *testing.T) {
	ctx := jit.NewContext(nil)
	a, _ := FromSlice(ctx, []float32{1, 2, 3})
	s := Const(ctx, 10, 1)

	sum, err := Add(a, s)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := sum.Float32s(); got[0] != 11 || got[2] != 13 {
		t.Errorf("broadcast sum = %v", got)
	}

	if _, err := Add(a, Const(ctx, 0, 2)); err == nil {
		t.Error("incompatible lengths accepted")
	}
}

func TestEagerHypot(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := Const(ctx, 3, 1)
	b := Const(ctx, 4, 1)
	c, err := Hypot(a, b)
	if err != nil {
		t.Fatalf("Hypot: %v", err)
	}
	if got := c.Float32s()[0]; math.Abs(float64(got)-5) > 1e-6 {
		t.Errorf("hypot(3,4) = %v, want 5", got)
	}
}

func TestEagerScatterAdd(t *testing.T) {
	ctx := jit.NewContext(nil)
	target := Zeros(ctx, 4)
	value, _ := FromSlice(ctx, []float32{1, 2})
	index, err := Arange(ctx, 2)
	if err != nil {
		t.Fatalf("Arange: %v", err)
	}
	if err := ScatterAdd(target, value, index); err != nil {
		t.Fatalf("ScatterAdd: %v", err)
	}
	got := target.Float32s()
	if got[0] != 1 || got[1] != 2 || got[2] != 0 {
		t.Errorf("target = %v, want [1 2 0 0]", got)
	}
}

func TestRecordingProducesSymbolicValues(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := Const(ctx, 1, 1)
	b := Const(ctx, 2, 1)
	if a.Symbolic() {
		t.Error("constant should carry concrete storage")
	}

	if err := ctx.StartRecording("sym"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	c, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !c.Symbolic() {
		t.Error("recorded result should be symbolic")
	}
	if c.Float32s() != nil {
		t.Error("symbolic value has concrete data")
	}
	if c.TraceID() <= b.TraceID() {
		t.Error("recorded node not created after its operands")
	}

	if err := ctx.DeclareOutputs(c); err != nil {
		t.Fatalf("DeclareOutputs: %v", err)
	}
	if err := ctx.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
}

func TestDTypeMismatchRejected(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := Const(ctx, 1, 2)
	idx, err := Arange(ctx, 2)
	if err != nil {
		t.Fatalf("Arange: %v", err)
	}
	if _, err := Add(a, idx); err == nil {
		t.Error("float32 + uint64 accepted")
	}
	if err := ScatterAdd(a, a, a); err == nil {
		t.Error("float32 scatter index accepted")
	}
}

func TestNonUniformDataMustPredateRecording(t *testing.T) {
	ctx := jit.NewContext(nil)
	data, err := FromSlice(ctx, []float32{1, 5, 9})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}

	if err := ctx.StartRecording("cap"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	// Only uniform data has a scalar immediate to lower to.
	if _, err := FromSlice(ctx, []float32{2, 7, 2}); err == nil {
		t.Error("non-uniform constant accepted during recording")
	}
	uniform, err := FromSlice(ctx, []float32{2, 2, 2})
	if err != nil {
		t.Fatalf("uniform FromSlice during recording: %v", err)
	}

	sum, err := Add(data, uniform)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ctx.DeclareOutputs(sum); err != nil {
		t.Fatalf("DeclareOutputs: %v", err)
	}
	if err := ctx.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	// The pre-session values load from the globals buffer, not from an
	// immediate holding their first element.
	text, _ := ctx.ModuleText()
	if !strings.Contains(text, "ld.global.f32") || !strings.Contains(text, "__globals_buf") {
		t.Errorf("captured data not bound through the globals buffer:\n%s", text)
	}
	if strings.Contains(text, "mov.f32 %f0, 0f3F800000") {
		t.Errorf("captured data lowered to a first-element immediate:\n%s", text)
	}
}

func TestArangeValues(t *testing.T) {
	ctx := jit.NewContext(nil)
	idx, err := Arange(ctx, 3)
	if err != nil {
		t.Fatalf("Arange: %v", err)
	}
	if idx.DType() != core.UInt64 {
		t.Errorf("dtype = %s, want uint64", idx.DType())
	}
	got := idx.Uint64s()
	for i, v := range got {
		if v != uint64(i) {
			t.Errorf("idx[%d] = %d", i, v)
		}
	}
}
