package jit_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/djeday123/gojit/array"
	"github.com/djeday123/gojit/jit"
)

func TestStartWhileRecording(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := array.Const(ctx, 1, 1)
	b := array.Const(ctx, 2, 1)

	if err := ctx.StartRecording("first"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	c, err := array.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := ctx.StartRecording("second"); !errors.Is(err, jit.ErrAlreadyRecording) {
		t.Fatalf("nested start: got %v, want ErrAlreadyRecording", err)
	}

	// The in-progress capture must be unaffected by the rejected start.
	if err := ctx.DeclareInputs(a, b); err != nil {
		t.Fatalf("DeclareInputs after rejected start: %v", err)
	}
	if err := ctx.DeclareOutputs(c); err != nil {
		t.Fatalf("DeclareOutputs after rejected start: %v", err)
	}
	if err := ctx.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	text, ok := ctx.ModuleText()
	if !ok {
		t.Fatal("no module after successful stop")
	}
	if !strings.Contains(text, ".func first") {
		t.Errorf("module lost the original session name:\n%s", text)
	}
}

func TestDeclareOutsideRecording(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := array.Const(ctx, 1, 1)

	if err := ctx.DeclareInputs(a); !errors.Is(err, jit.ErrInvalidState) {
		t.Errorf("DeclareInputs while idle: got %v, want ErrInvalidState", err)
	}
	if err := ctx.DeclareOutputs(a); !errors.Is(err, jit.ErrInvalidState) {
		t.Errorf("DeclareOutputs while idle: got %v, want ErrInvalidState", err)
	}
	if err := ctx.StopRecording(); !errors.Is(err, jit.ErrInvalidState) {
		t.Errorf("StopRecording while idle: got %v, want ErrInvalidState", err)
	}
}

func TestVacuousExtractionRejected(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := array.Const(ctx, 1, 1)
	b := array.Const(ctx, 2, 1)

	if err := ctx.StartRecording("nothing"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := array.Add(a, b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// No declared outputs, no side effects: zero observable effect.
	if err := ctx.StopRecording(); !errors.Is(err, jit.ErrNoOutputsOrSideEffects) {
		t.Fatalf("vacuous stop: got %v, want ErrNoOutputsOrSideEffects", err)
	}

	// Session is consumed either way; the context is reusable.
	if _, ok := ctx.ModuleText(); ok {
		t.Error("failed extraction produced a module")
	}
	if err := ctx.StartRecording("again"); err != nil {
		t.Errorf("context not reusable after failed stop: %v", err)
	}
}

func TestModuleTextIdempotent(t *testing.T) {
	ctx := jit.NewContext(nil)
	a := array.Const(ctx, 1, 1)
	b := array.Const(ctx, 2, 1)

	if _, ok := ctx.ModuleText(); ok {
		t.Fatal("module text available before any session completed")
	}

	if err := ctx.StartRecording("f"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	c, err := array.Mul(a, b)
	if err != nil {
		t.Fatalf("Mul: %v", err)
	}
	if err := ctx.DeclareInputs(a, b); err != nil {
		t.Fatalf("DeclareInputs: %v", err)
	}
	if err := ctx.DeclareOutputs(c); err != nil {
		t.Fatalf("DeclareOutputs: %v", err)
	}
	if err := ctx.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	t1, ok1 := ctx.ModuleText()
	t2, ok2 := ctx.ModuleText()
	if !ok1 || !ok2 {
		t.Fatal("module text missing after stop")
	}
	if t1 != t2 {
		t.Error("repeated ModuleText calls differ")
	}
}

func TestConcurrentStartsFailDeterministically(t *testing.T) {
	ctx := jit.NewContext(nil)
	const n = 8
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errCh <- ctx.StartRecording("race") }()
	}
	won, lost := 0, 0
	for i := 0; i < n; i++ {
		switch err := <-errCh; {
		case err == nil:
			won++
		case errors.Is(err, jit.ErrAlreadyRecording):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != n-1 {
		t.Errorf("got %d winners and %d rejections, want 1 and %d", won, lost, n-1)
	}
}
