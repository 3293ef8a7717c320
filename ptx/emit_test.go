package ptx

import (
	"strings"
	"testing"

	"github.com/djeday123/gojit/core"
	"github.com/djeday123/gojit/trace"
)

var testCfg = Config{Version: "6.3", TargetSM: 75}

// buildHypot records a = in, b = in, out = sqrt(a*a + b*b) with the two
// consts created before the range.
func buildHypot(t *testing.T) (*trace.Table, Session) {
	t.Helper()
	tab := trace.NewTable()
	a := tab.CreateConst(core.Float32, 1)
	b := tab.CreateConst(core.Float32, 2)
	tab.Label(a, "a")
	tab.Label(b, "b")

	start := tab.Len()
	tab.SetSession(1)
	aa, err := tab.Create(trace.OpSqr, core.Float32, a)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bb, _ := tab.Create(trace.OpSqr, core.Float32, b)
	sum, _ := tab.Create(trace.OpAdd, core.Float32, aa, bb)
	out, _ := tab.Create(trace.OpSqrt, core.Float32, sum)
	tab.Label(out, "c")
	tab.SetSession(0)

	return tab, Session{
		Name:       "my_function",
		RangeStart: start,
		RangeEnd:   tab.Len(),
		Inputs:     []trace.ID{a, b},
		Outputs:    []trace.ID{out},
	}
}

func TestEmitHeaderAndBody(t *testing.T) {
	tab, s := buildHypot(t)
	k, err := Emit(tab, testCfg, s)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.HasPrefix(k.Text, ".version ") {
		t.Errorf("module does not start with .version: %q", k.Text[:20])
	}
	for _, want := range []string{
		".target sm_75",
		".address_size 64",
		".func my_function",
		"// a",
		"// b",
		"// c",
		"ld.param.u64 %rd0, [in_0];",
		"ld.global.f32 %f0, [%rd0];",
		"mul.rn.ftz.f32 %f2, %f0, %f0;",
		"add.ftz.f32 %f4, %f2, %f3;",
		"sqrt.rn.ftz.f32 %f5, %f4;",
		"st.global.f32 [%rd2], %f5;",
		"ret;",
	} {
		if !strings.Contains(k.Text, want) {
			t.Errorf("module missing %q\n%s", want, k.Text)
		}
	}
	if k.Layout.Len() != 0 {
		t.Errorf("declared inputs classified as globals: %v", k.Layout.Entries())
	}
}

func TestLabelPrecedesUse(t *testing.T) {
	tab, s := buildHypot(t)
	k, err := Emit(tab, testCfg, s)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if n := strings.Count(k.Text, "// b"); n != 1 {
		t.Fatalf("label comment appears %d times, want 1", n)
	}
	comment := strings.Index(k.Text, "// b")
	use := strings.Index(k.Text, "%f1, %f1")
	if use < comment {
		t.Errorf("label comment appears after the value's use")
	}
}

func TestEmitDeterministic(t *testing.T) {
	tab1, s1 := buildHypot(t)
	tab2, s2 := buildHypot(t)
	k1, err := Emit(tab1, testCfg, s1)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	k2, err := Emit(tab2, testCfg, s2)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if k1.Text != k2.Text {
		t.Errorf("identical traces produced different text:\n%s\n---\n%s", k1.Text, k2.Text)
	}
	// And re-emitting the same table is also identical.
	k3, _ := Emit(tab1, testCfg, s1)
	if k1.Text != k3.Text {
		t.Error("re-emission of same table differs")
	}
}

func TestGlobalsLayoutOrderAndOffsets(t *testing.T) {
	tab := trace.NewTable()
	ga := tab.CreateConst(core.Float32, 1)
	gb := tab.CreateConst(core.Float32, 2)
	gg := tab.CreateConst(core.Float32, 3)
	tab.Label(ga, "my_a")
	tab.Label(gb, "my_b")
	tab.Label(gg, "my_g")

	start := tab.Len()
	tab.SetSession(1)
	sum, err := tab.Create(trace.OpAdd, core.Float32, ga, gb)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	out, _ := tab.Create(trace.OpMul, core.Float32, sum, gg)
	tab.SetSession(0)

	k, err := Emit(tab, testCfg, Session{
		Name:       "capture",
		RangeStart: start,
		RangeEnd:   tab.Len(),
		Outputs:    []trace.ID{out},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	entries := k.Layout.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d globals, want 3: %v", len(entries), entries)
	}
	wantNames := []string{"my_a", "my_b", "my_g"}
	wantOffsets := []int{0, 4, 8}
	for i, e := range entries {
		if e.Name != wantNames[i] || e.Offset != wantOffsets[i] {
			t.Errorf("entry %d = (%s, %d), want (%s, %d)",
				i, e.Name, e.Offset, wantNames[i], wantOffsets[i])
		}
	}

	for _, want := range []string{
		"__globals_buf[12]",
		"ld.global.f32 %f0, [__globals_buf+0];",
		"ld.global.f32 %f1, [__globals_buf+4];",
		"ld.global.f32 %f2, [__globals_buf+8];",
	} {
		if !strings.Contains(k.Text, want) {
			t.Errorf("module missing %q\n%s", want, k.Text)
		}
	}
}

func TestLayoutPadsToAlignment(t *testing.T) {
	l := newLayout()
	l.add(1, "f", core.Float32)  // offset 0, size 4
	l.add(2, "d", core.Float64)  // pads to 8
	l.add(3, "g", core.Float32)  // offset 16
	got := l.Entries()
	wantOffsets := []int{0, 8, 16}
	for i, e := range got {
		if e.Offset != wantOffsets[i] {
			t.Errorf("entry %d offset = %d, want %d", i, e.Offset, wantOffsets[i])
		}
	}
	if l.Size() != 20 {
		t.Errorf("layout size = %d, want 20", l.Size())
	}
}

func TestLayoutPacked(t *testing.T) {
	l := newLayout()
	l.add(1, "my_a", core.Float32)
	l.add(2, "b", core.Float32)
	names, lens, offsets := l.Packed()
	if string(names) != "my_ab" {
		t.Errorf("packed names = %q, want my_ab", names)
	}
	if len(lens) != 2 || lens[0] != 4 || lens[1] != 1 {
		t.Errorf("packed lens = %v, want [4 1]", lens)
	}
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 4 {
		t.Errorf("packed offsets = %v, want [0 4]", offsets)
	}
}

func TestScatterTargetMustBeBuffer(t *testing.T) {
	tab := trace.NewTable()
	start := tab.Len()
	tab.SetSession(1)
	// Target computed inside the range: nowhere to atomically write.
	target := tab.CreateConst(core.Float32, 0)
	value := tab.CreateConst(core.Float32, 1)
	idx, err := tab.Create(trace.OpArange, core.UInt64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tab.Create(trace.OpScatterAdd, core.Float32, target, value, idx); err != nil {
		t.Fatalf("Create: %v", err)
	}
	tab.SetSession(0)

	_, err = Emit(tab, testCfg, Session{
		Name:       "bad",
		RangeStart: start,
		RangeEnd:   tab.Len(),
	})
	if err == nil {
		t.Fatal("in-range scatter target accepted")
	}
}
