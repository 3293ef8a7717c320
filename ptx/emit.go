package ptx

// PTX emitter for recorded trace graphs.
//
// One recording session becomes one .visible .func. Lowering walks the
// captured subgraph in creation order (creation order is already a
// topological order), assigns one virtual register per node (first use,
// never reused — determinism over density) and prints one instruction
// per line. Variables referenced inside the range but created outside it
// load either from the parameter list (declared inputs) or from the
// __globals_buf byte buffer at their layout offset.
//
// The output is deterministic: the same table and session always produce
// byte-identical text.

import (
	"fmt"
	"math"
	"strings"

	"github.com/djeday123/gojit/core"
	"github.com/djeday123/gojit/trace"
)

// GlobalsSymbol is the module-level buffer holding captured globals.
const GlobalsSymbol = "__globals_buf"

// Config selects the header directives of the emitted module.
type Config struct {
	Version  string // .version directive, e.g. "6.3"
	TargetSM int    // .target sm_<N>, e.g. 75
}

// Session describes one finalized recording to lower.
type Session struct {
	Name       string
	RangeStart int // table length when recording started; IDs <= RangeStart are captured from outside
	RangeEnd   int // table length when recording stopped
	Inputs     []trace.ID
	Outputs    []trace.ID
}

// Kernel is the result of lowering one session.
type Kernel struct {
	Name   string
	Text   string
	Layout *Layout
}

const ind = "    "

type emitter struct {
	tab *trace.Table
	cfg Config
	s   Session

	inputIdx map[trace.ID]int
	reach    map[trace.ID]bool
	valUse   map[trace.ID]bool
	addrUse  map[trace.ID]bool
	layout   *Layout

	valReg  map[trace.ID]string
	addrReg map[trace.ID]string
	counts  map[string]int
	body    []string
}

// Emit lowers the session against the table and returns the PTX text and
// the globals layout.
func Emit(tab *trace.Table, cfg Config, s Session) (*Kernel, error) {
	e := &emitter{
		tab:      tab,
		cfg:      cfg,
		s:        s,
		inputIdx: make(map[trace.ID]int),
		reach:    make(map[trace.ID]bool),
		valUse:   make(map[trace.ID]bool),
		addrUse:  make(map[trace.ID]bool),
		layout:   newLayout(),
		valReg:   make(map[trace.ID]string),
		addrReg:  make(map[trace.ID]string),
		counts:   make(map[string]int),
	}
	for i, id := range s.Inputs {
		e.inputIdx[id] = i
	}
	if err := e.discover(); err != nil {
		return nil, err
	}
	if err := e.lower(); err != nil {
		return nil, err
	}
	return &Kernel{Name: s.Name, Text: e.assemble(), Layout: e.layout}, nil
}

// discover computes the minimal subgraph reachable from the declared
// outputs and every side-effecting node in range, marking for each node
// whether it is needed as a value, as an address, or both. Globals are
// assigned layout offsets in the order discovery first reaches them.
func (e *emitter) discover() error {
	var roots []trace.ID
	for _, id := range e.s.Outputs {
		e.valUse[id] = true
		roots = append(roots, id)
	}
	for i := e.s.RangeStart + 1; i <= e.s.RangeEnd; i++ {
		id := trace.ID(i)
		if e.tab.MustGet(id).Op.SideEffect() {
			roots = append(roots, id)
		}
	}
	for _, r := range roots {
		e.dfs(r)
	}
	return nil
}

// dfs walks preorder from one root, operands scanned left to right.
// The first operand-scan hit wins the globals slot, which fixes the
// layout order.
func (e *emitter) dfs(root trace.ID) {
	stack := []trace.ID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.reach[id] {
			continue
		}
		e.reach[id] = true

		v := e.tab.MustGet(id)
		if int(id) <= e.s.RangeStart {
			if _, declared := e.inputIdx[id]; !declared {
				e.layout.add(id, globalName(v), v.Type)
			}
		}

		for i := len(v.Operands) - 1; i >= 0; i-- {
			o := v.Operands[i]
			if v.Op == trace.OpScatterAdd && i == 0 {
				e.addrUse[o] = true
			} else {
				e.valUse[o] = true
			}
			if !e.reach[o] {
				stack = append(stack, o)
			}
		}
	}
}

func globalName(v *trace.Variable) string {
	if v.Label != "" {
		return v.Label
	}
	return fmt.Sprintf("v%d", v.ID)
}

func (e *emitter) newReg(class string) string {
	n := e.counts[class]
	e.counts[class]++
	return fmt.Sprintf("%%%s%d", class, n)
}

func (e *emitter) emitf(format string, args ...any) {
	e.body = append(e.body, ind+fmt.Sprintf(format, args...))
}

// note prints the cosmetic label comment ahead of a node's instructions.
func (e *emitter) note(v *trace.Variable) {
	if v.Label != "" {
		e.body = append(e.body, ind+"// "+v.Label)
	}
}

// lower emits every needed node in creation order, then the output stores.
func (e *emitter) lower() error {
	for i := 1; i <= e.s.RangeEnd; i++ {
		id := trace.ID(i)
		_, isInput := e.inputIdx[id]
		if !e.reach[id] && !isInput {
			continue
		}
		if err := e.lowerNode(id); err != nil {
			return err
		}
	}

	for k, id := range e.s.Outputs {
		v := e.tab.MustGet(id)
		ptr := e.newReg("rd")
		e.emitf("ld.param.u64 %s, [out_%d];", ptr, k)
		e.emitf("st.global.%s [%s], %s;", v.Type.PTXType(), ptr, e.valReg[id])
	}
	e.emitf("ret;")
	return nil
}

func (e *emitter) lowerNode(id trace.ID) error {
	v := e.tab.MustGet(id)

	if idx, ok := e.inputIdx[id]; ok {
		e.note(v)
		ptr := e.newReg("rd")
		e.emitf("ld.param.u64 %s, [in_%d];", ptr, idx)
		e.addrReg[id] = ptr
		if e.valUse[id] {
			r := e.newReg(v.Type.PTXRegClass())
			e.emitf("ld.global.%s %s, [%s];", v.Type.PTXType(), r, ptr)
			e.valReg[id] = r
		}
		return nil
	}

	if off, ok := e.layout.Offset(id); ok {
		e.note(v)
		if e.addrUse[id] {
			base := e.newReg("rd")
			addr := e.newReg("rd")
			e.emitf("mov.u64 %s, %s;", base, GlobalsSymbol)
			e.emitf("add.u64 %s, %s, %d;", addr, base, off)
			e.addrReg[id] = addr
		}
		if e.valUse[id] {
			r := e.newReg(v.Type.PTXRegClass())
			e.emitf("ld.global.%s %s, [%s+%d];", v.Type.PTXType(), r, GlobalsSymbol, off)
			e.valReg[id] = r
		}
		return nil
	}

	// Node created inside the recorded range.
	switch v.Op {
	case trace.OpConst:
		e.note(v)
		r := e.newReg(v.Type.PTXRegClass())
		e.emitf("mov.%s %s, %s;", v.Type.PTXType(), r, immediate(v.Type, v.Imm))
		e.valReg[id] = r

	case trace.OpArange:
		e.note(v)
		tid := e.newReg("r")
		bid := e.newReg("r")
		idx := e.newReg("r")
		r := e.newReg("rd")
		e.emitf("mov.u32 %s, %%tid.x;", tid)
		e.emitf("mov.u32 %s, %%ctaid.x;", bid)
		e.emitf("mad.lo.u32 %s, %s, 256, %s;", idx, bid, tid)
		e.emitf("cvt.u64.u32 %s, %s;", r, idx)
		e.valReg[id] = r

	case trace.OpAdd, trace.OpSub, trace.OpMul, trace.OpDiv:
		e.note(v)
		a, b := e.valReg[v.Operands[0]], e.valReg[v.Operands[1]]
		r := e.newReg(v.Type.PTXRegClass())
		e.emitf("%s %s, %s, %s;", arithMnemonic(v.Op, v.Type), r, a, b)
		e.valReg[id] = r

	case trace.OpNeg, trace.OpSqrt:
		e.note(v)
		a := e.valReg[v.Operands[0]]
		r := e.newReg(v.Type.PTXRegClass())
		e.emitf("%s %s, %s;", arithMnemonic(v.Op, v.Type), r, a)
		e.valReg[id] = r

	case trace.OpSqr:
		e.note(v)
		a := e.valReg[v.Operands[0]]
		r := e.newReg(v.Type.PTXRegClass())
		e.emitf("%s %s, %s, %s;", arithMnemonic(trace.OpMul, v.Type), r, a, a)
		e.valReg[id] = r

	case trace.OpScatterAdd:
		target, value, index := v.Operands[0], v.Operands[1], v.Operands[2]
		base, ok := e.addrReg[target]
		if !ok {
			return fmt.Errorf("%w: scatter_add target %d is neither an input nor a global buffer",
				trace.ErrInvalidReference, target)
		}
		e.note(v)
		vt := e.tab.MustGet(value).Type
		scaled := e.newReg("rd")
		addr := e.newReg("rd")
		old := e.newReg(vt.PTXRegClass())
		e.emitf("mul.lo.u64 %s, %s, %d;", scaled, e.valReg[index], vt.Size())
		e.emitf("add.u64 %s, %s, %s;", addr, base, scaled)
		e.emitf("atom.global.add.%s %s, [%s], %s;", vt.PTXType(), old, addr, e.valReg[value])
		e.valReg[id] = old

	default:
		return fmt.Errorf("cannot lower %s node %d", v.Op, id)
	}
	return nil
}

// assemble stitches header, register declarations and body together.
func (e *emitter) assemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, ".version %s\n", e.cfg.Version)
	fmt.Fprintf(&b, ".target sm_%d\n", e.cfg.TargetSM)
	b.WriteString(".address_size 64\n\n")

	if e.layout.Size() > 0 {
		fmt.Fprintf(&b, ".global .align 8 .b8 %s[%d];\n\n", GlobalsSymbol, e.layout.Size())
	}

	fmt.Fprintf(&b, ".visible .func %s(", e.s.Name)
	params := make([]string, 0, len(e.s.Inputs)+len(e.s.Outputs))
	for i := range e.s.Inputs {
		params = append(params, fmt.Sprintf("%s.param .u64 in_%d", ind, i))
	}
	for i := range e.s.Outputs {
		params = append(params, fmt.Sprintf("%s.param .u64 out_%d", ind, i))
	}
	if len(params) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(params, ",\n"))
		b.WriteString("\n")
	}
	b.WriteString(")\n{\n")

	decls := [...]struct{ class, typ string }{
		{"f", ".f32"}, {"fd", ".f64"}, {"r", ".u32"}, {"rd", ".u64"},
	}
	for _, d := range decls {
		if n := e.counts[d.class]; n > 0 {
			fmt.Fprintf(&b, "%s.reg %s %%%s<%d>;\n", ind, d.typ, d.class, n)
		}
	}
	b.WriteString("\n")

	for _, line := range e.body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// immediate prints a scalar constant in the form PTX expects: hex float
// for floating point, plain decimal for integers.
func immediate(t core.DType, imm float64) string {
	switch t {
	case core.Float32:
		return fmt.Sprintf("0f%08X", math.Float32bits(float32(imm)))
	case core.Float64:
		return fmt.Sprintf("0d%016X", math.Float64bits(imm))
	default:
		return fmt.Sprintf("%d", int64(imm))
	}
}

// arithMnemonic is the closed per-kind lowering table for arithmetic.
func arithMnemonic(op trace.Op, t core.DType) string {
	f32 := t == core.Float32
	switch op {
	case trace.OpAdd:
		if f32 {
			return "add.ftz.f32"
		}
		return "add." + t.PTXType()
	case trace.OpSub:
		if f32 {
			return "sub.ftz.f32"
		}
		return "sub." + t.PTXType()
	case trace.OpMul:
		if f32 {
			return "mul.rn.ftz.f32"
		}
		if t == core.Float64 {
			return "mul.rn.f64"
		}
		return "mul.lo." + t.PTXType()
	case trace.OpDiv:
		if f32 {
			return "div.rn.ftz.f32"
		}
		if t == core.Float64 {
			return "div.rn.f64"
		}
		return "div." + t.PTXType()
	case trace.OpNeg:
		if f32 {
			return "neg.ftz.f32"
		}
		return "neg." + t.PTXType()
	case trace.OpSqrt:
		if f32 {
			return "sqrt.rn.ftz.f32"
		}
		return "sqrt.rn." + t.PTXType()
	default:
		panic(fmt.Sprintf("no mnemonic for %s", op))
	}
}
