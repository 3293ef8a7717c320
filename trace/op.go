package trace

import "fmt"

// Op identifies the operation that produced a variable. The set is closed:
// the PTX emitter and the differentiation engine each keep an explicit
// per-kind rule table, so adding a kind here means extending those tables.
type Op uint8

const (
	// OpConst holds a scalar immediate, either written by the user or
	// produced by an eager computation outside a recording window.
	OpConst Op = iota
	// OpArange is the lane index of the executing thread.
	OpArange
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpSqrt
	// OpSqr is x*x, kept as its own kind so the derivative rule can use
	// the closed form 2x instead of the generic product rule.
	OpSqr
	// OpScatterAdd atomically accumulates operand 1 into the buffer of
	// operand 0 at the element index of operand 2. Side-effecting: it is
	// a root for code generation even when no output is declared.
	OpScatterAdd
	opCount
)

type opInfo struct {
	name       string
	arity      int
	sideEffect bool
}

var opInfos = [opCount]opInfo{
	OpConst:      {"const", 0, false},
	OpArange:     {"arange", 0, false},
	OpAdd:        {"add", 2, false},
	OpSub:        {"sub", 2, false},
	OpMul:        {"mul", 2, false},
	OpDiv:        {"div", 2, false},
	OpNeg:        {"neg", 1, false},
	OpSqrt:       {"sqrt", 1, false},
	OpSqr:        {"sqr", 1, false},
	OpScatterAdd: {"scatter_add", 3, true},
}

func (o Op) String() string {
	if o < opCount {
		return opInfos[o].name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Arity returns the number of operands the kind requires.
func (o Op) Arity() int { return opInfos[o].arity }

// SideEffect reports whether the kind writes memory on its own, which
// makes it a code-generation root independent of declared outputs.
func (o Op) SideEffect() bool { return opInfos[o].sideEffect }
