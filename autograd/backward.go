package autograd

// Reverse-mode differentiation over a recorded trace graph.
//
// The walk is an explicit reverse iteration over the arena: creation
// order is a forward topological order, so descending IDs are a valid
// reverse one. No recursion, no call-stack depth risk. Gradients are
// themselves trace nodes: the chain rule is applied symbolically, so
// the backward pass records straight into the kernel being extracted.

import (
	"fmt"

	"github.com/djeday123/gojit/trace"
)

// Engine accumulates symbolic gradients for one recording session.
// Slots map a variable to the node currently holding the sum of all
// gradient contributions that reached it so far.
type Engine struct {
	tab   *trace.Table
	slots map[trace.ID]trace.ID
}

func NewEngine(tab *trace.Table) *Engine {
	return &Engine{
		tab:   tab,
		slots: make(map[trace.ID]trace.ID),
	}
}

// Reset drops all gradient slots. Called when a session ends: slots from
// a finished extraction must not leak into the next one.
func (e *Engine) Reset() {
	e.slots = make(map[trace.ID]trace.ID)
}

// checkLive rejects variables owned by a session that has already been
// closed. Their graph may reference table slots the next session will
// treat as outside-range, so differentiating them is a contract bug.
func (e *Engine) checkLive(id trace.ID) (*trace.Variable, error) {
	v, err := e.tab.Get(id)
	if err != nil {
		return nil, err
	}
	if v.Session != 0 && v.Session <= e.tab.Closed() {
		return nil, fmt.Errorf("%w: variable %d belongs to closed session %d",
			trace.ErrStaleReference, id, v.Session)
	}
	return v, nil
}

// SetGradient seeds the slot of id with the given gradient variable.
func (e *Engine) SetGradient(id, grad trace.ID) error {
	if _, err := e.checkLive(id); err != nil {
		return err
	}
	if _, err := e.tab.Get(grad); err != nil {
		return err
	}
	e.slots[id] = grad
	return nil
}

// Gradient returns the accumulated gradient node for id, or InvalidID if
// no gradient has reached it.
func (e *Engine) Gradient(id trace.ID) (trace.ID, error) {
	if _, err := e.checkLive(id); err != nil {
		return trace.InvalidID, err
	}
	g, ok := e.slots[id]
	if !ok {
		return trace.InvalidID, nil
	}
	return g, nil
}

// Backward propagates every seeded gradient down to the leaves. Nodes
// are visited in reverse creation order; each visited node distributes
// its slot to its operands through the per-kind derivative rule, merging
// concurrent contributions with emitted add nodes. Propagation stops at
// operand-less nodes and at operands not marked as requiring gradients.
func (e *Engine) Backward() error {
	// New nodes synthesized during the walk get IDs beyond this bound;
	// they carry gradient values, not differentiated state, so the walk
	// must not visit them.
	for i := e.tab.Len(); i >= 1; i-- {
		id := trace.ID(i)
		g, ok := e.slots[id]
		if !ok {
			continue
		}
		v := e.tab.MustGet(id)
		if len(v.Operands) == 0 || !v.NeedGrad {
			continue
		}
		contribs, err := e.derive(v, g)
		if err != nil {
			return err
		}
		for j, o := range v.Operands {
			if contribs[j] == trace.InvalidID {
				continue
			}
			if !e.tab.MustGet(o).NeedGrad {
				continue
			}
			if err := e.accumulate(o, contribs[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// accumulate merges a new contribution into a slot, emitting an addition
// node when the slot already holds one.
func (e *Engine) accumulate(id, contrib trace.ID) error {
	prev, ok := e.slots[id]
	if !ok {
		e.slots[id] = contrib
		return nil
	}
	t := e.tab.MustGet(contrib).Type
	sum, err := e.tab.Create(trace.OpAdd, t, prev, contrib)
	if err != nil {
		return err
	}
	e.slots[id] = sum
	return nil
}

// derive applies the closed-form local derivative rule for v's kind and
// returns one gradient contribution per operand (InvalidID = none).
// Every rule synthesizes trace nodes; nothing is evaluated numerically.
func (e *Engine) derive(v *trace.Variable, g trace.ID) ([]trace.ID, error) {
	t := v.Type
	switch v.Op {
	case trace.OpAdd:
		// d(a+b)/da = 1, d(a+b)/db = 1
		return []trace.ID{g, g}, nil

	case trace.OpSub:
		// d(a-b)/db = -1
		ng, err := e.tab.Create(trace.OpNeg, t, g)
		if err != nil {
			return nil, err
		}
		return []trace.ID{g, ng}, nil

	case trace.OpMul:
		// d(a*b)/da = b, d(a*b)/db = a
		ga, err := e.tab.Create(trace.OpMul, t, g, v.Operands[1])
		if err != nil {
			return nil, err
		}
		gb, err := e.tab.Create(trace.OpMul, t, g, v.Operands[0])
		if err != nil {
			return nil, err
		}
		return []trace.ID{ga, gb}, nil

	case trace.OpDiv:
		// d(a/b)/da = 1/b, d(a/b)/db = -a/b^2
		ga, err := e.tab.Create(trace.OpDiv, t, g, v.Operands[1])
		if err != nil {
			return nil, err
		}
		num, err := e.tab.Create(trace.OpMul, t, g, v.Operands[0])
		if err != nil {
			return nil, err
		}
		den, err := e.tab.Create(trace.OpSqr, t, v.Operands[1])
		if err != nil {
			return nil, err
		}
		q, err := e.tab.Create(trace.OpDiv, t, num, den)
		if err != nil {
			return nil, err
		}
		gb, err := e.tab.Create(trace.OpNeg, t, q)
		if err != nil {
			return nil, err
		}
		return []trace.ID{ga, gb}, nil

	case trace.OpNeg:
		ng, err := e.tab.Create(trace.OpNeg, t, g)
		if err != nil {
			return nil, err
		}
		return []trace.ID{ng}, nil

	case trace.OpSqrt:
		// d(sqrt(x))/dx = 1 / (2*sqrt(x)); v itself is sqrt(x)
		two := e.tab.CreateConst(t, 2)
		den, err := e.tab.Create(trace.OpMul, t, two, v.ID)
		if err != nil {
			return nil, err
		}
		gx, err := e.tab.Create(trace.OpDiv, t, g, den)
		if err != nil {
			return nil, err
		}
		return []trace.ID{gx}, nil

	case trace.OpSqr:
		// d(x^2)/dx = 2x
		two := e.tab.CreateConst(t, 2)
		twoX, err := e.tab.Create(trace.OpMul, t, two, v.Operands[0])
		if err != nil {
			return nil, err
		}
		gx, err := e.tab.Create(trace.OpMul, t, g, twoX)
		if err != nil {
			return nil, err
		}
		return []trace.ID{gx}, nil

	case trace.OpScatterAdd:
		// Side effect, not a differentiable value.
		return []trace.ID{trace.InvalidID, trace.InvalidID, trace.InvalidID}, nil

	default:
		return nil, fmt.Errorf("no derivative rule for %s node %d", v.Op, v.ID)
	}
}
