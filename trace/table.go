package trace

import (
	"errors"
	"fmt"

	"github.com/djeday123/gojit/core"
)

// ErrInvalidReference reports a malformed graph edge: an operand that does
// not exist or was created after the node referencing it.
var ErrInvalidReference = errors.New("invalid variable reference")

// ErrStaleReference reports a reference to a variable owned by a recording
// session that has already been closed.
var ErrStaleReference = errors.New("stale variable reference")

// ID names one variable in the table. IDs are assigned from a monotonic
// counter starting at 1; InvalidID (zero) is never a valid variable.
type ID uint32

const InvalidID ID = 0

// Variable is one node of the trace graph. Operands always reference
// variables created strictly earlier, so creation order is a topological
// order and the graph is a DAG by construction. Operand lists are never
// mutated after creation; Label, Grad and Refs are the only mutable fields.
type Variable struct {
	ID       ID
	Op       Op
	Operands []ID
	Type     core.DType
	Imm      float64 // payload, OpConst only
	Refs     int
	Label    string
	Grad     ID     // accumulated gradient slot, InvalidID if none
	Session  uint64 // serial of the owning recording session, 0 = outside any
	NeedGrad bool
}

// Table is the append-only arena holding every variable traced by one
// context. All sessions of a context share the table; the counter is never
// rewound, so an ID is unambiguous for the lifetime of the context.
type Table struct {
	vars    []Variable
	session uint64 // serial stamped on new variables, 0 while idle
	closed  uint64 // highest session serial already finalized
}

func NewTable() *Table {
	return &Table{}
}

// Len returns the number of variables ever created. Variable IDs are
// 1..Len(), so Len()+1 is the ID the next Create call will assign.
func (t *Table) Len() int { return len(t.vars) }

// SetSession stamps subsequently created variables with the given session
// serial. Zero marks variables as created outside any recording window.
func (t *Table) SetSession(serial uint64) { t.session = serial }

// Session returns the serial currently stamped on new variables.
func (t *Table) Session() uint64 { return t.session }

// CloseSession records that the given session serial has been finalized.
// Variables stamped with it become stale for differentiation.
func (t *Table) CloseSession(serial uint64) {
	if serial > t.closed {
		t.closed = serial
	}
}

// Closed returns the highest finalized session serial.
func (t *Table) Closed() uint64 { return t.closed }

// Create appends a new variable computing op over the given operands and
// returns its ID. Operand references are validated: each must name an
// existing, earlier variable. Each operand's reference count is bumped and
// the gradient requirement propagates from operands to the new node.
func (t *Table) Create(op Op, typ core.DType, operands ...ID) (ID, error) {
	if want := op.Arity(); len(operands) != want {
		return InvalidID, fmt.Errorf("%s expects %d operands, got %d", op, want, len(operands))
	}
	id := ID(len(t.vars) + 1)
	need := false
	for _, o := range operands {
		v, err := t.get(o)
		if err != nil {
			return InvalidID, err
		}
		if v.ID >= id {
			return InvalidID, fmt.Errorf("%w: operand %d not older than node %d", ErrInvalidReference, o, id)
		}
		v.Refs++
		need = need || v.NeedGrad
	}
	t.vars = append(t.vars, Variable{
		ID:       id,
		Op:       op,
		Operands: append([]ID(nil), operands...),
		Type:     typ,
		Session:  t.session,
		NeedGrad: need,
	})
	return id, nil
}

// CreateConst appends a scalar constant node.
func (t *Table) CreateConst(typ core.DType, imm float64) ID {
	id := ID(len(t.vars) + 1)
	t.vars = append(t.vars, Variable{
		ID:      id,
		Op:      OpConst,
		Type:    typ,
		Imm:     imm,
		Session: t.session,
	})
	return id
}

func (t *Table) get(id ID) (*Variable, error) {
	if id == InvalidID || int(id) > len(t.vars) {
		return nil, fmt.Errorf("%w: no variable %d", ErrInvalidReference, id)
	}
	return &t.vars[id-1], nil
}

// Get returns the variable with the given ID.
func (t *Table) Get(id ID) (*Variable, error) {
	return t.get(id)
}

// MustGet is Get for IDs already known to be valid.
func (t *Table) MustGet(id ID) *Variable {
	v, err := t.get(id)
	if err != nil {
		panic(err)
	}
	return v
}

// Label attaches a human-readable name to a variable. Labels are cosmetic:
// the emitter prints them as comments and they never affect lowering.
func (t *Table) Label(id ID, text string) error {
	v, err := t.get(id)
	if err != nil {
		return err
	}
	v.Label = text
	return nil
}

// Incref bumps the reference count, used when a variable is registered as
// a function output rather than consumed as an operand.
func (t *Table) Incref(id ID) error {
	v, err := t.get(id)
	if err != nil {
		return err
	}
	v.Refs++
	return nil
}

// SetNeedGrad marks a variable as a differentiation leaf: the backward
// walk will propagate gradients into it.
func (t *Table) SetNeedGrad(id ID) error {
	v, err := t.get(id)
	if err != nil {
		return err
	}
	v.NeedGrad = true
	return nil
}
