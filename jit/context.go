package jit

// Recording sessions. A Context owns one variable table, one gradient
// engine and the Idle -> Recording -> Finalizing -> Idle state machine of
// kernel extraction. The zero-effort way to use it is the package-level
// default context; tests and embedders can run independent contexts side
// by side.
//
// The pipeline itself is synchronous — tracing, differentiation and
// emission are a compiler pass, not a runtime. The mutex only guards the
// session state so that concurrent StartRecording calls fail with
// ErrAlreadyRecording instead of corrupting the capture.

import (
	"errors"
	"sync"

	"github.com/djeday123/gojit/autograd"
	"github.com/djeday123/gojit/pkg/config"
	"github.com/djeday123/gojit/ptx"
	"github.com/djeday123/gojit/trace"
)

var (
	// ErrAlreadyRecording reports a StartRecording while a session is open.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrInvalidState reports a session call outside the state it needs.
	ErrInvalidState = errors.New("invalid recording state")
	// ErrNoOutputsOrSideEffects reports an extraction with no observable
	// effect: nothing declared as output, nothing writing memory.
	ErrNoOutputsOrSideEffects = errors.New("recording has no outputs or side effects")
)

// State of the session machine.
type State uint8

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	}
	return "unknown"
}

// Value is anything holding a trace variable, typically an array.Array.
type Value interface {
	TraceID() trace.ID
}

// Context owns the state of one extraction pipeline instance.
type Context struct {
	mu     sync.Mutex
	cfg    *config.Config
	tab    *trace.Table
	engine *autograd.Engine

	state      State
	serial     uint64
	name       string
	rangeStart int
	inputs     []trace.ID
	outputs    []trace.ID

	module    string
	hasModule bool
	layout    *ptx.Layout
}

// NewContext creates an independent context. A nil cfg uses defaults.
func NewContext(cfg *config.Config) *Context {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	tab := trace.NewTable()
	return &Context{
		cfg:    cfg,
		tab:    tab,
		engine: autograd.NewEngine(tab),
	}
}

// Table exposes the variable table for the tracing front end.
func (c *Context) Table() *trace.Table { return c.tab }

// Recording reports whether a session is currently capturing operations.
func (c *Context) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Recording
}

// StartRecording opens a session extracting a function with the given
// name. Fails with ErrAlreadyRecording when a session is already open,
// leaving the in-progress capture untouched.
func (c *Context) StartRecording(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrAlreadyRecording
	}
	c.serial++
	c.state = Recording
	c.name = name
	c.rangeStart = c.tab.Len()
	c.inputs = nil
	c.outputs = nil
	c.tab.SetSession(c.serial)
	return nil
}

// DeclareInputs registers the function parameters, in order. Only legal
// while recording.
func (c *Context) DeclareInputs(vs ...Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return ErrInvalidState
	}
	for _, v := range vs {
		if _, err := c.tab.Get(v.TraceID()); err != nil {
			return err
		}
		c.inputs = append(c.inputs, v.TraceID())
	}
	return nil
}

// DeclareOutputs registers the function results, in order. Each output
// picks up a reference, like any other use of the variable.
func (c *Context) DeclareOutputs(vs ...Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return ErrInvalidState
	}
	for _, v := range vs {
		if err := c.tab.Incref(v.TraceID()); err != nil {
			return err
		}
		c.outputs = append(c.outputs, v.TraceID())
	}
	return nil
}

// StopRecording finalizes the session: partitions referenced variables
// into inputs, outputs and globals, lowers the captured subgraph to PTX
// and stores the text and globals layout. The session is consumed either
// way — on failure the capture is discarded rather than left half open.
func (c *Context) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return ErrInvalidState
	}
	c.state = Finalizing
	defer func() {
		c.tab.SetSession(0)
		c.tab.CloseSession(c.serial)
		c.engine.Reset()
		c.state = Idle
	}()

	rangeEnd := c.tab.Len()
	if len(c.outputs) == 0 && !c.rangeHasSideEffect(rangeEnd) {
		return ErrNoOutputsOrSideEffects
	}

	kernel, err := ptx.Emit(c.tab, ptx.Config{
		Version:  c.cfg.PTX.Version,
		TargetSM: c.cfg.PTX.TargetSM,
	}, ptx.Session{
		Name:       c.name,
		RangeStart: c.rangeStart,
		RangeEnd:   rangeEnd,
		Inputs:     c.inputs,
		Outputs:    c.outputs,
	})
	if err != nil {
		return err
	}
	c.module = kernel.Text
	c.layout = kernel.Layout
	c.hasModule = true
	return nil
}

func (c *Context) rangeHasSideEffect(rangeEnd int) bool {
	for i := c.rangeStart + 1; i <= rangeEnd; i++ {
		if c.tab.MustGet(trace.ID(i)).Op.SideEffect() {
			return true
		}
	}
	return false
}

// ModuleText returns the text of the most recently completed extraction.
// The second result is false until a session has ever completed. Repeated
// calls return identical text.
func (c *Context) ModuleText() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.module, c.hasModule
}

// Globals returns the layout table of the most recent extraction, nil if
// none has completed.
func (c *Context) Globals() []ptx.GlobalEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layout == nil {
		return nil
	}
	return c.layout.Entries()
}

// GlobalsSize returns the byte size of the globals buffer of the most
// recent extraction, zero if none has completed or no globals exist.
func (c *Context) GlobalsSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layout == nil {
		return 0
	}
	return c.layout.Size()
}

// GlobalsPacked exports the layout as flat (names, lengths, offsets)
// buffers, ownership transferred to the caller.
func (c *Context) GlobalsPacked() (names []byte, lens []int32, offsets []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layout == nil {
		return nil, nil, nil
	}
	return c.layout.Packed()
}

// SetGradient seeds v's gradient slot with the value of grad.
func (c *Context) SetGradient(v, grad Value) error {
	return c.engine.SetGradient(v.TraceID(), grad.TraceID())
}

// Backward propagates all seeded gradients to the leaves, recording the
// synthesized gradient arithmetic into the open session.
func (c *Context) Backward() error {
	return c.engine.Backward()
}

// GradientID returns the trace node accumulating v's gradient, InvalidID
// if no gradient has reached it.
func (c *Context) GradientID(v Value) (trace.ID, error) {
	return c.engine.Gradient(v.TraceID())
}
