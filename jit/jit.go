package jit

import "github.com/djeday123/gojit/ptx"

// Default is the process-wide context used by the package-level helpers,
// mirroring the one-recorder-per-process model of the array front end.
var Default = NewContext(nil)

// StartRecording opens a session on the default context.
func StartRecording(name string) error { return Default.StartRecording(name) }

// DeclareInputs registers function parameters on the default context.
func DeclareInputs(vs ...Value) error { return Default.DeclareInputs(vs...) }

// DeclareOutputs registers function results on the default context.
func DeclareOutputs(vs ...Value) error { return Default.DeclareOutputs(vs...) }

// StopRecording finalizes the open session on the default context.
func StopRecording() error { return Default.StopRecording() }

// ModuleText returns the most recent module of the default context.
func ModuleText() (string, bool) { return Default.ModuleText() }

// Globals returns the globals table of the default context.
func Globals() []ptx.GlobalEntry { return Default.Globals() }

// GlobalsPacked exports the default context's globals table as flat
// buffers owned by the caller.
func GlobalsPacked() ([]byte, []int32, []int32) { return Default.GlobalsPacked() }

// Backward runs gradient propagation on the default context.
func Backward() error { return Default.Backward() }
