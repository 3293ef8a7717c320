package ptx

import (
	"github.com/djeday123/gojit/core"
	"github.com/djeday123/gojit/trace"
)

// GlobalEntry binds one captured global to its byte offset inside the
// shared __globals_buf buffer.
type GlobalEntry struct {
	ID     trace.ID
	Name   string
	Type   core.DType
	Offset int
}

// Layout assigns byte offsets to globals in first-reachable order. Each
// offset is the running total of the previously laid out element sizes,
// padded to the natural alignment of the entry's type.
type Layout struct {
	entries []GlobalEntry
	byID    map[trace.ID]int // index into entries
	size    int
}

func newLayout() *Layout {
	return &Layout{byID: make(map[trace.ID]int)}
}

func (l *Layout) add(id trace.ID, name string, typ core.DType) {
	if _, ok := l.byID[id]; ok {
		return
	}
	align := typ.Alignment()
	off := (l.size + align - 1) / align * align
	l.byID[id] = len(l.entries)
	l.entries = append(l.entries, GlobalEntry{ID: id, Name: name, Type: typ, Offset: off})
	l.size = off + typ.Size()
}

// Len returns the number of globals.
func (l *Layout) Len() int { return len(l.entries) }

// Size returns the total byte size of the globals buffer.
func (l *Layout) Size() int { return l.size }

// Entries returns the layout in offset order. The slice is a copy.
func (l *Layout) Entries() []GlobalEntry {
	return append([]GlobalEntry(nil), l.entries...)
}

// Offset returns the byte offset of the given variable, if it is a global.
func (l *Layout) Offset(id trace.ID) (int, bool) {
	i, ok := l.byID[id]
	if !ok {
		return 0, false
	}
	return l.entries[i].Offset, true
}

// Packed exports the table as flat buffers: the concatenated name bytes,
// the per-entry name lengths and the per-entry offsets. All three slices
// are freshly allocated; the caller owns them.
func (l *Layout) Packed() (names []byte, lens []int32, offsets []int32) {
	lens = make([]int32, 0, len(l.entries))
	offsets = make([]int32, 0, len(l.entries))
	for _, e := range l.entries {
		names = append(names, e.Name...)
		lens = append(lens, int32(len(e.Name)))
		offsets = append(offsets, int32(e.Offset))
	}
	return names, lens, offsets
}
