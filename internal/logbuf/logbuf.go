// Package logbuf provides the bounded in-memory event trail shared by the
// advertise and scan roles. It backs the export path and keeps memory flat
// during long sessions.
package logbuf

import (
	"strings"
	"sync"
)

// DefaultCapacity bounds a session trail to roughly the last few minutes
// of traffic at typical tick rates.
const DefaultCapacity = 500

// Buffer is a fixed-capacity FIFO of log lines. Once full, each append
// evicts the oldest line, so steady-state size equals capacity. Safe for
// concurrent use; writers and readers may run on different goroutines.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	lines    []string
}

// New returns a buffer holding at most capacity lines. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append adds a line, evicting the oldest one first when the buffer is at
// capacity.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) >= b.capacity {
		n := copy(b.lines, b.lines[len(b.lines)-b.capacity+1:])
		b.lines = b.lines[:n]
	}
	b.lines = append(b.lines, line)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Len returns the current number of lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Lines returns a copy of the buffered lines in insertion order.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Dump concatenates all lines in insertion order, one per row, for export.
func (b *Buffer) Dump() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}
