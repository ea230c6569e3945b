// Package buffers owns the ordered list of reusable intermediate byte
// buffers the preprocessing iterator reads from and writes to, along with
// each buffer's reader/writer provenance.
package buffers

import "github.com/emofalling/img2arr/internal/pluginapi"

// Buffer is a dynamically resizable byte region plus the node indices that
// have consumed (readers) or produced (writers) it. Readers/writers are
// kept in first-insertion order: Writers[0] is the earliest node that
// still needed this buffer's current contents, the fact the effective
// start-index resolution depends on.
type Buffer struct {
	Data    []byte
	Shape   pluginapi.Shape
	Readers []int
	Writers []int
}

func newBuffer(shape pluginapi.Shape) *Buffer {
	b := &Buffer{}
	b.resize(shape)
	return b
}

func (b *Buffer) resize(shape pluginapi.Shape) {
	b.Shape = shape
	size := shape.Len()
	if int64(cap(b.Data)) < size {
		b.Data = make([]byte, size)
	} else {
		b.Data = b.Data[:size]
		clear(b.Data)
	}
}

// AddReader idempotently records that node i has read this buffer.
func (b *Buffer) AddReader(i int) {
	if !contains(b.Readers, i) {
		b.Readers = append(b.Readers, i)
	}
}

// AddWriter idempotently records that node i has written this buffer.
func (b *Buffer) AddWriter(i int) {
	if !contains(b.Writers, i) {
		b.Writers = append(b.Writers, i)
	}
}

// EnsureShape resizes the buffer in place if shape differs from its
// current one. Used when a REUSE node aliases its output onto its input
// buffer without going through the manager's cursor.
func (b *Buffer) EnsureShape(shape pluginapi.Shape) {
	if !shapeEqual(b.Shape, shape) {
		b.resize(shape)
	}
}

// HasWriter reports whether node i is among this buffer's writers.
func (b *Buffer) HasWriter(i int) bool {
	return contains(b.Writers, i)
}

// FirstWriter returns the earliest recorded writer, if any.
func (b *Buffer) FirstWriter() (int, bool) {
	if len(b.Writers) == 0 {
		return 0, false
	}
	return b.Writers[0], true
}

// clearProvenanceFrom drops every reader/writer entry >= threshold.
func (b *Buffer) clearProvenanceFrom(threshold int) {
	b.Readers = filterBelow(b.Readers, threshold)
	b.Writers = filterBelow(b.Writers, threshold)
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func filterBelow(xs []int, threshold int) []int {
	out := xs[:0]
	for _, x := range xs {
		if x < threshold {
			out = append(out, x)
		}
	}
	return out
}
