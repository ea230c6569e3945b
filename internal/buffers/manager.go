package buffers

import "github.com/emofalling/img2arr/internal/pluginapi"

// Manager holds the ordered list of intermediate buffers for one
// pipeline's preprocessing chain, plus a cursor marking "the buffer the
// iterator considers the current output position".
type Manager struct {
	buffers []*Buffer
	cursor  int
}

// NewManager returns an empty buffer manager with its cursor before the
// first buffer.
func NewManager() *Manager {
	return &Manager{cursor: -1}
}

// Len returns the number of buffers currently allocated.
func (m *Manager) Len() int {
	return len(m.buffers)
}

// ResetCursor moves the cursor back to "before the first buffer", without
// discarding any buffers. Called at the start of each Pre run.
func (m *Manager) ResetCursor() {
	m.cursor = -1
}

// CursorIndex returns the buffer-list index the cursor currently points
// at, or -1 if the cursor is before the first buffer.
func (m *Manager) CursorIndex() int {
	return m.cursor
}

// Current returns the buffer at the cursor, or false if the cursor is
// before the first buffer.
func (m *Manager) Current() (*Buffer, bool) {
	if m.cursor < 0 || m.cursor >= len(m.buffers) {
		return nil, false
	}
	return m.buffers[m.cursor], true
}

// NextBuf advances the cursor by one. If the cursor passes the end of the
// list, a new buffer of the given shape is appended. If it lands on an
// existing buffer whose shape differs, that buffer is resized in place —
// safe because the iterator guarantees no reader/writer is mid-access.
func (m *Manager) NextBuf(shape pluginapi.Shape) *Buffer {
	m.cursor++
	if m.cursor >= len(m.buffers) {
		buf := newBuffer(shape)
		m.buffers = append(m.buffers, buf)
		return buf
	}
	buf := m.buffers[m.cursor]
	if !shapeEqual(buf.Shape, shape) {
		buf.resize(shape)
	}
	return buf
}

// SeekWriter positions the cursor on the buffer whose writers include
// nodeIndex, for resuming a chain mid-way through without replaying the
// nodes before the effective start. Reports false (cursor left at -1) if
// no buffer was ever written by nodeIndex.
func (m *Manager) SeekWriter(nodeIndex int) bool {
	for i, b := range m.buffers {
		if b.HasWriter(nodeIndex) {
			m.cursor = i
			return true
		}
	}
	m.cursor = -1
	return false
}

// ClearAfter drops every buffer beyond cursor+1.
func (m *Manager) ClearAfter(cursor int) {
	if cursor+1 < len(m.buffers) {
		m.buffers = m.buffers[:cursor+1]
	}
}

// Reset drops every buffer and resets the cursor.
func (m *Manager) Reset() {
	m.buffers = nil
	m.cursor = -1
}

// EffectiveStart implements get_available_index: walking buffers newest
// to oldest, the first buffer whose writers include i yields its earliest
// writer as the effective start. If no buffer was ever written by i, the
// effective start is i itself.
func (m *Manager) EffectiveStart(i int) int {
	for k := len(m.buffers) - 1; k >= 0; k-- {
		if m.buffers[k].HasWriter(i) {
			if w, ok := m.buffers[k].FirstWriter(); ok {
				return w
			}
		}
	}
	return i
}

// ClearProvenanceFrom drops every reader/writer entry >= effectiveStart
// across all buffers, so the next run's reuse decisions reflect only the
// recomputed suffix of the chain.
func (m *Manager) ClearProvenanceFrom(effectiveStart int) {
	for _, b := range m.buffers {
		b.clearProvenanceFrom(effectiveStart)
	}
}

func shapeEqual(a, b pluginapi.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
