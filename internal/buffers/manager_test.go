package buffers

import (
	"testing"

	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_NextBuf_AppendsWhenCursorPassesEnd(t *testing.T) {
	m := NewManager()
	assert.Equal(t, 0, m.Len())

	buf := m.NextBuf(pluginapi.Shape{4, 4, 4})
	require.NotNil(t, buf)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, int64(64), int64(len(buf.Data)))
}

func TestManager_NextBuf_ResizesInPlaceOnShapeChange(t *testing.T) {
	m := NewManager()
	m.NextBuf(pluginapi.Shape{4, 4, 4})
	m.ResetCursor()

	buf := m.NextBuf(pluginapi.Shape{8, 8, 4})
	assert.Equal(t, 1, m.Len(), "resize in place, not append")
	assert.Equal(t, int64(256), int64(len(buf.Data)))
}

func TestManager_Current(t *testing.T) {
	m := NewManager()
	_, ok := m.Current()
	assert.False(t, ok)

	m.NextBuf(pluginapi.Shape{4, 4, 4})
	buf, ok := m.Current()
	require.True(t, ok)
	assert.NotNil(t, buf)
}

func TestManager_ClearAfter(t *testing.T) {
	m := NewManager()
	m.NextBuf(pluginapi.Shape{4, 4, 4})
	m.NextBuf(pluginapi.Shape{4, 4, 4})
	m.NextBuf(pluginapi.Shape{4, 4, 4})
	assert.Equal(t, 3, m.Len())

	m.ClearAfter(0)
	assert.Equal(t, 1, m.Len())
}

func TestManager_Reset(t *testing.T) {
	m := NewManager()
	m.NextBuf(pluginapi.Shape{4, 4, 4})
	m.Reset()
	assert.Equal(t, 0, m.Len())
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_EffectiveStart_NoBuffersReturnsRequestedIndex(t *testing.T) {
	m := NewManager()
	assert.Equal(t, 5, m.EffectiveStart(5))
}

func TestManager_EffectiveStart_FindsEarliestWriter(t *testing.T) {
	m := NewManager()
	buf := m.NextBuf(pluginapi.Shape{4, 4, 4})
	buf.AddWriter(0)
	buf.AddWriter(1)

	assert.Equal(t, 0, m.EffectiveStart(1))
}

func TestManager_ClearProvenanceFrom(t *testing.T) {
	m := NewManager()
	buf := m.NextBuf(pluginapi.Shape{4, 4, 4})
	buf.AddWriter(0)
	buf.AddWriter(1)
	buf.AddReader(0)
	buf.AddReader(1)

	m.ClearProvenanceFrom(1)

	assert.Equal(t, []int{0}, buf.Writers)
	assert.Equal(t, []int{0}, buf.Readers)
}

func TestBuffer_AddReaderAddWriter_Idempotent(t *testing.T) {
	buf := newBuffer(pluginapi.Shape{4, 4, 4})
	buf.AddReader(2)
	buf.AddReader(2)
	buf.AddWriter(3)
	buf.AddWriter(3)

	assert.Equal(t, []int{2}, buf.Readers)
	assert.Equal(t, []int{3}, buf.Writers)
}

func TestBuffer_FirstWriter(t *testing.T) {
	buf := newBuffer(pluginapi.Shape{4, 4, 4})
	_, ok := buf.FirstWriter()
	assert.False(t, ok)

	buf.AddWriter(5)
	buf.AddWriter(6)
	w, ok := buf.FirstWriter()
	require.True(t, ok)
	assert.Equal(t, 5, w)
}
