package pluginapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttr_Has(t *testing.T) {
	a := AttrReuse | AttrReadonly
	assert.True(t, a.Has(AttrReuse))
	assert.True(t, a.Has(AttrReadonly))
	assert.False(t, Attr(0).Has(AttrReuse))
}

func TestAttr_String(t *testing.T) {
	assert.Equal(t, "none", Attr(0).String())
	assert.Equal(t, "REUSE", AttrReuse.String())
	assert.Equal(t, "READONLY", AttrReadonly.String())
	assert.Equal(t, "REUSE|READONLY", (AttrReuse | AttrReadonly).String())
}

func TestShape_WithoutChannel(t *testing.T) {
	s := Shape{256, 256, 4}
	assert.Equal(t, Shape{256, 256}, s.WithoutChannel())

	flat := Shape{128}
	assert.Equal(t, Shape{128}, flat.WithoutChannel())
}

func TestShape_Len(t *testing.T) {
	s := Shape{4, 4, 4}
	assert.Equal(t, int64(64), s.Len())
}

func TestStage_Valid(t *testing.T) {
	assert.True(t, StageOpen.Valid())
	assert.True(t, StagePrep.Valid())
	assert.True(t, StageCode.Valid())
	assert.True(t, StageOut.Valid())
	assert.False(t, Stage("bogus").Valid())
}
