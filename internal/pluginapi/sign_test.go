package pluginapi

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSign(t *testing.T) {
	buf := append([]byte("img2arr.prep.img.zoom"), 0)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	assert.Equal(t, "img2arr.prep.img.zoom", ReadSign(addr))
}

func TestReadSign_ZeroAddr(t *testing.T) {
	assert.Equal(t, "", ReadSign(0))
}

func TestReadSign_Empty(t *testing.T) {
	buf := []byte{0}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	assert.Equal(t, "", ReadSign(addr))
}

func TestCheckSign_Valid(t *testing.T) {
	err := CheckSign("img2arr.prep.img.zoom", StagePrep, "img")
	require.NoError(t, err)
}

func TestCheckSign_WrongStage(t *testing.T) {
	err := CheckSign("img2arr.code.img.foo", StagePrep, "img")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestCheckSign_WrongCategory(t *testing.T) {
	err := CheckSign("img2arr.prep.video.foo", StagePrep, "img")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}
