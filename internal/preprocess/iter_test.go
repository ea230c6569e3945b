package preprocess

import (
	"context"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emofalling/img2arr/internal/buffers"
	"github.com/emofalling/img2arr/internal/imgcodec"
	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/emofalling/img2arr/internal/workerpool"
)

// fakeKernel is a minimal pluginapi.Native double: it reports a fixed
// attribute bitfield and identity-shaped output, and fills its output
// buffer (when given one) with a marker byte so tests can tell whether a
// dispatch actually ran.
type fakeKernel struct {
	attr    pluginapi.Attr
	marker  byte
	rc      int32
	outSame bool // if true, out_shape mirrors in_shape
}

func (f *fakeKernel) Sign() string        { return "img2arr.prep.img.fake" }
func (f *fakeKernel) HasSingle() bool     { return true }
func (f *fakeKernel) HasMulti() bool      { return false }
func (f *fakeKernel) HasSingleView() bool { return false }
func (f *fakeKernel) HasMultiView() bool  { return false }

func (f *fakeKernel) GetOutInfo(args unsafe.Pointer, inShape pluginapi.Shape, outLen int) (pluginapi.Shape, pluginapi.Attr, error) {
	return append(pluginapi.Shape{}, inShape...), f.attr, nil
}
func (f *fakeKernel) GetViewOutInfo(args unsafe.Pointer, inShape pluginapi.Shape) (pluginapi.Shape, error) {
	return pluginapi.Shape{0, 0}, nil
}
func (f *fakeKernel) RunSingle(args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	if out != nil {
		n := inShape.Len() * 4
		dst := unsafe.Slice((*byte)(out), n)
		for i := range dst {
			dst[i] = f.marker
		}
	}
	return f.rc
}
func (f *fakeKernel) RunWorker(threads, idx int32, args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	return f.rc
}
func (f *fakeKernel) RunSingleView(args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	return f.rc
}
func (f *fakeKernel) RunWorkerView(threads, idx int32, args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	return f.rc
}
func (f *fakeKernel) Close() error { return nil }

var _ pluginapi.Native = (*fakeKernel)(nil)

func testImage() *imgcodec.Image {
	pix := make([]byte, 2*2*4)
	for i := range pix {
		pix[i] = byte(i + 1)
	}
	return &imgcodec.Image{Width: 2, Height: 2, Pix: pix}
}

func newPool(t *testing.T) *workerpool.Pool {
	p, err := workerpool.New(1)
	require.NoError(t, err)
	return p
}

func TestIter_SingleReadonlyHeadTail_PreEqualsImageBitwise(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeDefault})
	require.NoError(t, err)

	kernel := &fakeKernel{attr: pluginapi.AttrReadonly, marker: 0xFF}
	_, err = it.Next(context.Background(), "histogram", kernel, nil, true, true)
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.Len())
	assert.Equal(t, img.Pix, pre.Data, "READONLY kernel must not mutate pre's bytes")
}

func TestIter_ReuseDefaultMode_AliasesPriorBuffer(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeDefault})
	require.NoError(t, err)

	readonly := &fakeKernel{attr: pluginapi.AttrReadonly}
	_, err = it.Next(context.Background(), "histogram", readonly, nil, true, false)
	require.NoError(t, err)

	reuse := &fakeKernel{attr: pluginapi.AttrReuse, marker: 0xAB}
	_, err = it.Next(context.Background(), "brightness", reuse, nil, false, true)
	require.NoError(t, err)

	require.Equal(t, 1, mgr.Len(), "DEFAULT mode reuses node 0's buffer as node 1's output")
	for _, b := range pre.Data {
		assert.Equal(t, byte(0xAB), b)
	}
}

func TestIter_ReuseSpeedMode_AllocatesFreshBuffer(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeSpeed})
	require.NoError(t, err)

	readonly := &fakeKernel{attr: pluginapi.AttrReadonly}
	_, err = it.Next(context.Background(), "histogram", readonly, nil, true, false)
	require.NoError(t, err)

	reuse := &fakeKernel{attr: pluginapi.AttrReuse, marker: 0xAB}
	_, err = it.Next(context.Background(), "brightness", reuse, nil, false, true)
	require.NoError(t, err)

	assert.Equal(t, 2, mgr.Len(), "SPEED mode allocates a fresh buffer instead of aliasing")
}

func TestIter_EffectiveStart_DefaultModeRequiresFullRecompute(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeDefault})
	require.NoError(t, err)
	readonly := &fakeKernel{attr: pluginapi.AttrReadonly}
	_, err = it.Next(context.Background(), "histogram", readonly, nil, true, false)
	require.NoError(t, err)
	reuse := &fakeKernel{attr: pluginapi.AttrReuse}
	_, err = it.Next(context.Background(), "brightness", reuse, nil, false, true)
	require.NoError(t, err)

	resumed, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeDefault, StartIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, resumed.StartIndex(), "in-place aliasing destroyed node 0's standalone output; must recompute from 0")
}

func TestIter_EffectiveStart_SpeedModeAllowsPartialResume(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeSpeed})
	require.NoError(t, err)
	readonly := &fakeKernel{attr: pluginapi.AttrReadonly}
	_, err = it.Next(context.Background(), "histogram", readonly, nil, true, false)
	require.NoError(t, err)
	reuse := &fakeKernel{attr: pluginapi.AttrReuse}
	_, err = it.Next(context.Background(), "brightness", reuse, nil, false, true)
	require.NoError(t, err)

	resumed, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeSpeed, StartIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.StartIndex(), "node 0's buffer survived untouched; resume at node 1")
}

func TestIter_VirtualNode_IdentityAliasesPriorBuffer(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeDefault})
	require.NoError(t, err)

	real := &fakeKernel{attr: pluginapi.Attr(0), marker: 0x11}
	_, err = it.Next(context.Background(), "zoom", real, nil, true, false)
	require.NoError(t, err)

	_, err = it.Next(context.Background(), "", nil, nil, false, true)
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.Len(), "virtual identity node reuses the prior buffer")
	for _, b := range pre.Data {
		assert.Equal(t, byte(0x11), b)
	}
}

func TestIter_VirtualNode_SpeedModeCopiesIntoFreshBuffer(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Mode: ModeSpeed})
	require.NoError(t, err)

	real := &fakeKernel{attr: pluginapi.Attr(0), marker: 0x22}
	_, err = it.Next(context.Background(), "zoom", real, nil, true, false)
	require.NoError(t, err)

	_, err = it.Next(context.Background(), "", nil, nil, false, true)
	require.NoError(t, err)

	assert.Equal(t, 2, mgr.Len(), "speed mode allocates a fresh buffer for the virtual node")
	for _, b := range pre.Data {
		assert.Equal(t, byte(0x22), b, "virtual node must copy input into the fresh output buffer")
	}
}

func TestBegin_EmptyChain_CopiesImageIntoPre(t *testing.T) {
	mgr := buffers.NewManager()
	pre := &PreBuffer{}
	img := testImage()

	it, err := Begin(BeginParams{Manager: mgr, Pool: newPool(t), Img: img, Pre: pre, Empty: true})
	require.NoError(t, err)

	assert.True(t, it.Done())
	assert.Equal(t, img.Pix, pre.Data)
	assert.True(t, it.PreResized)

	_, err = it.Next(context.Background(), "x", nil, nil, true, true)
	assert.Error(t, err)
}
