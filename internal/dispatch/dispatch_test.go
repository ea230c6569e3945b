package dispatch

import (
	"context"
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/emofalling/img2arr/internal/workerpool"
)

// fakeNative implements pluginapi.Native for dispatch tests, standing in
// for a dlopen'd shared object.
type fakeNative struct {
	single      bool
	multi       bool
	singleView  bool
	multiView   bool
	singleRC    int32
	workerRC    func(idx int32) int32
}

func (f *fakeNative) Sign() string         { return "img2arr.prep.img.fake" }
func (f *fakeNative) HasSingle() bool      { return f.single }
func (f *fakeNative) HasMulti() bool       { return f.multi }
func (f *fakeNative) HasSingleView() bool  { return f.singleView }
func (f *fakeNative) HasMultiView() bool   { return f.multiView }
func (f *fakeNative) GetOutInfo(args unsafe.Pointer, inShape pluginapi.Shape, outLen int) (pluginapi.Shape, pluginapi.Attr, error) {
	return make(pluginapi.Shape, outLen), 0, nil
}
func (f *fakeNative) GetViewOutInfo(args unsafe.Pointer, inShape pluginapi.Shape) (pluginapi.Shape, error) {
	return pluginapi.Shape{0, 0}, nil
}
func (f *fakeNative) RunSingle(args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	return f.singleRC
}
func (f *fakeNative) RunWorker(threads, idx int32, args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	if f.workerRC != nil {
		return f.workerRC(idx)
	}
	return 0
}
func (f *fakeNative) RunSingleView(args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	return f.singleRC
}
func (f *fakeNative) RunWorkerView(threads, idx int32, args, in, out unsafe.Pointer, inShape pluginapi.Shape) int32 {
	if f.workerRC != nil {
		return f.workerRC(idx)
	}
	return 0
}
func (f *fakeNative) Close() error { return nil }

var _ pluginapi.Native = (*fakeNative)(nil)

func TestDispatch_PrefersMultiWhenBothPresent(t *testing.T) {
	pool, err := workerpool.New(3)
	require.NoError(t, err)

	native := &fakeNative{single: true, multi: true}
	result, err := Dispatch(context.Background(), pool, nil, Request{
		Name: "zoom", Native: native, InShape: pluginapi.Shape{4, 4, 4},
	})

	require.NoError(t, err)
	assert.Equal(t, ModeMulti, result.Mode)
	assert.Len(t, result.PerTaskReturns, 3)
}

func TestDispatch_FallsBackToSingle(t *testing.T) {
	pool, err := workerpool.New(3)
	require.NoError(t, err)

	native := &fakeNative{single: true, singleRC: 0}
	result, err := Dispatch(context.Background(), pool, nil, Request{
		Name: "zoom", Native: native, InShape: pluginapi.Shape{4, 4, 4},
	})

	require.NoError(t, err)
	assert.Equal(t, ModeSingle, result.Mode)
	assert.Equal(t, int32(0), result.SingleReturn)
}

func TestDispatch_MissingWorker(t *testing.T) {
	pool, err := workerpool.New(2)
	require.NoError(t, err)

	native := &fakeNative{}
	_, err = Dispatch(context.Background(), pool, nil, Request{Name: "zoom", Native: native})

	require.Error(t, err)
	assert.True(t, errors.Is(err, pluginapi.ErrMissingWorker))
}

func TestDispatch_SingleNonzeroSetsWrapperReturn(t *testing.T) {
	pool, err := workerpool.New(2)
	require.NoError(t, err)

	native := &fakeNative{single: true, singleRC: 5}
	result, err := Dispatch(context.Background(), pool, nil, Request{Name: "zoom", Native: native})

	require.NoError(t, err)
	require.Error(t, result.WrapperReturn)
	assert.True(t, errors.Is(result.WrapperReturn, pluginapi.ErrTaskNonzero))
}

func TestDispatch_MultiNonzeroSetsWrapperReturn(t *testing.T) {
	pool, err := workerpool.New(3)
	require.NoError(t, err)

	native := &fakeNative{multi: true, workerRC: func(idx int32) int32 {
		if idx == 2 {
			return 9
		}
		return 0
	}}
	result, err := Dispatch(context.Background(), pool, nil, Request{Name: "zoom", Native: native})

	require.NoError(t, err)
	require.Error(t, result.WrapperReturn)
	assert.Equal(t, []int32{0, 0, 9}, result.PerTaskReturns)
}

func TestDispatch_CodeViewKindUsesViewEntries(t *testing.T) {
	pool, err := workerpool.New(2)
	require.NoError(t, err)

	native := &fakeNative{singleView: true, singleRC: 0}
	result, err := Dispatch(context.Background(), pool, nil, Request{
		Name: "rgb565", Native: native, Kind: pluginapi.KindCodeView,
	})

	require.NoError(t, err)
	assert.Equal(t, ModeSingle, result.Mode)
}
