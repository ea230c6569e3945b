package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/emofalling/img2arr/internal/buffers"
	"github.com/emofalling/img2arr/internal/dispatch"
	"github.com/emofalling/img2arr/internal/imgcodec"
	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/emofalling/img2arr/internal/workerpool"
)

// StepResult is returned from one call to Iter.Next.
type StepResult struct {
	Index          int
	OutShape       pluginapi.Shape
	Attr           pluginapi.Attr
	DispatchResult *dispatch.Result
}

// BeginParams configures a preprocessing run.
type BeginParams struct {
	Manager    *buffers.Manager
	Pool       *workerpool.Pool
	Logger     *slog.Logger
	Img        *imgcodec.Image
	Pre        *PreBuffer
	Mode       Mode
	StartIndex int
	// Empty marks a zero-length chain: Begin copies the source image into
	// pre directly and Iter.Next must not be called.
	Empty bool
}

// Iter drives one preprocessing run across a chain of nodes, one call to
// Next per node from its reported start index through the tail.
type Iter struct {
	manager *buffers.Manager
	pool    *workerpool.Pool
	logger  *slog.Logger
	img     *imgcodec.Image
	pre     *PreBuffer
	mode    Mode

	nodeIndex int
	failed    bool
	done      bool

	// PreResized is set once the tail node's output shape forced pre to be
	// reallocated, surfaced to the caller for the next run's decisions.
	PreResized bool
}

// Begin resolves the effective start index via the buffer manager's
// provenance (clearing any stale provenance at or after that point) and
// returns an Iter positioned to resume the chain from there (from 0 when no
// buffer holds an earlier node's output). If params.Empty
// is set, pre is populated directly from the source image and the returned
// Iter has nothing left to step.
func Begin(params BeginParams) (*Iter, error) {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	it := &Iter{
		manager: params.Manager,
		pool:    params.Pool,
		logger:  logger,
		img:     params.Img,
		pre:     params.Pre,
		mode:    params.Mode,
	}

	if params.Empty {
		shape := pluginapi.Shape{int32(params.Img.Height), int32(params.Img.Width), 4}
		it.PreResized = params.Pre.mirror(params.Img.Pix, shape)
		it.done = true
		return it, nil
	}

	start := params.Manager.EffectiveStart(params.StartIndex)
	params.Manager.ClearProvenanceFrom(start)

	// A READONLY non-head node records no writer, so the input to node
	// start is the buffer of the nearest earlier node that wrote one. With
	// no such buffer (e.g. after a reset), the chain is recomputed from 0.
	if start > 0 {
		resumed := false
		for j := start - 1; j >= 0 && !resumed; j-- {
			resumed = params.Manager.SeekWriter(j)
		}
		if !resumed {
			start = 0
		}
	}
	if start == 0 {
		params.Manager.ResetCursor()
	}
	params.Manager.ClearAfter(params.Manager.CursorIndex())

	it.nodeIndex = start
	it.failed = false
	return it, nil
}

// StartIndex returns the node index the next call to Next will process.
func (it *Iter) StartIndex() int {
	return it.nodeIndex
}

// Done reports whether the run has nothing left to step (either the chain
// was empty, or a prior step failed).
func (it *Iter) Done() bool {
	return it.done || it.failed
}

// Next processes one chain node. name == "" designates the virtual
// identity node (no native module, REUSE attribute, in_shape == out_shape).
// The caller supplies isHead (idx == 0) and isTail (idx == last node index)
// since the Iter does not itself hold the chain's configuration.
func (it *Iter) Next(ctx context.Context, name string, native pluginapi.Native, args unsafe.Pointer, isHead, isTail bool) (*StepResult, error) {
	if it.failed {
		return nil, fmt.Errorf("preprocess: iterator already failed, cannot continue")
	}
	if it.done {
		return nil, fmt.Errorf("preprocess: iterator has no chain to step (empty run)")
	}

	idx := it.nodeIndex
	virtual := name == ""

	inData, inShape, inBuf, err := it.resolveInput(isHead)
	if err != nil {
		it.failed = true
		return nil, fmt.Errorf("preprocess: node %d: %w", idx, err)
	}

	var attr pluginapi.Attr
	var outShape pluginapi.Shape
	if virtual {
		attr = pluginapi.AttrReuse
		outShape = append(pluginapi.Shape{}, inShape...)
	} else {
		dims, a, qerr := native.GetOutInfo(args, inShape.WithoutChannel(), len(inShape)-1)
		if qerr != nil {
			it.failed = true
			return nil, fmt.Errorf("preprocess: node %d (%s): %w", idx, name, qerr)
		}
		attr = a
		outShape = append(append(pluginapi.Shape{}, dims...), 4)
	}

	step := &StepResult{Index: idx, OutShape: outShape, Attr: attr}

	var outData []byte
	var stepErr error

	switch {
	case attr.Has(pluginapi.AttrReadonly):
		_, outData, stepErr = it.stepReadonly(ctx, idx, name, native, args, virtual, isHead, inData, inShape, inBuf)
	case attr.Has(pluginapi.AttrReuse) && !isHead:
		_, outData, stepErr = it.stepReuse(ctx, idx, name, native, args, virtual, inData, inShape, outShape, inBuf)
	default:
		_, outData, stepErr = it.stepAllocate(ctx, idx, name, native, args, virtual, inData, inShape, outShape, inBuf)
	}
	if stepErr != nil {
		it.failed = true
		return step, fmt.Errorf("preprocess: node %d (%s): %w", idx, name, stepErr)
	}

	if isTail {
		it.PreResized = it.pre.mirror(outData, outShape)
	}

	it.nodeIndex++
	return step, nil
}

// resolveInput returns the current input bytes/shape/backing buffer. The
// head node reads the source image and has no backing buffer (inBuf==nil).
func (it *Iter) resolveInput(isHead bool) ([]byte, pluginapi.Shape, *buffers.Buffer, error) {
	if isHead {
		shape := pluginapi.Shape{int32(it.img.Height), int32(it.img.Width), 4}
		return it.img.Pix, shape, nil, nil
	}
	cur, ok := it.manager.Current()
	if !ok {
		return nil, nil, nil, fmt.Errorf("no current buffer for a non-head node")
	}
	return cur.Data, cur.Shape, cur, nil
}

// stepReadonly materializes the source image into a fresh buffer when the
// node is the head (so the kernel observes a contiguous region to scan),
// dispatches with a nil output pointer, and advances only reader
// provenance — the input buffer's contents are unchanged.
func (it *Iter) stepReadonly(ctx context.Context, idx int, name string, native pluginapi.Native, args unsafe.Pointer, virtual, isHead bool, inData []byte, inShape pluginapi.Shape, inBuf *buffers.Buffer) (*buffers.Buffer, []byte, error) {
	buf := inBuf
	data := inData
	if isHead {
		buf = it.manager.NextBuf(inShape)
		copy(buf.Data, inData)
		buf.AddWriter(idx)
		data = buf.Data
	}

	if !virtual {
		req := dispatch.Request{
			Name: name, Native: native, Args: args,
			In: dataPtr(data), Out: nil, InShape: inShape.WithoutChannel(),
		}
		result, err := dispatch.Dispatch(ctx, it.pool, it.logger, req)
		if err != nil {
			return nil, nil, err
		}
		if result.WrapperReturn != nil {
			return nil, nil, result.WrapperReturn
		}
	}

	if buf != nil {
		buf.AddReader(idx)
	}
	return buf, data, nil
}

// stepReuse aliases output onto the input buffer in DEFAULT/MEMORY mode, or
// allocates a fresh buffer in SPEED mode so a future partial rerun never
// needs to reconstruct data overwritten in place.
func (it *Iter) stepReuse(ctx context.Context, idx int, name string, native pluginapi.Native, args unsafe.Pointer, virtual bool, inData []byte, inShape, outShape pluginapi.Shape, inBuf *buffers.Buffer) (*buffers.Buffer, []byte, error) {
	var target *buffers.Buffer
	if it.mode == ModeSpeed {
		target = it.manager.NextBuf(outShape)
	} else {
		target = inBuf
		target.EnsureShape(outShape)
	}

	if !virtual {
		req := dispatch.Request{
			Name: name, Native: native, Args: args,
			In: dataPtr(inData), Out: dataPtr(target.Data), InShape: inShape.WithoutChannel(),
		}
		result, err := dispatch.Dispatch(ctx, it.pool, it.logger, req)
		if err != nil {
			return nil, nil, err
		}
		if result.WrapperReturn != nil {
			return nil, nil, result.WrapperReturn
		}
	} else if target != inBuf {
		copy(target.Data, inData)
	}

	inBuf.AddReader(idx)
	target.AddWriter(idx)
	return target, target.Data, nil
}

// stepAllocate claims a fresh output buffer with the kernel-declared
// out_shape. Every head node lands here unless it is also READONLY, since
// REUSE aliasing is unavailable for the first node in the chain.
func (it *Iter) stepAllocate(ctx context.Context, idx int, name string, native pluginapi.Native, args unsafe.Pointer, virtual bool, inData []byte, inShape, outShape pluginapi.Shape, inBuf *buffers.Buffer) (*buffers.Buffer, []byte, error) {
	target := it.manager.NextBuf(outShape)

	if !virtual {
		req := dispatch.Request{
			Name: name, Native: native, Args: args,
			In: dataPtr(inData), Out: dataPtr(target.Data), InShape: inShape.WithoutChannel(),
		}
		result, err := dispatch.Dispatch(ctx, it.pool, it.logger, req)
		if err != nil {
			return nil, nil, err
		}
		if result.WrapperReturn != nil {
			return nil, nil, result.WrapperReturn
		}
	} else {
		copy(target.Data, inData)
	}

	// inBuf is nil for the head node: the source image has no buffer of
	// its own to record a reader against.
	if inBuf != nil {
		inBuf.AddReader(idx)
	}
	target.AddWriter(idx)
	return target, target.Data, nil
}

func dataPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
