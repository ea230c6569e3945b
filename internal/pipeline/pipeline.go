// Package pipeline is the core façade a UI or CLI collaborator drives: it
// owns one decoded image, the preprocessing chain's intermediate buffers,
// and the CODE/OUT stage's preview and output buffers, and exposes the
// operations that decode, preprocess, preview, encode, and emit them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/emofalling/img2arr/internal/buffers"
	"github.com/emofalling/img2arr/internal/dispatch"
	"github.com/emofalling/img2arr/internal/imgcodec"
	"github.com/emofalling/img2arr/internal/observability"
	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/emofalling/img2arr/internal/preprocess"
	"github.com/emofalling/img2arr/internal/workerpool"
)

// Pipeline owns one image's worth of core state: the decoded source, the
// preprocessing chain's reusable buffers, and the CODE/OUT stage's preview
// and output buffers.
type Pipeline struct {
	ID ID

	pool   *workerpool.Pool
	logger *slog.Logger
	mode   preprocess.Mode

	img      *imgcodec.Image
	manager  *buffers.Manager
	pre      *preprocess.PreBuffer
	codeView *preprocess.PreBuffer
	codeOut  *preprocess.PreBuffer
	out      *preprocess.PreBuffer

	maxOutputSize int64 // 0 = unbounded

	mu     sync.Mutex
	cond   *sync.Cond
	chain  []Node
	dirty  int // -1 = nothing pending
	closed bool
}

// OpenParams configures a new Pipeline.
type OpenParams struct {
	Path   string
	Pool   *workerpool.Pool
	Logger *slog.Logger
	Mode   preprocess.Mode

	// MaxOutputSize caps the OUT stage's declared output size in bytes.
	// 0 means unbounded.
	MaxOutputSize int64
}

// Open decodes the image at params.Path and returns a Pipeline ready to
// preprocess it. It starts the pipeline's background coordinator, which
// serves NotifyDirty requests by coalescing them to their lowest index.
func Open(params OpenParams) (*Pipeline, error) {
	img, err := imgcodec.Open(params.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := NewID()
	logger = observability.WithComponent(logger, "pipeline")
	logger = logger.With(slog.String("pipeline_id", id.String()))

	p := &Pipeline{
		ID:            id,
		pool:          params.Pool,
		logger:        logger,
		mode:          params.Mode,
		img:           img,
		manager:       buffers.NewManager(),
		pre:           &preprocess.PreBuffer{},
		codeView:      &preprocess.PreBuffer{},
		codeOut:       &preprocess.PreBuffer{},
		out:           &preprocess.PreBuffer{},
		maxOutputSize: params.MaxOutputSize,
		dirty:         -1,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.coordinatorLoop()
	return p, nil
}

// SetChain replaces the preprocessing chain configuration. It takes effect
// on the next Pre/NotifyDirty run.
func (p *Pipeline) SetChain(chain []Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain = chain
}

// Image returns the decoded source image.
func (p *Pipeline) Image() *imgcodec.Image { return p.img }

// Pre returns the pipeline's current preprocessing output buffer.
func (p *Pipeline) Pre() *preprocess.PreBuffer { return p.pre }

// PreResult reports the outcome of one preprocessing run.
type PreResult struct {
	StartIndex int
	PreResized bool
}

// RunPre synchronously (re)runs the preprocessing chain from startIndex,
// resolved against buffer provenance exactly as preprocess.Begin
// describes. This is the entry point a batch/CLI caller uses directly;
// NotifyDirty is the entry point an interactive UI collaborator uses to
// request the same work asynchronously, with coalescing.
func (p *Pipeline) RunPre(ctx context.Context, startIndex int) (*PreResult, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	chain := p.chain
	p.mu.Unlock()

	return p.runPre(ctx, startIndex, chain)
}

func (p *Pipeline) runPre(ctx context.Context, startIndex int, chain []Node) (*PreResult, error) {
	it, err := preprocess.Begin(preprocess.BeginParams{
		Manager:    p.manager,
		Pool:       p.pool,
		Logger:     p.logger,
		Img:        p.img,
		Pre:        p.pre,
		Mode:       p.mode,
		StartIndex: startIndex,
		Empty:      len(chain) == 0,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: pre: %w", err)
	}

	if !it.Done() {
		last := len(chain) - 1
		for i := it.StartIndex(); i <= last; i++ {
			node := chain[i]
			if _, err := it.Next(ctx, node.Name, node.Native, node.Args, i == 0, i == last); err != nil {
				return nil, newStageError("PREP", stageNodeName(node.Name), err)
			}
		}
	}

	return &PreResult{StartIndex: it.StartIndex(), PreResized: it.PreResized}, nil
}

// NotifyDirty sets the lowest dirty index the coordinator will process on
// its next (or current, coalesced) run. It never blocks and never returns
// an error: PIPELINE_BUSY is not an error condition, it is coalesced.
func (p *Pipeline) NotifyDirty(startIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.dirty < 0 || startIndex < p.dirty {
		p.dirty = startIndex
	}
	p.cond.Signal()
}

// coordinatorLoop is the per-pipeline background coordinator: it waits for
// a dirty index, runs Pre once, and if another (possibly lower) index
// arrived while it ran, loops again without being asked twice.
func (p *Pipeline) coordinatorLoop() {
	for {
		p.mu.Lock()
		for p.dirty < 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		startIndex := p.dirty
		p.dirty = -1
		chain := p.chain
		p.mu.Unlock()

		if _, err := p.runPre(context.Background(), startIndex, chain); err != nil {
			observability.WithError(p.logger, err).Error("pipeline: coordinator run failed")
		}
	}
}

// ResetPre invokes C5's reset, dropping every intermediate buffer. The
// next Pre run starts from scratch regardless of the index requested.
func (p *Pipeline) ResetPre() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manager.Reset()
}

// CodeView queries io_GetViewOutInfo, resizes code_view if needed, and
// dispatches with kind = CODE_VIEW.
func (p *Pipeline) CodeView(ctx context.Context, name string, native pluginapi.Native, args unsafe.Pointer) (*dispatch.Result, bool, error) {
	dims, err := native.GetViewOutInfo(args, p.pre.Shape.WithoutChannel())
	if err != nil {
		return nil, false, newStageError("CODE_VIEW", name, err)
	}
	outShape := append(append(pluginapi.Shape{}, dims...), 4)
	resized := p.codeView.EnsureShape(outShape)

	result, err := dispatch.Dispatch(ctx, p.pool, p.logger, dispatch.Request{
		Name: name, Native: native, Kind: pluginapi.KindCodeView, Args: args,
		In: dataPtr(p.pre.Data), Out: dataPtr(p.codeView.Data),
		InShape: p.pre.Shape.WithoutChannel(),
	})
	if err != nil {
		return nil, resized, newStageError("CODE_VIEW", name, err)
	}
	return result, resized, nil
}

// Code queries io_GetOutInfo for the 1-D byte output shape, resizes
// code_out, and dispatches with kind = NORMAL.
func (p *Pipeline) Code(ctx context.Context, name string, native pluginapi.Native, args unsafe.Pointer) (*dispatch.Result, error) {
	return p.oneShot(ctx, "CODE", name, native, args, p.pre, p.codeOut)
}

// Out runs the OUT stage: same protocol as Code, with code_out as input.
func (p *Pipeline) Out(ctx context.Context, name string, native pluginapi.Native, args unsafe.Pointer) (*dispatch.Result, error) {
	return p.oneShot(ctx, "OUT", name, native, args, p.codeOut, p.out)
}

// CodeViewBuffer returns the CODE stage's RGBA8 preview buffer.
func (p *Pipeline) CodeViewBuffer() *preprocess.PreBuffer { return p.codeView }

// CodeOut returns the CODE stage's 1-D byte output buffer.
func (p *Pipeline) CodeOut() *preprocess.PreBuffer { return p.codeOut }

// OutBuffer returns the OUT stage's final byte output buffer.
func (p *Pipeline) OutBuffer() *preprocess.PreBuffer { return p.out }

// oneShot implements the shared CODE/OUT preflight: query io_GetOutInfo,
// resize the destination buffer, dispatch.
func (p *Pipeline) oneShot(ctx context.Context, stage, name string, native pluginapi.Native, args unsafe.Pointer, in, out *preprocess.PreBuffer) (*dispatch.Result, error) {
	inShape := in.Shape.WithoutChannel()
	dims, _, err := native.GetOutInfo(args, inShape, 1)
	if err != nil {
		return nil, newStageError(stage, name, err)
	}
	if stage == "OUT" && p.maxOutputSize > 0 && dims.Len() > p.maxOutputSize {
		return nil, newStageError(stage, name, fmt.Errorf("declared output size %d bytes exceeds configured maximum of %d bytes", dims.Len(), p.maxOutputSize))
	}
	out.EnsureShape(dims)

	result, err := dispatch.Dispatch(ctx, p.pool, p.logger, dispatch.Request{
		Name: name, Native: native, Kind: pluginapi.KindNormal, Args: args,
		In: dataPtr(in.Data), Out: dataPtr(out.Data), InShape: inShape,
	})
	if err != nil {
		return nil, newStageError(stage, name, err)
	}
	return result, nil
}

// Close stops the coordinator and releases this pipeline's buffers. The
// plug-in runtime's own Exit hook is a once-per-process concern owned by
// whoever scanned the registry, not by an individual Pipeline.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	p.manager.Reset()
	p.pre = &preprocess.PreBuffer{}
	p.codeView = &preprocess.PreBuffer{}
	p.codeOut = &preprocess.PreBuffer{}
	p.out = &preprocess.PreBuffer{}
	return nil
}

// stageNodeName labels the virtual identity node for error messages, since
// it has no plug-in key of its own.
func stageNodeName(name string) string {
	if name == "" {
		return "(disabled)"
	}
	return name
}

func dataPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
