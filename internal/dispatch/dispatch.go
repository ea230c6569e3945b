// Package dispatch invokes a plug-in's single-core or multi-core worker
// entry over a shared input/output buffer pair, choosing between them per
// the plug-in's advertised capabilities.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/google/uuid"

	"github.com/emofalling/img2arr/internal/observability"
	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/emofalling/img2arr/internal/workerpool"
)

// Mode records which worker entry a dispatch used.
type Mode int

// The two dispatch modes.
const (
	ModeSingle Mode = iota
	ModeMulti
)

func (m Mode) String() string {
	if m == ModeMulti {
		return "MULTI"
	}
	return "SINGLE"
}

// Result carries the outcome of one dispatch.
type Result struct {
	Mode Mode

	// PerTaskReturns holds one entry per worker for ModeMulti.
	PerTaskReturns []int32

	// SingleReturn holds f0's/f0p's return code for ModeSingle.
	SingleReturn int32

	// WrapperReturn is the dispatcher's own status: non-nil if any task
	// returned nonzero, wrapping pluginapi.ErrTaskNonzero.
	WrapperReturn error
}

// Request describes one dispatch invocation.
type Request struct {
	Name    string
	Native  pluginapi.Native
	Kind    pluginapi.DispatchKind
	Args    unsafe.Pointer
	In      unsafe.Pointer
	Out     unsafe.Pointer
	InShape pluginapi.Shape
}

// Dispatch selects MULTI over SINGLE whenever the plug-in exposes the
// multi-core entry for the requested kind, runs it through pool, and
// aggregates per-task return codes into WrapperReturn.
func Dispatch(ctx context.Context, pool *workerpool.Pool, logger *slog.Logger, req Request) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	correlationID := uuid.New().String()
	logger = observability.WithCorrelationID(observability.WithComponent(logger, "dispatch"), correlationID)
	logger = observability.WithOperation(logger, req.Name)

	done := observability.TimedOperation(ctx, logger, req.Name)
	defer done()

	hasMulti := req.hasMulti()
	hasSingle := req.hasSingle()

	switch {
	case hasMulti:
		return dispatchMulti(ctx, pool, logger, req)
	case hasSingle:
		return dispatchSingle(logger, req)
	default:
		err := fmt.Errorf("%w: %s", pluginapi.ErrMissingWorker, req.Name)
		observability.WithError(logger, err).Error("dispatch: no matching worker entry")
		return nil, err
	}
}

func (r Request) hasMulti() bool {
	if r.Kind == pluginapi.KindCodeView {
		return r.Native.HasMultiView()
	}
	return r.Native.HasMulti()
}

func (r Request) hasSingle() bool {
	if r.Kind == pluginapi.KindCodeView {
		return r.Native.HasSingleView()
	}
	return r.Native.HasSingle()
}

func dispatchSingle(logger *slog.Logger, req Request) (*Result, error) {
	var rc int32
	if req.Kind == pluginapi.KindCodeView {
		rc = req.Native.RunSingleView(req.Args, req.In, req.Out, req.InShape)
	} else {
		rc = req.Native.RunSingle(req.Args, req.In, req.Out, req.InShape)
	}

	result := &Result{Mode: ModeSingle, SingleReturn: rc}
	if rc != 0 {
		result.WrapperReturn = fmt.Errorf("%w: rc=%d", pluginapi.ErrTaskNonzero, rc)
		observability.WithError(logger, result.WrapperReturn).Warn("dispatch: single task returned nonzero", slog.Int("rc", int(rc)))
	}
	return result, nil
}

func dispatchMulti(ctx context.Context, pool *workerpool.Pool, logger *slog.Logger, req Request) (*Result, error) {
	returns, err := pool.Run(ctx, func(threads, idx int32) int32 {
		if req.Kind == pluginapi.KindCodeView {
			return req.Native.RunWorkerView(threads, idx, req.Args, req.In, req.Out, req.InShape)
		}
		return req.Native.RunWorker(threads, idx, req.Args, req.In, req.Out, req.InShape)
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: multi: %w", err)
	}

	result := &Result{Mode: ModeMulti, PerTaskReturns: returns}
	for _, rc := range returns {
		if rc != 0 {
			result.WrapperReturn = fmt.Errorf("%w: returns=%v", pluginapi.ErrTaskNonzero, returns)
			observability.WithError(logger, result.WrapperReturn).Warn("dispatch: one or more tasks returned nonzero", slog.Any("returns", returns))
			break
		}
	}
	return result, nil
}
