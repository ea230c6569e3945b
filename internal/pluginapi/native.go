package pluginapi

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Native is the surface the dispatcher and pipeline façade need from a
// loaded plug-in. *NativeModule is the only production implementation;
// tests substitute a fake to exercise dispatch/pipeline logic without a
// real shared object to dlopen.
type Native interface {
	Sign() string
	HasSingle() bool
	HasMulti() bool
	HasSingleView() bool
	HasMultiView() bool
	GetOutInfo(args unsafe.Pointer, inShape Shape, outLen int) (Shape, Attr, error)
	GetViewOutInfo(args unsafe.Pointer, inShape Shape) (Shape, error)
	RunSingle(args, in, out unsafe.Pointer, inShape Shape) int32
	RunWorker(threads, idx int32, args, in, out unsafe.Pointer, inShape Shape) int32
	RunSingleView(args, in, out unsafe.Pointer, inShape Shape) int32
	RunWorkerView(threads, idx int32, args, in, out unsafe.Pointer, inShape Shape) int32
	Close() error
}

// NativeModule is a loaded, symbol-bound native plug-in shared object.
// It is the pure-Go (no cgo) equivalent of a dlopen handle plus the
// function pointers the core needs from it.
type NativeModule struct {
	handle uintptr
	path   string
	sign   string

	getOutInfo     func(args unsafe.Pointer, inShape unsafe.Pointer, outShape unsafe.Pointer, attr unsafe.Pointer) int32
	getViewOutInfo func(args unsafe.Pointer, inShape unsafe.Pointer, outShape unsafe.Pointer) int32

	f0  func(args, in, out unsafe.Pointer, inShape unsafe.Pointer) int32
	f1  func(threads, idx int32, args, in, out unsafe.Pointer, inShape unsafe.Pointer) int32
	f0p func(args, in, out unsafe.Pointer, inShape unsafe.Pointer) int32
	f1p func(threads, idx int32, args, in, out unsafe.Pointer, inShape unsafe.Pointer) int32

	initFn func() int32
}

// LoadNative opens a plug-in's native shared object, reads and validates
// ext_sign, and binds the symbols required for its stage. The loading
// order mirrors the registry's validate step: open, verify signature, bind
// IO descriptors, bind worker entries, run init.
func LoadNative(path string, stage Stage, category string) (*NativeModule, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: dlopen %s: %v", ErrMissingSymbol, path, err)
	}

	signAddr, err := purego.Dlsym(handle, "ext_sign")
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: ext_sign: %v", ErrMissingSymbol, err)}
	}
	sign := ReadSign(signAddr)
	if err := CheckSign(sign, stage, category); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	n := &NativeModule{handle: handle, path: path, sign: sign}

	if err := n.bindRequired("io_GetOutInfo", &n.getOutInfo); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if stage == StageCode {
		if err := n.bindRequired("io_GetViewOutInfo", &n.getViewOutInfo); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
	}

	n.bindOptional("f0", &n.f0)
	n.bindOptional("f1", &n.f1)
	if n.f0 == nil && n.f1 == nil {
		return nil, &LoadError{Path: path, Err: ErrMissingWorker}
	}

	if stage == StageCode {
		n.bindOptional("f0p", &n.f0p)
		n.bindOptional("f1p", &n.f1p)
		if n.f0p == nil && n.f1p == nil {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: f0p/f1p", ErrMissingWorker)}
		}
	}

	n.bindOptional("init", &n.initFn)
	if n.initFn != nil {
		if rc := n.initFn(); rc != 0 {
			_ = purego.Dlclose(handle)
			return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: rc=%d", ErrInitFailed, rc)}
		}
	}

	return n, nil
}

// bindRequired binds a symbol, returning ErrMissingSymbol if absent.
func (n *NativeModule) bindRequired(name string, fptr interface{}) error {
	sym, err := purego.Dlsym(n.handle, name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	purego.RegisterFunc(fptr, sym)
	return nil
}

// bindOptional binds a symbol if present, leaving fptr untouched if not.
func (n *NativeModule) bindOptional(name string, fptr interface{}) {
	sym, err := purego.Dlsym(n.handle, name)
	if err != nil {
		return
	}
	purego.RegisterFunc(fptr, sym)
}

// Sign returns the plug-in's validated ext_sign value.
func (n *NativeModule) Sign() string { return n.sign }

// HasSingle reports whether the plug-in exposes the single-threaded f0 entry.
func (n *NativeModule) HasSingle() bool { return n.f0 != nil }

// HasMulti reports whether the plug-in exposes the data-parallel f1 entry.
func (n *NativeModule) HasMulti() bool { return n.f1 != nil }

// HasSingleView reports whether f0p (CODE preview) is present.
func (n *NativeModule) HasSingleView() bool { return n.f0p != nil }

// HasMultiView reports whether f1p (CODE preview) is present.
func (n *NativeModule) HasMultiView() bool { return n.f1p != nil }

// shapePtr returns a pointer to the first element of s, or nil for an
// empty shape (io_GetOutInfo implementations treat a nil in_shape as
// invalid, but an empty out_shape buffer is valid for zero-length output).
func shapePtr(s []int32) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}

// GetOutInfo queries io_GetOutInfo, returning an out_shape buffer of outLen
// dimensions and the attribute bitfield.
func (n *NativeModule) GetOutInfo(args unsafe.Pointer, inShape Shape, outLen int) (Shape, Attr, error) {
	out := make(Shape, outLen)
	var attr int32
	rc := n.getOutInfo(args, shapePtr(inShape), shapePtr(out), unsafe.Pointer(&attr))
	if rc != 0 {
		return nil, 0, fmt.Errorf("%w: rc=%d", ErrShapeQueryFailed, rc)
	}
	return out, Attr(attr), nil
}

// GetViewOutInfo queries io_GetViewOutInfo, returning a 2-D (h, w) preview
// shape.
func (n *NativeModule) GetViewOutInfo(args unsafe.Pointer, inShape Shape) (Shape, error) {
	out := make(Shape, 2)
	rc := n.getViewOutInfo(args, shapePtr(inShape), shapePtr(out))
	if rc != 0 {
		return nil, fmt.Errorf("%w: rc=%d", ErrShapeQueryFailed, rc)
	}
	return out, nil
}

// RunSingle invokes f0.
func (n *NativeModule) RunSingle(args, in, out unsafe.Pointer, inShape Shape) int32 {
	return n.f0(args, in, out, shapePtr(inShape))
}

// RunWorker invokes one f1 worker task for the given thread count and index.
func (n *NativeModule) RunWorker(threads, idx int32, args, in, out unsafe.Pointer, inShape Shape) int32 {
	return n.f1(threads, idx, args, in, out, shapePtr(inShape))
}

// RunSingleView invokes f0p.
func (n *NativeModule) RunSingleView(args, in, out unsafe.Pointer, inShape Shape) int32 {
	return n.f0p(args, in, out, shapePtr(inShape))
}

// RunWorkerView invokes one f1p worker task.
func (n *NativeModule) RunWorkerView(threads, idx int32, args, in, out unsafe.Pointer, inShape Shape) int32 {
	return n.f1p(threads, idx, args, in, out, shapePtr(inShape))
}

// Close releases the underlying shared object handle.
func (n *NativeModule) Close() error {
	return purego.Dlclose(n.handle)
}

var _ Native = (*NativeModule)(nil)
