package pluginapi

import "errors"

// Sentinel errors forming the taxonomy the registry and dispatcher raise.
// Callers use errors.Is against these, not type assertions.
var (
	ErrUnknownPlugin    = errors.New("pluginapi: unknown plugin")
	ErrInvalidSignature = errors.New("pluginapi: invalid ext_sign")
	ErrMissingSymbol    = errors.New("pluginapi: missing required symbol")
	ErrInitFailed       = errors.New("pluginapi: init() returned nonzero")
	ErrShapeQueryFailed = errors.New("pluginapi: io_GetOutInfo/io_GetViewOutInfo failed")
	ErrMissingWorker    = errors.New("pluginapi: no f0/f1 worker entry")
	ErrTaskNonzero      = errors.New("pluginapi: worker task returned nonzero")
)

// LoadError wraps a plug-in load/validate failure with the path that
// produced it, so a registry scan can report per-plug-in failures without
// losing the underlying taxonomy.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
