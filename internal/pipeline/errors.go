package pipeline

import "errors"

// Sentinel errors for the pipeline façade, named after the error taxonomy's
// "kind" column rather than any particular Go type.
var (
	// ErrDecodeFailed is raised by Open when the source image cannot be
	// decoded; the pipeline is not created.
	ErrDecodeFailed = errors.New("pipeline: decode failed")

	// ErrClosed is returned by RunPre when invoked after Close. CodeView,
	// Code and Out do not check for a closed pipeline.
	ErrClosed = errors.New("pipeline: already closed")
)
