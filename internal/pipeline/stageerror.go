package pipeline

import "fmt"

// StageError wraps a failure with the stage and plugin key that produced
// it, so a CLI or UI caller can print "stage PREP plugin zoom: ..."
// without re-deriving context from a chain of %w-wrapped strings.
type StageError struct {
	Stage  string
	Plugin string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s plugin %s: %v", e.Stage, e.Plugin, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func newStageError(stage, plugin string, err error) *StageError {
	return &StageError{Stage: stage, Plugin: plugin, Err: err}
}
