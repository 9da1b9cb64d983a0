package epoch

import "github.com/pkg/errors"

// CorruptCheckpointError indicates the persisted checkpoint file could not
// be parsed, or (from New) parsed into a history that violates the ordering
// invariants. It is never returned for an absent file — only for one that
// exists and is malformed.
type CorruptCheckpointError struct {
	Path   string
	Reason string
}

func (e *CorruptCheckpointError) Error() string {
	return "corrupt leader epoch checkpoint " + e.Path + ": " + e.Reason
}

// IoFailureError wraps an underlying filesystem error encountered while
// reading or writing the checkpoint file.
type IoFailureError struct {
	Path string
	Op   string
	Err  error
}

func (e *IoFailureError) Error() string {
	return "leader epoch checkpoint " + e.Op + " failed for " + e.Path + ": " + e.Err.Error()
}

func (e *IoFailureError) Unwrap() error { return e.Err }

// InvalidArgumentError indicates the caller violated a precondition, e.g.
// supplying a negative epoch or offset to Assign.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

func newIoFailure(op, path string, err error) error {
	return &IoFailureError{Path: path, Op: op, Err: errors.WithStack(err)}
}
