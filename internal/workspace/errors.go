package workspace

import (
	"errors"
	"fmt"
)

// Workspace errors.
var (
	// ErrDocumentNotFound indicates no open document has the given id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrLastDocument indicates an attempt to close the only open document.
	ErrLastDocument = errors.New("cannot close the last document")

	// ErrClosed indicates the registry has been shut down.
	ErrClosed = errors.New("workspace closed")
)

// OperationError reports a failed workspace operation.
type OperationError struct {
	Op     string // Operation name (e.g., "restore", "close")
	Target string // Document id or store key
	Err    error
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, target string, err error) *OperationError {
	return &OperationError{Op: op, Target: target, Err: err}
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op
	if e.Target != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Target)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
