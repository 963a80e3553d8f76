package app

import "errors"

// ErrAlreadyRunning indicates the application is already serving.
var ErrAlreadyRunning = errors.New("application already running")

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
