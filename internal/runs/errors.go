package runs

import "errors"

// Domain errors for run operations.
var (
	ErrNotFound    = errors.New("workflow run not found")
	ErrDuplicate   = errors.New("workflow run already exists")
	ErrNonePending = errors.New("no pending workflow runs")
	ErrNotRunning  = errors.New("workflow run is not running")
)
