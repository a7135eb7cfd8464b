package pipeline

import "errors"

// Sentinel errors for pipeline operations.
var (
	ErrAborted     = errors.New("run aborted")
	ErrRunNotFound = errors.New("run not found")
	ErrResume      = errors.New("cannot resume run")
	ErrOutput      = errors.New("output publish failed")
)
