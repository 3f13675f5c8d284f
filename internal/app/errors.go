package service

import "errors"

// Sentinel kinds for pipeline errors.
var (
	ErrNotStarted          = errors.New("pipeline not started")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrQueueFull           = errors.New("submission queue full")
)
