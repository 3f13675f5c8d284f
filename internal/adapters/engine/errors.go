package engine

import "errors"

// Sentinel kinds for engine boundary errors.
var (
	ErrHookUnavailable  = errors.New("engine hook unavailable")
	ErrStateUnavailable = errors.New("engine state unavailable")
)
