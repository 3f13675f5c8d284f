package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrSessionSealed = errors.New("session already sealed")
	ErrNotSealed     = errors.New("session not sealed")
)
