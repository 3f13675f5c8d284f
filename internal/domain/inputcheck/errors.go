package inputcheck

import "errors"

// Sentinel kinds for input validation errors.
var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrActionTooLong   = errors.New("action too long")
	ErrForbiddenAction = errors.New("forbidden action content")
	ErrRateLimited     = errors.New("rate limit exceeded")
)
