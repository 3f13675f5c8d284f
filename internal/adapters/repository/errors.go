package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrProfileNotFound = errors.New("player profile not found")
)
