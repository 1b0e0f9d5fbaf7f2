package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidJob = errors.New("invalid job record")
)
