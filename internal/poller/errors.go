package poller

import "errors"

// Sentinel errors returned by Poll.
var (
	ErrCanceled      = errors.New("poll canceled")
	ErrTooManyErrors = errors.New("too many consecutive poll errors")
	ErrInvalidConfig = errors.New("invalid poller configuration")
)
