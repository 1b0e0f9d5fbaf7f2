package service

import "errors"

// Sentinel errors returned by the Service.
var (
	ErrNotStarted  = errors.New("service not started")
	ErrInvalidJob  = errors.New("invalid job id")
	ErrJobNotFound = errors.New("job not tracked")
	ErrQueueFull   = errors.New("watch queue full")
	ErrNoResult    = errors.New("analysis result not ready")
)
