package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. APIError unwraps to one of the first five by status.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("backend error")
	ErrBadRequest   = errors.New("bad request")

	ErrVideoNotFound     = errors.New("video file not found")
	ErrInvalidVideo      = errors.New("invalid video file")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrVideoTooLarge     = errors.New("video exceeds the upload limit")
	ErrAngleCount        = errors.New("multi-angle upload needs 2 or 3 videos")
	ErrInvalidAngle      = errors.New("unknown camera angle")
	ErrDuplicateAngle    = errors.New("camera angle given twice")
	ErrInvalidBaseURL    = errors.New("invalid api base url")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Unwrap maps the status onto a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrBadRequest
	}
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}
