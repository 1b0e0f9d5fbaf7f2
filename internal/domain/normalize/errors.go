package normalize

import "errors"

// Sentinel errors for response normalization.
var (
	ErrMalformed    = errors.New("malformed backend response")
	ErrMissingField = errors.New("missing required field")
)
