package session

import "errors"

// Sentinel errors for session management.
var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("session expired")
	ErrInvalidLogin   = errors.New("login requires a token and a user id")
	ErrStorage        = errors.New("session storage failed")
)
