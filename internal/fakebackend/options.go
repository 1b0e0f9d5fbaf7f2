package fakebackend

import (
	"time"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/logger"
)

// Naming selects the key convention of response bodies.
type Naming string

// Supported conventions.
const (
	Snake Naming = "snake"
	Camel Naming = "camel"
)

// ParseNaming returns Camel for "camel" and Snake otherwise.
func ParseNaming(s string) Naming {
	if s == string(Camel) {
		return Camel
	}
	return Snake
}

// Option configures a Server.
type Option func(*Server)

// WithNaming sets the response key convention. Camel responses also use
// fractional progress and wrap bodies in a data envelope.
func WithNaming(n Naming) Option {
	return func(s *Server) { s.naming = n }
}

// WithUser registers an account that can sign in.
func WithUser(email, password, name string) Option {
	return func(s *Server) {
		s.addUser(email, password, name)
	}
}

// WithGuestAccess controls whether X-Guest-ID is accepted. Default true.
func WithGuestAccess(allowed bool) Option {
	return func(s *Server) { s.guests = allowed }
}

// WithFailure makes every job fail when it would enter stage.
func WithFailure(stage model.Stage, message string) Option {
	return func(s *Server) {
		s.failAt = stage
		s.failMsg = message
	}
}

// WithStall keeps every job in its first processing stage forever.
func WithStall() Option {
	return func(s *Server) { s.stall = true }
}

// WithTokenTTL sets the lifetime of issued tokens. A negative value
// issues tokens that are already expired.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		if d != 0 {
			s.tokenTTL = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
