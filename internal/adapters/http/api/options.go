package api

import (
	"time"

	"github.com/okian/bowlsense/pkg/logger"
)

const defaultHeartbeat = 15 * time.Second

type options struct {
	logger    logger.Logger
	heartbeat time.Duration
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHeartbeat sets how often idle streams are pinged.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}
