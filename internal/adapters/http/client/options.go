package client

import (
	"net/http"
	"time"

	"github.com/okian/bowlsense/pkg/logger"
)

// Defaults for a new Client.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultUploadTimeout  = 5 * time.Minute
	DefaultRetryMax       = 2
	DefaultRetryBase      = 250 * time.Millisecond
	DefaultMaxUploadBytes = 200 << 20
)

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthorizer sets the credential source for every request.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithRetry sets how many times idempotent requests are retried and the
// exponential backoff base. max 0 disables retries.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.retryMax = uint64(maxRetries)
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRequestTimeout bounds each JSON request attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithUploadTimeout bounds a whole multipart upload.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.uploadTimeout = d
		}
	}
}

// WithMaxUploadBytes caps the size of each uploaded video.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	}
}
