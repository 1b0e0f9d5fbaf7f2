package poller

import "time"

// Default polling configuration.
const (
	DefaultInterval  = 3 * time.Second
	DefaultTimeout   = 10 * time.Minute
	DefaultMaxErrors = 5
)

type config[T any] struct {
	interval  time.Duration
	timeout   time.Duration
	maxErrors int
	clock     Clock
	observer  func(T)
	onError   func(error, int)
	permanent func(error) bool
}

// Option configures a Poll call.
type Option[T any] func(*config[T])

// WithInterval sets the fixed delay between fetches.
func WithInterval[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout sets the hard wall-clock limit measured from the first fetch.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxErrors sets how many consecutive fetch errors are tolerated.
// Zero makes the first error fatal.
func WithMaxErrors[T any](n int) Option[T] {
	return func(c *config[T]) {
		if n >= 0 {
			c.maxErrors = n
		}
	}
}

// WithClock injects the time source.
func WithClock[T any](clk Clock) Option[T] {
	return func(c *config[T]) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithObserver is called with every successfully fetched value.
func WithObserver[T any](fn func(T)) Option[T] {
	return func(c *config[T]) {
		c.observer = fn
	}
}

// WithErrorObserver is called with every tolerated fetch error and the
// current consecutive error count.
func WithErrorObserver[T any](fn func(error, int)) Option[T] {
	return func(c *config[T]) {
		c.onError = fn
	}
}

// WithPermanent marks errors that abort polling immediately.
func WithPermanent[T any](fn func(error) bool) Option[T] {
	return func(c *config[T]) {
		c.permanent = fn
	}
}
