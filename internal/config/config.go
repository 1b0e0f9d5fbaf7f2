// Package config defines client configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config with defaults; Load layers file and env on top.
//   - Durations are carried as integer milliseconds and exposed through helpers.
//   - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Session storage backends.
const (
	SessionBackendFile   = "file"
	SessionBackendSQLite = "sqlite"
	SessionBackendMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text, json or console output.
	LogFormat string `koanf:"log_format"`

	// APIBaseURL is the analysis backend, e.g. "https://api.example.com".
	APIBaseURL string `koanf:"api_base_url"`

	// RequestTimeoutMS bounds a single JSON request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// UploadTimeoutMS bounds a multipart video upload.
	UploadTimeoutMS int `koanf:"upload_timeout_ms"`

	// RetryMax and RetryBaseMS configure retries of idempotent requests.
	RetryMax    int `koanf:"retry_max"`
	RetryBaseMS int `koanf:"retry_base_ms"`

	// PollIntervalMS is the fixed delay between progress polls.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// PollTimeoutMS is the hard wall-clock limit of one job watch.
	PollTimeoutMS int `koanf:"poll_timeout_ms"`

	// PollMaxErrors is how many consecutive transient poll failures are tolerated.
	PollMaxErrors int `koanf:"poll_max_errors"`

	// WorkerCount sets the number of concurrent job watchers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds pending watch requests.
	QueueSize int `koanf:"queue_size"`

	// CacheSize bounds the in-memory result maps.
	CacheSize int `koanf:"cache_size"`

	// MaxUploadMB caps the size of a single video.
	MaxUploadMB int `koanf:"max_upload_mb"`

	// SessionBackend is one of file, sqlite, memory.
	SessionBackend string `koanf:"session_backend"`

	// SessionPath overrides the session file or database location.
	SessionPath string `koanf:"session_path"`

	// StatusAddr is the listen address of the local status server.
	StatusAddr string `koanf:"status_addr"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		APIBaseURL:       "http://localhost:8000",
		RequestTimeoutMS: 15_000,
		UploadTimeoutMS:  300_000,
		RetryMax:         2,
		RetryBaseMS:      250,
		PollIntervalMS:   3_000,
		PollTimeoutMS:    600_000,
		PollMaxErrors:    5,
		WorkerCount:      4,
		QueueSize:        64,
		CacheSize:        256,
		MaxUploadMB:      200,
		SessionBackend:   SessionBackendFile,
		StatusAddr:       "127.0.0.1:9480",
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// UploadTimeout returns UploadTimeoutMS as a duration.
func (c *Config) UploadTimeout() time.Duration { return ms(c.UploadTimeoutMS) }

// RetryBase returns RetryBaseMS as a duration.
func (c *Config) RetryBase() time.Duration { return ms(c.RetryBaseMS) }

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMS) }

// PollTimeout returns PollTimeoutMS as a duration.
func (c *Config) PollTimeout() time.Duration { return ms(c.PollTimeoutMS) }

// MaxUploadBytes returns MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.APIBaseURL)
	if base == "" {
		return fmt.Errorf("%w: api_base_url must not be empty", ErrInvalidConfig)
	}
	if u, err := url.Parse(base); err != nil || u.Host == "" {
		return fmt.Errorf("%w: api_base_url %q is not an absolute url", ErrInvalidConfig, base)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.PollTimeoutMS < c.PollIntervalMS {
		return fmt.Errorf("%w: poll_timeout_ms must be at least poll_interval_ms", ErrInvalidConfig)
	}
	if c.RequestTimeoutMS <= 0 || c.UploadTimeoutMS <= 0 {
		return fmt.Errorf("%w: request and upload timeouts must be positive", ErrInvalidConfig)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("%w: retry_max must not be negative", ErrInvalidConfig)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: max_upload_mb must be positive", ErrInvalidConfig)
	}
	switch c.SessionBackend {
	case SessionBackendFile, SessionBackendSQLite, SessionBackendMemory:
	default:
		return fmt.Errorf("%w: unknown session_backend %q", ErrInvalidConfig, c.SessionBackend)
	}
	return nil
}
