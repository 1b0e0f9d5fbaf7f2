package service

import (
	"time"

	"github.com/okian/bowlsense/internal/adapters/repository"
	"github.com/okian/bowlsense/internal/domain/scoring"
	"github.com/okian/bowlsense/internal/poller"
	"github.com/okian/bowlsense/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of concurrent job watches.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many watch requests may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCacheSize bounds the in-memory result and job maps.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
	}
}

// WithPollInterval sets the fixed delay between progress polls.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithPollTimeout sets how long a job is watched before it is marked timed out.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// WithPollMaxErrors sets how many consecutive poll failures are tolerated.
func WithPollMaxErrors(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.pollMaxErrors = n
		}
	}
}

// WithClock injects the clock used for polling and timestamps.
func WithClock(c poller.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithScorer replaces the default scorer.
func WithScorer(sc *scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithStore replaces the in-memory repository.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
