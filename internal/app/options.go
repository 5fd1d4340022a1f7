package service

import (
	"time"

	"github.com/okian/leadrouter/internal/adapters/notify"
	"github.com/okian/leadrouter/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the SQLite database path.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithWorkerCount sets the number of routing workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the routing trigger queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the trigger idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithNotifications sizes the notification dispatcher.
func WithNotifications(queueSize, workers int) Option {
	return func(s *Service) {
		if queueSize > 0 {
			s.notifyQueueSize = queueSize
		}
		if workers > 0 {
			s.notifyWorkers = workers
		}
	}
}

// WithTransport replaces the log transport used for notices.
func WithTransport(t notify.Transport) Option {
	return func(s *Service) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithSweeper enables the background sweep loop.
func WithSweeper(interval time.Duration) Option {
	return func(s *Service) {
		s.runSweeper = true
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithSweepLimits sets the sweep batch size and concurrency.
func WithSweepLimits(batch, concurrency int) Option {
	return func(s *Service) {
		if batch > 0 {
			s.sweepBatch = batch
		}
		if concurrency > 0 {
			s.sweepConcurrency = concurrency
		}
	}
}

// WithParamsCacheTTL sets how long routing parameters are cached.
func WithParamsCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.paramsTTL = ttl
		}
	}
}

// WithBaseURL sets the application URL used in notices.
func WithBaseURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
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
