package worker

import (
	"github.com/okian/leadrouter/pkg/logger"
)

type settings struct {
	name   string
	size   int
	logger logger.Logger
}

// Option configures a Pool.
type Option func(*settings)

// WithName sets the pool name for identification, logging and metrics.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithSize sets how many workers run.
func WithSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
