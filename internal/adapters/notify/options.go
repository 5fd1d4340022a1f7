package notify

import (
	"github.com/okian/leadrouter/internal/domain/dedupe"
	"github.com/okian/leadrouter/pkg/logger"
)

// Option configures a MessageNotifier.
type Option func(*MessageNotifier)

// WithBaseURL sets the application URL used to build panel links.
func WithBaseURL(u string) Option {
	return func(n *MessageNotifier) {
		if u != "" {
			n.baseURL = u
		}
	}
}

type dispatcherConfig struct {
	queueSize int
	workers   int
	deduper   dedupe.Deduper
	logger    logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

// WithQueueSize bounds the number of pending events.
func WithQueueSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithWorkers sets how many events are delivered concurrently.
func WithWorkers(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithDeduper replaces the event id deduper.
func WithDeduper(d dedupe.Deduper) DispatcherOption {
	return func(c *dispatcherConfig) {
		if d != nil {
			c.deduper = d
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) DispatcherOption {
	return func(c *dispatcherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
