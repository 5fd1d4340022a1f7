package queue

type config struct {
	name     string
	capacity int
}

// Option applies a configuration option to an InMemoryQueue.
type Option func(*config)

// WithName labels the queue in metrics.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}
