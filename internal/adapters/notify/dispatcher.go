package notify

import (
	"context"
	"errors"

	"github.com/okian/leadrouter/internal/adapters/mq/queue"
	"github.com/okian/leadrouter/internal/adapters/mq/worker"
	"github.com/okian/leadrouter/internal/domain/dedupe"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/pkg/logger"
	"github.com/okian/leadrouter/pkg/metrics"
)

const dispatcherName = "notify"

// Dispatcher consumes assignment events off a bounded queue and fans them
// out to a Notifier. Each event id is delivered at most once.
type Dispatcher struct {
	notifier Notifier
	queue    *queue.InMemoryQueue[model.AssignmentEvent]
	pool     *worker.Pool[model.AssignmentEvent]
	seen     dedupe.Deduper
	logger   logger.Logger
}

// NewDispatcher builds a Dispatcher. Call Start before publishing.
func NewDispatcher(n Notifier, opts ...DispatcherOption) (*Dispatcher, error) {
	cfg := dispatcherConfig{queueSize: 10_000, workers: 4}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named(dispatcherName)
	}
	if cfg.deduper == nil {
		d, err := dedupe.NewInMemoryDeduper()
		if err != nil {
			return nil, err
		}
		cfg.deduper = d
	}

	d := &Dispatcher{
		notifier: n,
		queue:    queue.NewInMemoryQueue[model.AssignmentEvent](queue.WithName(dispatcherName), queue.WithCapacity(cfg.queueSize)),
		seen:     cfg.deduper,
		logger:   cfg.logger,
	}
	d.pool = worker.NewPool[model.AssignmentEvent](d.queue, worker.HandlerFunc[model.AssignmentEvent](d.handle),
		worker.WithName(dispatcherName), worker.WithSize(cfg.workers), worker.WithLogger(cfg.logger))
	return d, nil
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Shutdown stops accepting events and drains the queue until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}

// Publish queues e. Events already seen are dropped silently.
func (d *Dispatcher) Publish(ctx context.Context, e model.AssignmentEvent) error {
	if e.ID != "" && d.seen.SeenAndRecord(ctx, e.ID) {
		d.logger.Debug(ctx, "duplicate event dropped", logger.String("event_id", e.ID))
		return nil
	}
	if err := d.queue.Enqueue(ctx, e); err != nil {
		if e.ID != "" {
			d.seen.Unrecord(ctx, e.ID)
		}
		metrics.RecordNotification(string(e.Kind), metrics.OutcomeFailure)
		return err
	}
	return nil
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

func (d *Dispatcher) handle(ctx context.Context, e model.AssignmentEvent) error {
	l := d.logger.With(
		logger.String("event_id", e.ID),
		logger.Int64("prospect_id", e.Prospect.ID),
		logger.String("broker_id", e.Broker.ID),
	)

	var errs []error
	send := func(name string, fn func(context.Context, model.AssignmentEvent) error) {
		if err := fn(ctx, e); err != nil {
			metrics.RecordNotification(name, metrics.OutcomeFailure)
			l.Warn(ctx, "notification failed", logger.String("notice", name), logger.Error(err))
			errs = append(errs, err)
			return
		}
		metrics.RecordNotification(name, metrics.OutcomeSuccess)
	}

	switch e.Kind {
	case model.EventAssignmentCreated:
		send("broker", d.notifier.NotifyBroker)
		if e.Assignment.Status == model.StatusAccepted {
			send("client", d.notifier.NotifyClient)
		}
		if e.PreviousBrokerID != "" && e.PreviousBrokerID != e.Broker.ID {
			send("previous_broker", d.notifier.NotifyPreviousBroker)
		}
	case model.EventAssignmentAccepted:
		send("client", d.notifier.NotifyClient)
		send("broker", d.notifier.NotifyBroker)
	default:
		l.Warn(ctx, "unknown event kind", logger.String("kind", string(e.Kind)))
	}
	return errors.Join(errs...)
}
