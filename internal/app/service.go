// Package service wires the store, routing engine, sweeper and notification
// dispatcher together and implements the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/leadrouter/internal/adapters/mq/queue"
	"github.com/okian/leadrouter/internal/adapters/mq/worker"
	"github.com/okian/leadrouter/internal/adapters/notify"
	"github.com/okian/leadrouter/internal/adapters/repository"
	"github.com/okian/leadrouter/internal/domain/dedupe"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/params"
	"github.com/okian/leadrouter/internal/domain/routing"
	"github.com/okian/leadrouter/pkg/logger"
	"github.com/okian/leadrouter/pkg/metrics"
)

const triggerQueueName = "routing"

// Service owns every long-lived component of the router.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.SQLiteStore
	params     *params.CachedProvider
	router     *routing.Orchestrator
	sweeper    *routing.Sweeper
	dispatcher *notify.Dispatcher
	deduper    dedupe.Deduper
	triggers   *queue.InMemoryQueue[routing.Request]
	pool       *worker.Pool[routing.Request]
	transport  notify.Transport

	// Configuration
	dbPath           string
	workerCount      int
	queueSize        int
	dedupeSize       int
	notifyQueueSize  int
	notifyWorkers    int
	sweepInterval    time.Duration
	sweepBatch       int
	sweepConcurrency int
	paramsTTL        time.Duration
	baseURL          string
	runSweeper       bool
	now              func() time.Time

	// State
	started     bool
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	logger logger.Logger
}

// New constructs a Service with default configuration. Nothing is opened
// until Start.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:           ":memory:",
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        10_000,
		dedupeSize:       50_000,
		notifyQueueSize:  10_000,
		notifyWorkers:    4,
		sweepInterval:    time.Minute,
		sweepBatch:       50,
		sweepConcurrency: 4,
		paramsTTL:        5 * time.Minute,
		baseURL:          "http://localhost:3000",
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts workers, the dispatcher and, when
// enabled, the sweep loop.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting lead router", logger.String("db", s.dbPath))

	s.store, err = repository.Open(ctx, s.dbPath, repository.WithLogger(s.logger.Named("repository")))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	defer func() {
		if err != nil {
			s.teardown(context.Background())
		}
	}()

	s.params, err = params.NewCachedProvider(params.NewProvider(s.store), s.paramsTTL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	transport := s.transport
	if transport == nil {
		transport = notify.NewLogTransport(s.logger.Named("notify"))
	}
	s.dispatcher, err = notify.NewDispatcher(
		notify.New(transport, s.store, notify.WithBaseURL(s.baseURL)),
		notify.WithQueueSize(s.notifyQueueSize),
		notify.WithWorkers(s.notifyWorkers),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	s.dispatcher.Start(context.WithoutCancel(ctx))

	s.router = routing.NewOrchestrator(s.store, s.store, s.store, s.params,
		routing.WithPublisher(s.dispatcher),
		routing.WithClock(s.now),
	)
	s.sweeper = routing.NewSweeper(s.store, s.router, s.params,
		routing.WithBatchSize(s.sweepBatch),
		routing.WithConcurrency(s.sweepConcurrency),
		routing.WithInterval(s.sweepInterval),
		routing.WithSweepClock(s.now),
	)

	s.deduper, err = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	s.triggers = queue.NewInMemoryQueue[routing.Request](queue.WithName(triggerQueueName), queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool[routing.Request](s.triggers, worker.HandlerFunc[routing.Request](s.handleTrigger),
		worker.WithName(triggerQueueName), worker.WithSize(s.workerCount), worker.WithLogger(s.logger))
	s.pool.Start(context.WithoutCancel(ctx))

	if s.runSweeper {
		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.sweepCancel = cancel
		s.sweepDone = make(chan struct{})
		go func() {
			defer close(s.sweepDone)
			_ = s.sweeper.Run(sweepCtx)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "lead router started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Bool("sweeper", s.runSweeper),
	)
	return nil
}

// Stop drains the trigger queue and the dispatcher, stops the sweeper and
// closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping lead router")
	err := s.teardown(ctx)
	s.started = false
	s.logger.Info(ctx, "lead router stopped")
	return err
}

func (s *Service) teardown(ctx context.Context) error {
	var errs []error
	if s.sweepCancel != nil {
		s.sweepCancel()
		<-s.sweepDone
		s.sweepCancel = nil
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Shutdown(ctx))
		s.pool = nil
	}
	if s.dispatcher != nil {
		errs = append(errs, s.dispatcher.Shutdown(ctx))
		s.dispatcher = nil
	}
	if s.params != nil {
		s.params.Close()
		s.params = nil
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}
	return errors.Join(errs...)
}

func (s *Service) running() error {
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) handleTrigger(ctx context.Context, req routing.Request) error {
	_, err := s.router.Route(ctx, req)
	if errors.Is(err, routing.ErrNoEligibleBroker) {
		return nil
	}
	return err
}

// EnqueueRoute queues a routing pass. A non-empty key makes the trigger
// idempotent: a key seen before reports duplicate and queues nothing.
func (s *Service) EnqueueRoute(ctx context.Context, key string, req routing.Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return false, err
	}

	if key != "" && s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordDuplicateRequest()
		return true, nil
	}
	if err := s.triggers.Enqueue(ctx, req); err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		return false, err
	}
	return false, nil
}

// Route runs a routing pass synchronously.
func (s *Service) Route(ctx context.Context, req routing.Request) (routing.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return routing.Result{}, err
	}
	return s.router.Route(ctx, req)
}

// Accept records a broker accepting a pending assignment.
func (s *Service) Accept(ctx context.Context, prospectID int64, brokerID string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return model.Assignment{}, err
	}
	return s.router.Accept(ctx, prospectID, brokerID)
}

// Reject records a broker refusing a pending assignment and re-routes.
func (s *Service) Reject(ctx context.Context, prospectID int64, brokerID string) (routing.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return routing.Result{}, err
	}
	return s.router.Reject(ctx, prospectID, brokerID)
}

// Assignments lists every attempt for a prospect, oldest first.
func (s *Service) Assignments(ctx context.Context, prospectID int64) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return nil, err
	}
	if _, err := s.store.ProspectContext(ctx, prospectID); err != nil {
		return nil, err
	}
	return s.store.Assignments(ctx, prospectID)
}

// Sweep runs one expiry sweep now.
func (s *Service) Sweep(ctx context.Context) (routing.SweepReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return routing.SweepReport{}, err
	}
	return s.sweeper.RunOnce(ctx)
}

// Store exposes the store for seeding and tooling. It is nil before Start.
func (s *Service) Store() *repository.SQLiteStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// InvalidateParams drops the cached routing parameters.
func (s *Service) InvalidateParams() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.params != nil {
		s.params.Invalidate()
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.triggers.Len()
	stats["queueLength"] = queueLen
	stats["pendingNotifications"] = s.dispatcher.Pending()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["params"] = s.params.GuardianConfig(ctx)
	metrics.UpdateQueueSize(triggerQueueName, queueLen)

	st, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn(ctx, "stats unavailable", logger.Error(err))
		return stats
	}
	stats["brokers"] = st.Brokers
	stats["prospects"] = st.Prospects
	stats["assignments"] = st.Assignments
	stats["assignmentsByStatus"] = st.ByStatus
	return stats
}
