package routing

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/leadrouter/internal/domain/guardian"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/params"
	"github.com/okian/leadrouter/pkg/logger"
	"github.com/okian/leadrouter/pkg/metrics"
)

const (
	defaultSweepBatch       = 50
	defaultSweepConcurrency = 4
	defaultSweepInterval    = time.Minute
)

// Router runs a routing pass. *Orchestrator implements it.
type Router interface {
	Route(ctx context.Context, req Request) (Result, error)
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Normalized int64 `json:"normalized"`
	Scanned    int   `json:"scanned"`
	Expired    int   `json:"expired"`
	Rerouted   int   `json:"rerouted"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
}

// Sweeper expires assignments past their deadline and re-routes the
// prospects with the expired broker excluded.
type Sweeper struct {
	store       Store
	router      Router
	params      params.Loader
	batch       int
	concurrency int
	interval    time.Duration
	now         func() time.Time
	logger      logger.Logger

	running atomic.Bool
}

// NewSweeper builds a Sweeper.
func NewSweeper(store Store, router Router, loader params.Loader, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:       store,
		router:      router,
		params:      loader,
		batch:       defaultSweepBatch,
		concurrency: defaultSweepConcurrency,
		interval:    defaultSweepInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sweeper")
	}
	return s
}

// RunOnce performs one sweep. It returns ErrSweepInProgress when another
// sweep on this Sweeper has not finished.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	report, err := s.sweep(ctx)
	result := metrics.OutcomeSuccess
	if err != nil {
		result = metrics.OutcomeFailure
	}
	metrics.RecordSweep(result, float64(time.Since(start).Milliseconds()))
	return report, err
}

func (s *Sweeper) sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	n, err := s.store.NormalizeFixedOwnerDeadlines(ctx)
	if err != nil {
		return report, err
	}
	report.Normalized = n
	if n > 0 {
		s.logger.Info(ctx, "cleared deadlines on fixed-owner assignments", logger.Int64("rows", n))
		if err := s.store.RecordAudit(ctx, AuditEntry{
			Action: AuditOwnerDeadlines,
			Detail: map[string]any{"rows": n},
			At:     s.now(),
		}); err != nil {
			s.logger.Warn(ctx, "audit not recorded", logger.Error(err))
		}
	}

	now := s.now()
	due, err := s.store.ExpiredAssignments(ctx, now, s.batch)
	if err != nil {
		return report, err
	}
	report.Scanned = len(due)
	if len(due) == 0 {
		return report, nil
	}

	engine := guardian.New(s.params.GuardianConfig(ctx), guardian.WithClock(func() time.Time { return now }))

	var expired, rerouted, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, a := range due {
		g.Go(func() error {
			switch s.expire(gctx, engine, a, now) {
			case sweepSkipped:
				skipped.Add(1)
			case sweepRerouted:
				expired.Add(1)
				rerouted.Add(1)
			case sweepFailed:
				expired.Add(1)
				failed.Add(1)
			case sweepError:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Expired = int(expired.Load())
	report.Rerouted = int(rerouted.Load())
	report.Failed = int(failed.Load())
	report.Skipped = int(skipped.Load())
	s.logger.Info(ctx, "sweep finished",
		logger.Int("scanned", report.Scanned),
		logger.Int("expired", report.Expired),
		logger.Int("rerouted", report.Rerouted),
		logger.Int("failed", report.Failed),
	)
	return report, ctx.Err()
}

type sweepOutcome int

const (
	sweepSkipped sweepOutcome = iota
	sweepRerouted
	sweepFailed
	sweepError
)

func (s *Sweeper) expire(ctx context.Context, engine *guardian.Engine, a model.Assignment, now time.Time) sweepOutcome {
	l := s.logger.With(logger.Int64("prospect_id", a.ProspectID), logger.Int64("assignment_id", a.ID))

	check := engine.ShouldExpire(a)
	if !check.ShouldExpire {
		l.Debug(ctx, "assignment kept", logger.String("reason", check.Reason))
		return sweepSkipped
	}
	ok, err := s.store.ExpireAssignment(ctx, a.ID, now)
	if err != nil {
		l.Error(ctx, "expire failed", logger.Error(err))
		return sweepError
	}
	if !ok {
		l.Debug(ctx, "assignment already resolved")
		return sweepSkipped
	}

	metrics.RecordAssignmentExpired()
	metrics.RecordAssignmentClosed(string(model.StatusExpired))
	if err := s.store.RecordAudit(ctx, AuditEntry{
		Action:       AuditAssignmentExpired,
		ProspectID:   a.ProspectID,
		AssignmentID: a.ID,
		BrokerID:     a.BrokerID,
		Detail:       map[string]any{"reason": check.Reason, "sla_minutes": check.SLAMinutes},
		At:           now,
	}); err != nil {
		l.Warn(ctx, "audit not recorded", logger.Error(err))
	}

	_, err = s.router.Route(ctx, Request{
		ProspectID:       a.ProspectID,
		Exclude:          model.NewBrokerSet(a.BrokerID),
		Source:           SourceSLAEscalation,
		PreviousBrokerID: a.BrokerID,
	})
	switch {
	case err == nil:
		return sweepRerouted
	case errors.Is(err, ErrNoEligibleBroker), errors.Is(err, ErrMissingLocation), errors.Is(err, ErrProspectNotFound):
		l.Warn(ctx, "expired lead left unrouted", logger.String("broker_id", a.BrokerID), logger.Error(err))
		return sweepFailed
	default:
		l.Error(ctx, "re-route failed", logger.Error(err))
		s.reinstate(context.WithoutCancel(ctx), a, err, l)
		return sweepError
	}
}

// reinstate puts a row whose re-route failed back in the assigned state so
// the next sweep expires and re-routes it again.
func (s *Sweeper) reinstate(ctx context.Context, a model.Assignment, cause error, l logger.Logger) {
	now := s.now()
	ok, err := s.store.ReinstateAssignment(ctx, a, now)
	if err != nil {
		l.Error(ctx, "expired lead could not be reinstated", logger.Error(err))
		return
	}
	if !ok {
		l.Info(ctx, "expired lead already handled elsewhere")
		return
	}
	if err := s.store.RecordAudit(ctx, AuditEntry{
		Action:       AuditExpiryReverted,
		ProspectID:   a.ProspectID,
		AssignmentID: a.ID,
		BrokerID:     a.BrokerID,
		Detail:       map[string]any{"reason": cause.Error()},
		At:           now,
	}); err != nil {
		l.Warn(ctx, "audit not recorded", logger.Error(err))
	}
	l.Warn(ctx, "expiry reverted for retry", logger.String("broker_id", a.BrokerID))
}

// Run sweeps every interval until ctx is done. A tick that finds another
// sweep running (for example one started over HTTP) is skipped.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.logger.Info(ctx, "sweeper started", logger.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopped")
			return nil
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.logger.Debug(ctx, "previous sweep still running, tick skipped")
			return
		}
		if ctx.Err() == nil {
			s.logger.Error(ctx, "sweep failed", logger.Error(err))
		}
	}
}
