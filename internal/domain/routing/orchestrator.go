// Package routing runs routing passes: it picks a broker for a prospect,
// persists the assignment and publishes the result. It also expires
// assignments whose acceptance deadline has passed.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadrouter/internal/domain/guardian"
	"github.com/okian/leadrouter/internal/domain/history"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/params"
	"github.com/okian/leadrouter/internal/domain/selector"
	"github.com/okian/leadrouter/pkg/logger"
	"github.com/okian/leadrouter/pkg/metrics"
)

// Trigger sources recorded in the assignment motive.
const (
	SourceNewLead       = "new_lead"
	SourceSLAEscalation = "sla_escalation"
	SourceRejection     = "broker_rejection"
	SourceManual        = "manual"
)

// Request asks for one routing pass.
type Request struct {
	ProspectID int64
	// Exclude lists brokers that must not receive the lead. Brokers already
	// in the prospect's history are always excluded.
	Exclude model.BrokerSet
	// StartTier skips lower tiers. TierUnset starts wherever history says.
	StartTier model.Tier
	// ForceFallback jumps straight to the on-call tier.
	ForceFallback bool
	Source        string
	// PreviousBrokerID is the broker the lead escalated away from, if any.
	PreviousBrokerID string
}

// Result is the outcome of a successful pass.
type Result struct {
	PassID     string
	Assignment model.Assignment
	Decision   guardian.Decision
	// Duplicate is true when the prospect already had an active assignment;
	// Assignment then holds that row and nothing was written.
	Duplicate bool
}

// Orchestrator runs routing passes.
type Orchestrator struct {
	store     Store
	history   *history.Reader
	selector  *selector.Selector
	params    params.Loader
	publisher Publisher
	now       func() time.Time
	logger    logger.Logger
}

// NewOrchestrator builds an Orchestrator. Without WithPublisher events are
// dropped.
func NewOrchestrator(store Store, hist history.Source, candidates selector.CandidateSource, loader params.Loader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		history:  history.NewReader(hist),
		selector: selector.New(candidates),
		params:   loader,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("router")
	}
	return o
}

// Route runs one pass for req.ProspectID.
func (o *Orchestrator) Route(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.Source == "" {
		req.Source = SourceNewLead
	}
	passID := uuid.NewString()
	l := o.logger.With(logger.Int64("prospect_id", req.ProspectID), logger.String("pass_id", passID))

	res, err := o.route(ctx, req, l)
	res.PassID = passID

	outcome := metrics.OutcomeAssigned
	switch {
	case errors.Is(err, ErrNoEligibleBroker):
		outcome = metrics.OutcomeNoBroker
	case err != nil:
		outcome = metrics.OutcomeError
		metrics.RecordErrorByComponent("router", "route")
	case res.Duplicate:
		outcome = metrics.OutcomeDuplicate
	case res.Assignment.Status == model.StatusAccepted:
		outcome = metrics.OutcomeAccepted
	}
	metrics.RecordRoutingPass(outcome, float64(time.Since(start).Milliseconds()))
	return res, err
}

func (o *Orchestrator) route(ctx context.Context, req Request, l logger.Logger) (Result, error) {
	pc, err := o.store.ProspectContext(ctx, req.ProspectID)
	if err != nil {
		return Result{}, err
	}
	if pc.Area.State == "" || pc.Area.City == "" {
		return Result{}, fmt.Errorf("%w: prospect %d", ErrMissingLocation, req.ProspectID)
	}

	engine := guardian.New(o.params.GuardianConfig(ctx), guardian.WithClock(o.now))
	entries, err := o.history.History(ctx, req.ProspectID)
	if err != nil {
		return Result{}, err
	}

	decision, found, err := o.ownerDecision(ctx, engine, pc, req, entries, l)
	if err != nil {
		return Result{}, err
	}
	if !found {
		decision, found, err = o.cascade(ctx, engine, pc, req, entries, l)
		if err != nil {
			return Result{}, err
		}
	}
	if !found {
		o.audit(ctx, AuditEntry{
			Action:     AuditRoutingFailed,
			ProspectID: req.ProspectID,
			Detail: map[string]any{
				"reason":  ErrNoEligibleBroker.Error(),
				"source":  req.Source,
				"exclude": req.Exclude.Slice(),
			},
		})
		l.Warn(ctx, "no eligible broker", logger.String("source", req.Source))
		return Result{}, fmt.Errorf("%w: prospect %d", ErrNoEligibleBroker, req.ProspectID)
	}

	return o.persist(ctx, pc, req, decision, l)
}

// ownerDecision short-circuits to the property's owning broker when that
// broker is active and not excluded by the caller.
func (o *Orchestrator) ownerDecision(ctx context.Context, engine *guardian.Engine, pc model.ProspectContext, req Request, entries []model.HistoryEntry, l logger.Logger) (guardian.Decision, bool, error) {
	if pc.OwnerBrokerID == "" || req.Exclude.Has(pc.OwnerBrokerID) {
		return guardian.Decision{}, false, nil
	}
	owner, err := o.store.Broker(ctx, pc.OwnerBrokerID)
	if errors.Is(err, ErrBrokerNotFound) {
		l.Warn(ctx, "property owner not found", logger.String("broker_id", pc.OwnerBrokerID))
		return guardian.Decision{}, false, nil
	}
	if err != nil {
		return guardian.Decision{}, false, err
	}
	if !owner.Active {
		l.Debug(ctx, "property owner inactive", logger.String("broker_id", owner.ID))
		return guardian.Decision{}, false, nil
	}
	return engine.Decide(guardian.DecideInput{
		Prospect:         pc.Prospect,
		Broker:           owner,
		History:          entries,
		Source:           req.Source,
		PreviousBrokerID: req.PreviousBrokerID,
		AreaMatch:        true,
	}), true, nil
}

// cascade walks the tiers from the start tier until a candidate validates.
func (o *Orchestrator) cascade(ctx context.Context, engine *guardian.Engine, pc model.ProspectContext, req Request, entries []model.HistoryEntry, l logger.Logger) (guardian.Decision, bool, error) {
	next := engine.NextTier(entries)
	tier := next.Tier
	if req.StartTier > tier {
		tier = req.StartTier
	}
	if req.ForceFallback {
		tier = model.TierPlantonista
	}
	exclude := req.Exclude.Union(model.HistoryBrokers(entries))
	l.Debug(ctx, "cascade start",
		logger.String("tier", tier.String()),
		logger.String("reason", next.Reason),
		logger.Strings("exclude", exclude.Slice()),
	)

	for {
		res, err := o.selector.Select(ctx, tier, pc.Area, exclude)
		if err != nil {
			return guardian.Decision{}, false, err
		}
		if res != nil {
			v := engine.ValidateAssignment(pc.Prospect, res.Broker, entries)
			if v.Valid {
				return engine.Decide(guardian.DecideInput{
					Prospect:         pc.Prospect,
					Broker:           res.Broker,
					Tier:             res.Tier,
					History:          entries,
					Source:           req.Source,
					PreviousBrokerID: req.PreviousBrokerID,
					AreaMatch:        res.AreaMatch,
				}), true, nil
			}
			l.Info(ctx, "candidate rejected",
				logger.String("tier", tier.String()),
				logger.String("broker_id", res.Broker.ID),
				logger.String("reason", v.Reason),
			)
		} else {
			l.Debug(ctx, "tier has no candidate", logger.String("tier", tier.String()))
		}
		if tier == model.TierPlantonista {
			return guardian.Decision{}, false, nil
		}
		tier = tier.Next()
	}
}

func (o *Orchestrator) persist(ctx context.Context, pc model.ProspectContext, req Request, d guardian.Decision, l logger.Logger) (Result, error) {
	now := o.now()
	a, err := o.store.CreateAssignment(ctx, NewAssignment{
		ProspectID: pc.ID,
		PropertyID: pc.PropertyID,
		BrokerID:   d.Broker.ID,
		Status:     d.Status,
		Motive:     d.Motive,
		ExpiresAt:  d.ExpiresAt,
		LinkOwner:  d.Status == model.StatusAccepted && !d.IsOwner,
		CreatedAt:  now,
	})
	if errors.Is(err, ErrActiveAssignment) {
		metrics.RecordDuplicateRequest()
		l.Info(ctx, "prospect already has an active assignment",
			logger.Int64("assignment_id", a.ID),
			logger.String("broker_id", a.BrokerID),
		)
		return Result{Assignment: a, Decision: d, Duplicate: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	tierName := d.Tier.String()
	if d.IsOwner {
		tierName = "Owner"
	}
	metrics.RecordAssignmentCreated(tierName, string(a.Status))
	o.audit(ctx, AuditEntry{
		Action:       AuditAssignmentCreated,
		ProspectID:   pc.ID,
		AssignmentID: a.ID,
		BrokerID:     a.BrokerID,
		Detail: map[string]any{
			"tier":   tierName,
			"motive": string(d.Motive.Type()),
			"status": string(a.Status),
			"source": req.Source,
		},
	})
	l.Info(ctx, "assignment created",
		logger.Int64("assignment_id", a.ID),
		logger.String("broker_id", a.BrokerID),
		logger.String("tier", tierName),
		logger.String("status", string(a.Status)),
	)

	o.publish(ctx, model.AssignmentEvent{
		Kind:             model.EventAssignmentCreated,
		Assignment:       a,
		Broker:           d.Broker,
		Prospect:         pc,
		Tier:             d.Tier,
		PreviousBrokerID: req.PreviousBrokerID,
	})
	return Result{Assignment: a, Decision: d}, nil
}

// Accept records the broker's acceptance of a pending assignment.
func (o *Orchestrator) Accept(ctx context.Context, prospectID int64, brokerID string) (model.Assignment, error) {
	a, err := o.store.AcceptAssignment(ctx, prospectID, brokerID, o.now())
	if err != nil {
		return model.Assignment{}, err
	}
	metrics.RecordAssignmentClosed(string(model.StatusAccepted))
	o.audit(ctx, AuditEntry{
		Action:       AuditAssignmentAccepted,
		ProspectID:   prospectID,
		AssignmentID: a.ID,
		BrokerID:     brokerID,
	})

	pc, err := o.store.ProspectContext(ctx, prospectID)
	if err != nil {
		o.logger.Warn(ctx, "accepted without notice", logger.Int64("prospect_id", prospectID), logger.Error(err))
		return a, nil
	}
	b, err := o.store.Broker(ctx, brokerID)
	if err != nil {
		o.logger.Warn(ctx, "accepted without notice", logger.Int64("prospect_id", prospectID), logger.Error(err))
		return a, nil
	}
	var tier model.Tier
	if a.Motive != nil {
		tier = a.Motive.Tier()
	}
	o.publish(ctx, model.AssignmentEvent{
		Kind:       model.EventAssignmentAccepted,
		Assignment: a,
		Broker:     b,
		Prospect:   pc,
		Tier:       tier,
	})
	return a, nil
}

// Reject records the broker's refusal and routes the lead to someone else.
func (o *Orchestrator) Reject(ctx context.Context, prospectID int64, brokerID string) (Result, error) {
	a, err := o.store.RejectAssignment(ctx, prospectID, brokerID, o.now())
	if err != nil {
		return Result{}, err
	}
	metrics.RecordAssignmentClosed(string(model.StatusRejected))
	o.audit(ctx, AuditEntry{
		Action:       AuditAssignmentRejected,
		ProspectID:   prospectID,
		AssignmentID: a.ID,
		BrokerID:     brokerID,
	})
	return o.Route(ctx, Request{
		ProspectID:       prospectID,
		Exclude:          model.NewBrokerSet(brokerID),
		Source:           SourceRejection,
		PreviousBrokerID: brokerID,
	})
}

func (o *Orchestrator) publish(ctx context.Context, e model.AssignmentEvent) {
	if o.publisher == nil {
		return
	}
	e.ID = uuid.NewString()
	e.At = o.now()
	if err := o.publisher.Publish(ctx, e); err != nil {
		o.logger.Warn(ctx, "event not published",
			logger.String("kind", string(e.Kind)),
			logger.Int64("prospect_id", e.Prospect.ID),
			logger.Error(err),
		)
	}
}

func (o *Orchestrator) audit(ctx context.Context, e AuditEntry) {
	if e.At.IsZero() {
		e.At = o.now()
	}
	if err := o.store.RecordAudit(ctx, e); err != nil {
		o.logger.Warn(ctx, "audit not recorded", logger.String("action", e.Action), logger.Error(err))
	}
}
