// Package guardian holds the pure routing rules: which tier comes next, when
// an assignment expires, and what status and motive a new assignment gets.
//
// An Engine is built from one parameter snapshot per decision and has no side
// effects beyond reading its clock.
package guardian

import (
	"fmt"
	"time"

	"github.com/okian/leadrouter/internal/domain/history"
	"github.com/okian/leadrouter/internal/domain/model"
)

// Engine applies routing rules against a fixed GuardianConfig.
type Engine struct {
	cfg model.GuardianConfig
	now func() time.Time
}

// New builds an Engine over cfg.
func New(cfg model.GuardianConfig, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the snapshot the engine decides with.
func (e *Engine) Config() model.GuardianConfig { return e.cfg }

// ExpirationResult explains whether an assignment is past its SLA.
type ExpirationResult struct {
	ShouldExpire bool
	Reason       string
	SLAMinutes   int
	ExpiresAt    *time.Time
}

// ShouldExpire reports whether a is past its deadline. Rows without a
// deadline and fixed-owner rows never expire.
func (e *Engine) ShouldExpire(a model.Assignment) ExpirationResult {
	if a.ExpiresAt == nil {
		return ExpirationResult{Reason: "auto-accepted assignment has no deadline"}
	}
	if a.Motive != nil && a.Motive.Type() == model.MotiveFixedOwner {
		return ExpirationResult{Reason: "fixed-owner assignment never expires"}
	}

	sla := e.cfg.ExternalSLAMinutes
	if a.Motive != nil && a.Motive.Type() == model.MotiveAreaMatchInternal {
		sla = e.cfg.InternalSLAMinutes
	}
	expiresAt := *a.ExpiresAt
	res := ExpirationResult{SLAMinutes: sla, ExpiresAt: &expiresAt}
	if !e.now().Before(expiresAt) {
		res.ShouldExpire = true
		res.Reason = fmt.Sprintf("SLA expired (%d minutes)", sla)
	} else {
		res.Reason = "within SLA until " + expiresAt.UTC().Format(time.RFC3339)
	}
	return res
}

// TierDecision is the tier the next attempt targets, with the counts behind it.
type TierDecision struct {
	Tier             model.Tier
	ExternalAttempts int
	InternalAttempts int
	ExternalLimit    int
	InternalLimit    int
	Reason           string
}

// NextTier walks External, Internal, Plantonista. Internal starts only after
// External is exhausted or skipped, and once Internal has an attempt External
// is never retried. Plantonista is never exhausted.
func (e *Engine) NextTier(entries []model.HistoryEntry) TierDecision {
	c := history.Count(entries)
	d := TierDecision{
		ExternalAttempts: c.External,
		InternalAttempts: c.Internal,
		ExternalLimit:    e.cfg.ExternalAttemptLimit,
		InternalLimit:    e.cfg.InternalAttemptLimit,
	}
	switch {
	case c.External < d.ExternalLimit && c.Internal == 0:
		d.Tier = model.TierExternal
		d.Reason = fmt.Sprintf("external tier (attempt %d/%d)", c.External+1, d.ExternalLimit)
	case c.Internal < d.InternalLimit:
		d.Tier = model.TierInternal
		d.Reason = fmt.Sprintf("internal tier (attempt %d/%d)", c.Internal+1, d.InternalLimit)
	default:
		d.Tier = model.TierPlantonista
		d.Reason = fmt.Sprintf("plantonista fallback (external %d/%d, internal %d/%d)",
			c.External, d.ExternalLimit, c.Internal, d.InternalLimit)
	}
	return d
}

// Validation is the outcome of ValidateAssignment.
type Validation struct {
	Valid  bool
	Reason string
}

// ValidateAssignment rejects inactive brokers and brokers that already
// received this prospect in any tier.
func (e *Engine) ValidateAssignment(_ model.Prospect, b model.Broker, entries []model.HistoryEntry) Validation {
	if !b.Active {
		return Validation{Reason: "broker is not active"}
	}
	if model.HistoryBrokers(entries).Has(b.ID) {
		return Validation{Reason: "broker already received this lead"}
	}
	return Validation{Valid: true, Reason: "valid assignment"}
}

// ExpirationTime is nil for owner and Plantonista assignments, otherwise now
// plus the tier's SLA.
func (e *Engine) ExpirationTime(tier model.Tier, isOwner bool) *time.Time {
	if isOwner || tier == model.TierPlantonista {
		return nil
	}
	sla := e.cfg.ExternalSLAMinutes
	if tier == model.TierInternal {
		sla = e.cfg.InternalSLAMinutes
	}
	t := e.now().Add(time.Duration(sla) * time.Minute)
	return &t
}

// AssignmentStatus is accepted for owner and Plantonista assignments and
// assigned otherwise.
func (e *Engine) AssignmentStatus(tier model.Tier, isOwner bool) model.Status {
	if isOwner || tier == model.TierPlantonista {
		return model.StatusAccepted
	}
	return model.StatusAssigned
}

// Motive builds the tagged reason persisted with the assignment.
func (e *Engine) Motive(tier model.Tier, isOwner bool, source, previousBrokerID string, attempts int, areaMatch bool) model.Motive {
	switch {
	case isOwner:
		return model.FixedOwner{Source: source}
	case tier == model.TierPlantonista:
		return model.FallbackPlantonista{
			Source:           source,
			PreviousBrokerID: previousBrokerID,
			Attempts:         attempts,
			Area:             areaMatch,
		}
	case tier == model.TierInternal:
		return model.AreaMatchInternal{
			Source:           source,
			PreviousBrokerID: previousBrokerID,
			Attempts:         attempts,
			Limit:            e.cfg.InternalAttemptLimit,
		}
	default:
		return model.AreaMatchExternal{
			Source:           source,
			PreviousBrokerID: previousBrokerID,
			Attempts:         attempts,
			Limit:            e.cfg.ExternalAttemptLimit,
		}
	}
}

// Decision is everything needed to persist one assignment.
type Decision struct {
	Broker     model.Broker
	Tier       model.Tier
	IsOwner    bool
	Motive     model.Motive
	Status     model.Status
	ExpiresAt  *time.Time
	AutoAccept bool
}

// DecideInput carries the context of one decision.
type DecideInput struct {
	Prospect         model.Prospect
	Broker           model.Broker
	Tier             model.Tier
	History          []model.HistoryEntry
	Source           string
	PreviousBrokerID string
	AreaMatch        bool
}

// Decide combines motive, status and deadline for a chosen broker. The
// attempt number counts the attempt being made.
func (e *Engine) Decide(in DecideInput) Decision {
	isOwner := in.Prospect.OwnerBrokerID != "" && in.Prospect.OwnerBrokerID == in.Broker.ID
	c := history.Count(in.History)

	var attempts int
	switch in.Tier {
	case model.TierExternal:
		attempts = c.External + 1
	case model.TierInternal:
		attempts = c.Internal + 1
	case model.TierPlantonista:
		attempts = c.External + c.Internal
	}

	return Decision{
		Broker:     in.Broker,
		Tier:       in.Tier,
		IsOwner:    isOwner,
		Motive:     e.Motive(in.Tier, isOwner, in.Source, in.PreviousBrokerID, attempts, in.AreaMatch),
		Status:     e.AssignmentStatus(in.Tier, isOwner),
		ExpiresAt:  e.ExpirationTime(in.Tier, isOwner),
		AutoAccept: isOwner || in.Tier == model.TierPlantonista,
	}
}
