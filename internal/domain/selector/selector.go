// Package selector picks one broker for a cascade tier.
package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/leadrouter/internal/domain/model"
)

// Filter narrows the candidate pool fetched from a CandidateSource.
type Filter struct {
	// Type restricts to one broker type. Empty means any type.
	Type model.BrokerType
	// OnCall selects on-call brokers when true and regular brokers when false.
	OnCall bool
	// Area restricts to brokers covering the area. Nil means no area filter.
	Area *model.Area
}

// Candidate is an active broker plus the load figures used for ordering.
type Candidate struct {
	Broker           model.Broker
	TotalAssignments int
	// LastReceivedAt is nil when the broker never received a lead.
	LastReceivedAt *time.Time
}

// CandidateSource lists active brokers matching a filter.
type CandidateSource interface {
	Candidates(ctx context.Context, f Filter) ([]Candidate, error)
}

// Result is a chosen broker.
type Result struct {
	Broker model.Broker
	Tier   model.Tier
	// AreaMatch is true when the broker covers the prospect's area. It is
	// false only for the global on-call fallback.
	AreaMatch bool
}

// Selector implements the three tier strategies over a CandidateSource.
type Selector struct {
	source CandidateSource
}

// New builds a Selector.
func New(source CandidateSource) *Selector {
	return &Selector{source: source}
}

// Select dispatches to the strategy for tier. It returns nil when nobody qualifies.
func (s *Selector) Select(ctx context.Context, tier model.Tier, area model.Area, exclude model.BrokerSet) (*Result, error) {
	switch tier {
	case model.TierExternal:
		return s.External(ctx, area, exclude)
	case model.TierInternal:
		return s.Internal(ctx, area, exclude)
	case model.TierPlantonista:
		return s.Plantonista(ctx, area, exclude)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
}

// External picks a regular External broker covering area.
func (s *Selector) External(ctx context.Context, area model.Area, exclude model.BrokerSet) (*Result, error) {
	return s.byArea(ctx, model.TierExternal, model.BrokerExternal, area, exclude)
}

// Internal picks a regular Internal broker covering area.
func (s *Selector) Internal(ctx context.Context, area model.Area, exclude model.BrokerSet) (*Result, error) {
	return s.byArea(ctx, model.TierInternal, model.BrokerInternal, area, exclude)
}

// Plantonista picks an on-call broker covering area, then any on-call broker.
func (s *Selector) Plantonista(ctx context.Context, area model.Area, exclude model.BrokerSet) (*Result, error) {
	c, err := s.pick(ctx, Filter{OnCall: true, Area: &area}, exclude)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return &Result{Broker: c.Broker, Tier: model.TierPlantonista, AreaMatch: true}, nil
	}

	c, err = s.pick(ctx, Filter{OnCall: true}, exclude)
	if err != nil || c == nil {
		return nil, err
	}
	return &Result{Broker: c.Broker, Tier: model.TierPlantonista}, nil
}

func (s *Selector) byArea(ctx context.Context, tier model.Tier, typ model.BrokerType, area model.Area, exclude model.BrokerSet) (*Result, error) {
	c, err := s.pick(ctx, Filter{Type: typ, Area: &area}, exclude)
	if err != nil || c == nil {
		return nil, err
	}
	return &Result{Broker: c.Broker, Tier: tier, AreaMatch: true}, nil
}

func (s *Selector) pick(ctx context.Context, f Filter, exclude model.BrokerSet) (*Candidate, error) {
	all, err := s.source.Candidates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidatesUnavailable, err)
	}
	pool := make([]Candidate, 0, len(all))
	for _, c := range all {
		if !c.Broker.Active || c.Broker.OnCall != f.OnCall || exclude.Has(c.Broker.ID) {
			continue
		}
		if f.Type != "" && c.Broker.Type.Normalize() != f.Type {
			continue
		}
		pool = append(pool, c)
	}
	if len(pool) == 0 {
		return nil, nil
	}
	sort.Slice(pool, func(i, j int) bool { return Less(pool[i], pool[j]) })
	return &pool[0], nil
}

// Less orders candidates: fewest assignments, oldest last lead (never
// received first), highest level, highest xp, oldest account, then id.
func Less(a, b Candidate) bool {
	if a.TotalAssignments != b.TotalAssignments {
		return a.TotalAssignments < b.TotalAssignments
	}
	switch {
	case a.LastReceivedAt == nil && b.LastReceivedAt != nil:
		return true
	case a.LastReceivedAt != nil && b.LastReceivedAt == nil:
		return false
	case a.LastReceivedAt != nil && !a.LastReceivedAt.Equal(*b.LastReceivedAt):
		return a.LastReceivedAt.Before(*b.LastReceivedAt)
	}
	if a.Broker.ScoreLevel != b.Broker.ScoreLevel {
		return a.Broker.ScoreLevel > b.Broker.ScoreLevel
	}
	if a.Broker.ScoreXP != b.Broker.ScoreXP {
		return a.Broker.ScoreXP > b.Broker.ScoreXP
	}
	if !a.Broker.CreatedAt.Equal(b.Broker.CreatedAt) {
		return a.Broker.CreatedAt.Before(b.Broker.CreatedAt)
	}
	return a.Broker.ID < b.Broker.ID
}
