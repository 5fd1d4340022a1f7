package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MotiveType is the persisted tag of a Motive. History classification reads
// this tag, so values must stay stable.
type MotiveType string

// Motive tags.
const (
	MotiveFixedOwner              MotiveType = "fixed_owner"
	MotiveAreaMatchExternal       MotiveType = "area_match"
	MotiveAreaMatchInternal       MotiveType = "area_match_internal"
	MotiveFallbackPlantonista     MotiveType = "fallback_plantonista"
	MotiveFallbackPlantonistaArea MotiveType = "fallback_plantonista_area"
)

// IsPlantonista reports whether the tag denotes an on-call fallback attempt.
func (t MotiveType) IsPlantonista() bool {
	return strings.Contains(string(t), "plantonista")
}

// ErrUnknownMotive is returned when decoding a motive with an unrecognised tag.
var ErrUnknownMotive = errors.New("unknown motive type")

// Motive is the structured reason for an assignment. Implementations are
// FixedOwner, AreaMatchExternal, AreaMatchInternal and FallbackPlantonista.
type Motive interface {
	Type() MotiveType
	// Tier returns the cascade tier the attempt belongs to. FixedOwner returns TierUnset.
	Tier() Tier
	motive()
}

// FixedOwner routes the lead straight to the property's owning broker.
type FixedOwner struct {
	Source string
}

// AreaMatchExternal is an attempt in the External tier.
type AreaMatchExternal struct {
	Source           string
	PreviousBrokerID string
	Attempts         int
	Limit            int
}

// AreaMatchInternal is an attempt in the Internal tier.
type AreaMatchInternal struct {
	Source           string
	PreviousBrokerID string
	Attempts         int
	Limit            int
}

// FallbackPlantonista hands the lead to an on-call broker. Area is true when
// the broker was matched on the prospect's (state, city) and false for the
// global fallback.
type FallbackPlantonista struct {
	Source           string
	PreviousBrokerID string
	Attempts         int
	Area             bool
}

func (FixedOwner) Type() MotiveType        { return MotiveFixedOwner }
func (AreaMatchExternal) Type() MotiveType { return MotiveAreaMatchExternal }
func (AreaMatchInternal) Type() MotiveType { return MotiveAreaMatchInternal }
func (m FallbackPlantonista) Type() MotiveType {
	if m.Area {
		return MotiveFallbackPlantonistaArea
	}
	return MotiveFallbackPlantonista
}

func (FixedOwner) Tier() Tier          { return TierUnset }
func (AreaMatchExternal) Tier() Tier   { return TierExternal }
func (AreaMatchInternal) Tier() Tier   { return TierInternal }
func (FallbackPlantonista) Tier() Tier { return TierPlantonista }

func (FixedOwner) motive()          {}
func (AreaMatchExternal) motive()   {}
func (AreaMatchInternal) motive()   {}
func (FallbackPlantonista) motive() {}

// motiveEnvelope is the JSON shape stored alongside an assignment.
type motiveEnvelope struct {
	Type             MotiveType `json:"type"`
	Source           string     `json:"source,omitempty"`
	PreviousBrokerID string     `json:"previous_broker_id,omitempty"`
	Attempts         int        `json:"attempts,omitempty"`
	Limit            int        `json:"limit,omitempty"`
}

// MarshalMotive encodes m with its type tag. A nil motive encodes as JSON null.
func MarshalMotive(m Motive) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	env := motiveEnvelope{Type: m.Type()}
	switch v := m.(type) {
	case FixedOwner:
		env.Source = v.Source
	case AreaMatchExternal:
		env.Source, env.PreviousBrokerID, env.Attempts, env.Limit = v.Source, v.PreviousBrokerID, v.Attempts, v.Limit
	case AreaMatchInternal:
		env.Source, env.PreviousBrokerID, env.Attempts, env.Limit = v.Source, v.PreviousBrokerID, v.Attempts, v.Limit
	case FallbackPlantonista:
		env.Source, env.PreviousBrokerID, env.Attempts = v.Source, v.PreviousBrokerID, v.Attempts
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMotive, m)
	}
	return json.Marshal(env)
}

// UnmarshalMotive decodes a stored motive. Empty input and JSON null decode to nil.
func UnmarshalMotive(b []byte) (Motive, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var env motiveEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode motive: %w", err)
	}
	switch env.Type {
	case MotiveFixedOwner:
		return FixedOwner{Source: env.Source}, nil
	case MotiveAreaMatchExternal:
		return AreaMatchExternal{Source: env.Source, PreviousBrokerID: env.PreviousBrokerID, Attempts: env.Attempts, Limit: env.Limit}, nil
	case MotiveAreaMatchInternal:
		return AreaMatchInternal{Source: env.Source, PreviousBrokerID: env.PreviousBrokerID, Attempts: env.Attempts, Limit: env.Limit}, nil
	case MotiveFallbackPlantonista, MotiveFallbackPlantonistaArea:
		return FallbackPlantonista{
			Source:           env.Source,
			PreviousBrokerID: env.PreviousBrokerID,
			Attempts:         env.Attempts,
			Area:             env.Type == MotiveFallbackPlantonistaArea,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMotive, env.Type)
	}
}
