// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Tier is a step of the escalation cascade. Tiers are ordered: a pass never
// moves back to a lower tier.
type Tier int

// Escalation tiers in cascade order.
const (
	TierUnset Tier = iota
	TierExternal
	TierInternal
	TierPlantonista
)

func (t Tier) String() string {
	switch t {
	case TierExternal:
		return "External"
	case TierInternal:
		return "Internal"
	case TierPlantonista:
		return "Plantonista"
	default:
		return "Unset"
	}
}

// Next returns the tier that follows t in the cascade. Plantonista is terminal.
func (t Tier) Next() Tier {
	if t >= TierPlantonista {
		return TierPlantonista
	}
	return t + 1
}

// ParseTier accepts the tier names case-insensitively. An empty string yields TierUnset.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TierUnset, nil
	case "external":
		return TierExternal, nil
	case "internal":
		return TierInternal, nil
	case "plantonista", "on_call", "oncall":
		return TierPlantonista, nil
	default:
		return TierUnset, fmt.Errorf("unknown tier %q", s)
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
