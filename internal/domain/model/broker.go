package model

import (
	"sort"
	"time"
)

// BrokerType classifies a broker into the External or Internal tier.
type BrokerType string

// Broker types. Storage may hold an empty value, which reads as External.
const (
	BrokerExternal BrokerType = "External"
	BrokerInternal BrokerType = "Internal"
)

// Normalize maps unknown or empty values to External.
func (t BrokerType) Normalize() BrokerType {
	if t == BrokerInternal {
		return BrokerInternal
	}
	return BrokerExternal
}

// Broker is a user eligible to receive leads. Brokers are managed elsewhere;
// the engine only reads them.
type Broker struct {
	ID         string
	Name       string
	Email      string
	Type       BrokerType
	OnCall     bool // is_plantonista
	Active     bool
	ScoreLevel int
	ScoreXP    int
	CreatedAt  time.Time
}

// Area is a (state, city) pair used for geographic matching. Both parts must
// match exactly.
type Area struct {
	State string
	City  string
}

// BrokerSet is an immutable-by-convention set of broker ids.
type BrokerSet map[string]struct{}

// NewBrokerSet builds a set from ids, skipping empty strings.
func NewBrokerSet(ids ...string) BrokerSet {
	s := make(BrokerSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports whether id is in the set. Safe on a nil set.
func (s BrokerSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new set holding the members of s and other.
func (s BrokerSet) Union(other BrokerSet) BrokerSet {
	out := make(BrokerSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// With returns a new set holding s plus ids.
func (s BrokerSet) With(ids ...string) BrokerSet {
	return s.Union(NewBrokerSet(ids...))
}

// Slice returns the members sorted, for logging and persistence.
func (s BrokerSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
