// Package history reads a prospect's assignment attempts and classifies them
// into cascade tiers.
package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/leadrouter/internal/domain/model"
)

// Source returns the raw attempt rows for a prospect.
type Source interface {
	AssignmentHistory(ctx context.Context, prospectID int64) ([]model.HistoryEntry, error)
}

// Reader returns history ordered by creation time, oldest first.
type Reader struct {
	source Source
}

// NewReader builds a Reader over source.
func NewReader(source Source) *Reader {
	return &Reader{source: source}
}

// History returns the ordered attempts for prospectID.
func (r *Reader) History(ctx context.Context, prospectID int64) ([]model.HistoryEntry, error) {
	entries, err := r.source.AssignmentHistory(ctx, prospectID)
	if err != nil {
		return nil, fmt.Errorf("%w: prospect %d: %w", ErrHistoryUnavailable, prospectID, err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Classify returns the tier an attempt counts against, or TierUnset when it
// does not count. Plantonista attempts never count. Area-match motives carry
// their tier; anything else falls back to the broker type.
func Classify(e model.HistoryEntry) model.Tier {
	switch {
	case e.MotiveType.IsPlantonista():
		return model.TierUnset
	case e.MotiveType == model.MotiveAreaMatchExternal:
		return model.TierExternal
	case e.MotiveType == model.MotiveAreaMatchInternal:
		return model.TierInternal
	case e.BrokerType.Normalize() == model.BrokerInternal:
		return model.TierInternal
	default:
		return model.TierExternal
	}
}

// Counts is the number of counted attempts per tier.
type Counts struct {
	External int
	Internal int
}

// Count tallies counted attempts across entries.
func Count(entries []model.HistoryEntry) Counts {
	var c Counts
	for _, e := range entries {
		switch Classify(e) {
		case model.TierExternal:
			c.External++
		case model.TierInternal:
			c.Internal++
		}
	}
	return c
}
