package model

import "time"

// Status is the lifecycle state of one assignment row.
type Status string

// Assignment statuses. Assigned and Accepted are the active states; at most
// one row per prospect may be active.
const (
	StatusAssigned Status = "assigned"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
	StatusRejected Status = "rejected"
)

// Active reports whether the status blocks a new assignment for the prospect.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusAccepted
}

// Assignment is one attempt to hand a prospect to one broker. Rows are
// append-only; a new attempt is always a new row.
type Assignment struct {
	ID         int64
	ProspectID int64
	BrokerID   string
	Status     Status
	Motive     Motive
	ExpiresAt  *time.Time // nil means auto-accepted, never expires
	AcceptedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HistoryEntry is a read projection of a past assignment used to count tier attempts.
type HistoryEntry struct {
	BrokerID   string
	BrokerType BrokerType
	MotiveType MotiveType
	Status     Status
	CreatedAt  time.Time
}

// HistoryBrokers returns the set of brokers that already received the prospect.
func HistoryBrokers(history []HistoryEntry) BrokerSet {
	s := make(BrokerSet, len(history))
	for _, h := range history {
		if h.BrokerID != "" {
			s[h.BrokerID] = struct{}{}
		}
	}
	return s
}
